package metrics

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor returns a grpc.UnaryServerInterceptor that
// records RPC request count and duration per service/method/code.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		svc, method := ParseProcedure(info.FullMethod)
		start := time.Now()

		resp, err := handler(ctx, req)

		RPCRequestsTotal.WithLabelValues(svc, method, status.Code(err).String()).Inc()
		RPCRequestDuration.WithLabelValues(svc, method).Observe(time.Since(start).Seconds())

		return resp, err
	}
}

// StreamServerInterceptor returns a grpc.StreamServerInterceptor that
// records RPC request count and duration per service/method/code. The
// gateway's per-function gRPC surface is registered as a bidirectional
// stream, so this is the path function-call traffic actually takes.
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		svc, method := ParseProcedure(info.FullMethod)
		start := time.Now()

		err := handler(srv, ss)

		RPCRequestsTotal.WithLabelValues(svc, method, status.Code(err).String()).Inc()
		RPCRequestDuration.WithLabelValues(svc, method).Observe(time.Since(start).Seconds())

		return err
	}
}

// ParseProcedure extracts the service and method names from a gRPC
// full method string like "/boki.v1.FooService/BarMethod".
func ParseProcedure(procedure string) (service, method string) {
	procedure = strings.TrimPrefix(procedure, "/")
	parts := strings.SplitN(procedure, "/", 2)
	if len(parts) != 2 {
		return "unknown", "unknown"
	}
	svc := parts[0]
	if idx := strings.LastIndex(svc, "."); idx >= 0 {
		svc = svc[idx+1:]
	}
	return svc, parts[1]
}
