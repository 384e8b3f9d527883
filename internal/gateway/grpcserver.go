package gateway

import (
	"fmt"
	"io"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/boki-faas/boki/internal/metrics"
)

// rawCodec passes message bytes through unchanged. Every function's
// gRPC method takes and returns an opaque bytes blob, so there is no
// protobuf schema to generate against; this codec makes that literal
// at the transport layer instead of faking one up.
//
// Registering it under the name "proto" overrides grpc-go's default
// codec process-wide. That's safe here because this binary serves no
// other gRPC surface.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.(*[]byte)
	if !ok {
		return nil, fmt.Errorf("gateway: rawCodec.Marshal: unsupported type %T", v)
	}
	return *b, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("gateway: rawCodec.Unmarshal: unsupported type %T", v)
	}
	*b = append([]byte(nil), data...)
	return nil
}

func (rawCodec) Name() string { return "proto" }

func init() {
	encoding.RegisterCodec(rawCodec{})
}

// GRPCServer exposes one gRPC service per function, each method's
// request/response an opaque bytes blob. Since the method set is data
// (func_config_file), not code, every call is
// routed through grpc.UnknownServiceHandler rather than a generated
// ServiceDesc per function.
type GRPCServer struct {
	dispatcher *Dispatcher
	funcs      *FuncConfig
	nextClient atomic.Uint64
}

// NewGRPCServer builds a *grpc.Server wired to dispatch through d
// using funcs to resolve "/<func_name>/<method_name>" into a FuncCall.
func NewGRPCServer(d *Dispatcher, funcs *FuncConfig) *grpc.Server {
	gs := &GRPCServer{dispatcher: d, funcs: funcs}
	return grpc.NewServer(
		grpc.UnknownServiceHandler(gs.handleStream),
		grpc.StreamInterceptor(metrics.StreamServerInterceptor()),
	)
}

func (s *GRPCServer) handleStream(srv any, stream grpc.ServerStream) error {
	method, ok := grpc.MethodFromServerStream(stream)
	if !ok {
		return status.Error(codes.Internal, "gateway: missing method name on stream")
	}
	funcName, methodName := serviceAndMethod(method)
	if _, ok := s.funcs.Resolve(funcName); !ok {
		return status.Errorf(codes.NotFound, "gateway: unknown function %q", funcName)
	}

	var req []byte
	if err := stream.RecvMsg(&req); err != nil {
		if err == io.EOF {
			return nil
		}
		return status.Errorf(codes.InvalidArgument, "gateway: failed to read request: %v", err)
	}

	clientID := uint16(s.nextClient.Add(1))
	done := make(chan CallResult, 1)
	_, err := s.dispatcher.Submit(funcName, methodName, req, clientID, false, func(r CallResult) { done <- r })
	if err != nil {
		return status.Errorf(codes.NotFound, "%v", err)
	}

	result := <-done
	switch result.Outcome {
	case OutcomeComplete:
		return stream.SendMsg(&result.Payload)
	case OutcomeTimeout:
		return status.Error(codes.DeadlineExceeded, "gateway: call timed out")
	default:
		return status.Error(codes.Unavailable, "gateway: engine failure")
	}
}

func serviceAndMethod(fullMethod string) (service, method string) {
	return metrics.ParseProcedure(fullMethod)
}
