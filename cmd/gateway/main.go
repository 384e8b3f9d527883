// Command gateway runs the boki HTTP/gRPC function gateway: it
// accepts engine connections, accepts HTTP and gRPC client traffic,
// and dispatches FUNC_CALLs across registered engine nodes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/boki-faas/boki/internal/config"
	"github.com/boki-faas/boki/internal/gateway"
	"github.com/boki-faas/boki/internal/gwtimeout"
	"github.com/boki-faas/boki/internal/ioworker"
	"github.com/boki-faas/boki/internal/logging"
)

var version = "dev"

func main() {
	logging.Setup()
	cfg := config.DefineFlags()
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		slog.Error("fatal", "error", err)
		return
	}
	if cfg.FuncConfigFile == "" {
		slog.Error("fatal", "error", "func_config_file is required")
		return
	}

	addr := fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.HTTPPort)
	logging.PrintBanner("gateway", version, addr)

	if err := run(cfg); err != nil {
		slog.Error("fatal", "error", err)
	}
}

func run(cfg *config.Config) error {
	funcs, err := gateway.LoadFuncConfig(cfg.FuncConfigFile)
	if err != nil {
		return fmt.Errorf("load func config: %w", err)
	}

	nodes := gateway.NewNodeManager()
	dispatcher := gateway.NewDispatcher(nodes, funcs, gwtimeout.NewDefault())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engineLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.EngineConnPort))
	if err != nil {
		return fmt.Errorf("listen engine_conn_port: %w", err)
	}
	defer engineLn.Close()

	workers, closedCh := makeWorkers(cfg.NumIOWorkers, func(c *ioworker.ConnHandle) {
		go gateway.ServeEngineConn(c.Conn, nodes, dispatcher)
	})
	acceptor := ioworker.NewAcceptor(engineLn, ioworker.ConnEngine, workers)
	go func() { _ = acceptor.Serve() }()
	go func() {
		for range closedCh {
		}
	}()
	go func() { <-ctx.Done(); _ = acceptor.Close() }()

	httpServer := gateway.NewHTTPServer(dispatcher)
	grpcServer := gateway.NewGRPCServer(dispatcher, funcs)

	grpcLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen grpc_port: %w", err)
	}
	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()
	go func() {
		if err := grpcServer.Serve(grpcLn); err != nil {
			slog.Warn("gateway: grpc server stopped", "err", err)
		}
	}()

	httpAddr := fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.HTTPPort)
	srv := &http.Server{Addr: httpAddr, Handler: httpServer.Handler()}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	slog.Info("gateway listening", "http", httpAddr, "grpc", grpcLn.Addr(), "engine", engineLn.Addr())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// makeWorkers builds n started ioworker.Workers sharing onAccept and
// a single closed-connection channel.
func makeWorkers(n int, onAccept func(*ioworker.ConnHandle)) ([]*ioworker.Worker, chan *ioworker.ConnHandle) {
	if n <= 0 {
		n = 1
	}
	closed := make(chan *ioworker.ConnHandle, 256)
	workers := make([]*ioworker.Worker, n)
	for i := range workers {
		w := ioworker.New(i, closed, onAccept)
		_ = w.Start()
		workers[i] = w
	}
	return workers, closed
}
