// Command boki boots a gateway, a single engine, and a single
// storage node in one process for local development.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/boki-faas/boki/internal/config"
	"github.com/boki-faas/boki/internal/engine"
	"github.com/boki-faas/boki/internal/gateway"
	"github.com/boki-faas/boki/internal/gwtimeout"
	"github.com/boki-faas/boki/internal/ioworker"
	"github.com/boki-faas/boki/internal/logging"
	"github.com/boki-faas/boki/internal/logstore"
	"github.com/boki-faas/boki/internal/logstore/kv/mem"
	"github.com/boki-faas/boki/internal/wire"
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
	logging.PrintBanner("standalone", version, addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("fatal", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	funcs, err := gateway.LoadFuncConfig(cfg.FuncConfigFile)
	if err != nil {
		return fmt.Errorf("load func config: %w", err)
	}

	// Storage: a single in-memory-backed StorageCollection with a
	// synthetic view installed; it is not served on any listener and
	// is not handed to the engine.
	sc := logstore.NewStorageCollection(1, mem.New())
	sc.OnViewCreated(logstore.View{
		ID:           1,
		SequencerIDs: []wire.NodeID{1},
		StorageIDs:   []wire.NodeID{1},
		EngineIDs:    []wire.NodeID{1},
	})

	// Gateway.
	nodes := gateway.NewNodeManager()
	dispatcher := gateway.NewDispatcher(nodes, funcs, gwtimeout.NewDefault())

	engineLn, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.EngineConnPort))
	if err != nil {
		return fmt.Errorf("listen engine_conn_port: %w", err)
	}
	defer engineLn.Close()

	closed := make(chan *ioworker.ConnHandle, 64)
	worker := ioworker.New(0, closed, func(c *ioworker.ConnHandle) {
		go gateway.ServeEngineConn(c.Conn, nodes, dispatcher)
	})
	_ = worker.Start()
	acceptor := ioworker.NewAcceptor(engineLn, ioworker.ConnEngine, []*ioworker.Worker{worker})
	go func() { _ = acceptor.Serve() }()
	go func() {
		for range closed {
		}
	}()

	httpAddr := fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.HTTPPort)
	httpServer := &http.Server{Addr: httpAddr, Handler: gateway.NewHTTPServer(dispatcher).Handler()}

	grpcLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen grpc_port: %w", err)
	}
	grpcServer := gateway.NewGRPCServer(dispatcher, funcs)

	// Engine: a single demo engine connecting back to this gateway.
	registry := engine.NewRegistry()
	for _, spec := range funcs.Specs() {
		registry.Register(spec.ID, echoHandler)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := grpcServer.Serve(grpcLn); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	time.Sleep(50 * time.Millisecond) // let the engine listener accept before dialing
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runEngine(ctx, engineLn.Addr().String(), registry); err != nil {
			slog.Warn("standalone: embedded engine stopped", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
		grpcServer.GracefulStop()
		_ = engineLn.Close()
	}()

	slog.Info("standalone listening", "http", httpAddr, "grpc", grpcLn.Addr(), "engine", engineLn.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		wg.Wait()
		return nil
	}
}

func echoHandler(ctx context.Context, methodID uint16, payload []byte) ([]byte, error) {
	return payload, nil
}

// runEngine connects to the gateway at addr and serves FUNC_CALLs via
// registry until ctx is canceled.
func runEngine(ctx context.Context, addr string, registry *engine.Registry) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	hs := wire.EngineHandshakePayload{NodeID: 1, Capacity: 16}
	header := wire.GatewayHeader{MessageType: wire.EngineHandshake, PayloadSize: wire.EngineHandshakePayloadSize}
	if _, err := conn.Write(append(header.Encode(), hs.Encode()...)); err != nil {
		return err
	}

	c := engine.NewConn(conn, registry)
	go func() { <-ctx.Done(); _ = conn.Close() }()
	return c.Serve(ctx)
}
