// Command engine runs a boki function-execution node: it connects to
// a gateway and serves FUNC_CALLs with registered function handlers.
// It builds no LogClient, so those handlers get no shared-log access.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/boki-faas/boki/internal/config"
	"github.com/boki-faas/boki/internal/engine"
	"github.com/boki-faas/boki/internal/logging"
	"github.com/boki-faas/boki/internal/wire"
)

var version = "dev"

func main() {
	logging.Setup()
	cfg := config.DefineFlags()
	selfID := flag.Int("node_id", 1, "this engine node's id")
	capacity := flag.Int64("capacity", 16, "concurrent call capacity advertised to the gateway")
	gatewayAddr := flag.String("gateway_addr", "127.0.0.1:10007", "gateway engine_conn_port address to connect to")
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

	logging.PrintBanner("engine", version, *gatewayAddr)

	registry := engine.NewRegistry()
	registerDemoFunctions(registry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine.ConnectWithReconnect(ctx, *gatewayAddr, wire.NodeID(*selfID), *capacity, registry)
}

// registerDemoFunctions wires a simple echo function under func_id 1.
// Real function-code deployment is out of scope for this binary;
// operators supply their own FuncHandler implementations by building
// a custom main that calls Registry.Register before
// engine.ConnectWithReconnect.
func registerDemoFunctions(registry *engine.Registry) {
	registry.Register(1, func(ctx context.Context, methodID uint16, payload []byte) ([]byte, error) {
		return payload, nil
	})
}
