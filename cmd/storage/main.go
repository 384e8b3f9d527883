// Command storage runs a boki storage node: it holds one
// StorageCollection, persists REPLICATE/READ-AT/METALOGS traffic
// through the configured kv.Backend, and serves that traffic to
// engines over a shared-log TCP listener.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os/signal"
	"syscall"

	"github.com/boki-faas/boki/internal/config"
	"github.com/boki-faas/boki/internal/logging"
	"github.com/boki-faas/boki/internal/logstore"
	"github.com/boki-faas/boki/internal/logstore/kv"
	"github.com/boki-faas/boki/internal/logstore/kv/lsm"
	"github.com/boki-faas/boki/internal/logstore/kv/mem"
	"github.com/boki-faas/boki/internal/logstore/kv/tree"
	"github.com/boki-faas/boki/internal/wire"
)

var version = "dev"

// defaultStoragePeerPort is the default of the -storage_peer_port
// flag: the port the storage node's shared-log listener binds to.
const defaultStoragePeerPort = 10017

func main() {
	logging.Setup()
	cfg := config.DefineFlags()
	selfID := flag.Int("node_id", 1, "this storage node's id")
	peerPort := flag.Int("storage_peer_port", defaultStoragePeerPort, "port engines connect to for shared-log traffic")
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

	addr := fmt.Sprintf("%s:%d", cfg.ListenAddr, *peerPort)
	logging.PrintBanner("storage", version, addr)

	backend, err := openBackend(cfg)
	if err != nil {
		slog.Error("fatal", "error", err)
		return
	}
	sc := logstore.NewStorageCollection(wire.NodeID(*selfID), backend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := Serve(ctx, addr, sc); err != nil {
		slog.Error("fatal", "error", err)
	}
}

// openBackend builds the kv.Backend named by cfg.StorageBackend:
// "rocksdb" selects lsm, and "hashdbm", "treedbm" and "skipdbm" all
// select tree.
func openBackend(cfg *config.Config) (kv.Backend, error) {
	switch cfg.StorageBackend {
	case "", "mem":
		return mem.New(), nil
	case "lsm", "rocksdb":
		return lsm.Open(cfg.StorageDataDir, lsm.Options{
			MaxBackgroundJobs: cfg.RocksDBMaxBackgroundJobs,
			EnableCompression: cfg.RocksDBEnableCompression,
		})
	case "tree", "hashdbm", "treedbm", "skipdbm":
		return tree.Open(cfg.StorageDataDir)
	default:
		return nil, fmt.Errorf("storage: unknown storage_backend %q", cfg.StorageBackend)
	}
}

// Serve listens on addr and dispatches shared-log traffic into sc
// until ctx is canceled.
func Serve(ctx context.Context, addr string, sc *logstore.StorageCollection) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	go func() { <-ctx.Done(); _ = ln.Close() }()

	slog.Info("storage listening", "addr", addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go servePeerConn(conn, sc)
	}
}

// servePeerConn runs the shared-log request loop for one engine
// connection: decode a SharedLogHeader+payload, dispatch into sc, and
// write back whatever response Dispatch produces (REPLICATE has
// none).
func servePeerConn(conn net.Conn, sc *logstore.StorageCollection) {
	defer conn.Close()
	header := make([]byte, wire.SharedLogHeaderSize)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		h, err := wire.DecodeSharedLogHeader(header)
		if err != nil {
			return
		}
		payload := make([]byte, h.PayloadSize)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return
		}
		sc.Dispatch(h, payload, func(respHeader wire.SharedLogHeader, respPayload []byte) {
			if _, err := conn.Write(append(respHeader.Encode(), respPayload...)); err != nil {
				slog.Warn("storage: failed to write response", "err", err)
			}
		})
	}
}
