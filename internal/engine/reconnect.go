package engine

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/boki-faas/boki/internal/wire"
)

// resetThreshold is the duration a connection must stay up before a
// subsequent disconnect resets the backoff interval back to its
// initial value, rather than continuing to grow.
const resetThreshold = 30 * time.Second

func newDefaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 60 * time.Second
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}

// ConnectWithReconnect dials gatewayAddr, sends the handshake, and
// serves FUNC_CALLs through registry, reconnecting with exponential
// backoff whenever the connection drops, until ctx is canceled.
func ConnectWithReconnect(ctx context.Context, gatewayAddr string, selfID wire.NodeID, capacity int64, registry *Registry) {
	bo := newDefaultBackoff()
	for {
		start := time.Now()
		err := connectOnce(ctx, gatewayAddr, selfID, capacity, registry)
		if ctx.Err() != nil {
			return
		}

		if time.Since(start) >= resetThreshold {
			bo.Reset()
		}

		interval := bo.NextBackOff()
		slog.Warn("engine: disconnected from gateway, reconnecting", "gateway", gatewayAddr, "err", err, "backoff", interval)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func connectOnce(ctx context.Context, gatewayAddr string, selfID wire.NodeID, capacity int64, registry *Registry) error {
	conn, err := net.Dial("tcp", gatewayAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	hs := wire.EngineHandshakePayload{NodeID: selfID, Capacity: capacity}
	header := wire.GatewayHeader{MessageType: wire.EngineHandshake, PayloadSize: wire.EngineHandshakePayloadSize}
	if _, err := conn.Write(append(header.Encode(), hs.Encode()...)); err != nil {
		return err
	}
	slog.Info("engine: connected to gateway", "gateway", gatewayAddr, "node_id", selfID)

	c := NewConn(conn, registry)
	connDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-connDone:
		}
	}()
	err = c.Serve(ctx)
	close(connDone)
	return err
}
