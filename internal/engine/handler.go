// Package engine implements the worker side of the gateway<->engine
// protocol: function registration, the FUNC_CALL dispatch loop on one
// gateway connection, and a shared-log client functions can use to
// append to or read from the durable log.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/boki-faas/boki/internal/wire"
)

// FuncHandler executes one invocation of a registered function and
// returns the response payload, or an error if the invocation failed.
type FuncHandler func(ctx context.Context, methodID uint16, payload []byte) ([]byte, error)

// Registry maps func_id to the handler implementing that function.
type Registry struct {
	handlers map[uint16]FuncHandler
}

// NewRegistry creates an empty function registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[uint16]FuncHandler)}
}

// Register installs handler under funcID, replacing any existing
// registration.
func (r *Registry) Register(funcID uint16, handler FuncHandler) {
	r.handlers[funcID] = handler
}

func (r *Registry) lookup(funcID uint16) (FuncHandler, bool) {
	h, ok := r.handlers[funcID]
	return h, ok
}

// Conn runs the FUNC_CALL dispatch loop over one gateway connection:
// read a GatewayHeader+payload, invoke the registered handler, write
// back FUNC_CALL_COMPLETE or FUNC_CALL_FAILED. Each call is handled
// on its own goroutine so a slow invocation does not stall others
// arriving on the same connection.
type Conn struct {
	conn     net.Conn
	registry *Registry
	writeCh  chan []byte
}

// NewConn wraps conn, dispatching FUNC_CALL messages through
// registry.
func NewConn(conn net.Conn, registry *Registry) *Conn {
	return &Conn{conn: conn, registry: registry, writeCh: make(chan []byte, 32)}
}

// Serve blocks reading gateway messages until a read from conn fails
// (returning nil on a clean EOF); ctx is passed to each handler and
// does not end the loop. Responses are written back in the order
// they're produced
// by a single writer goroutine (writes on a connection must not
// interleave with each other).
func (c *Conn) Serve(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go c.writeLoop(done)

	header := make([]byte, wire.GatewayHeaderSize)
	for {
		if _, err := io.ReadFull(c.conn, header); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("engine: read header: %w", err)
		}
		h, err := wire.DecodeGatewayHeader(header)
		if err != nil {
			return fmt.Errorf("engine: decode header: %w", err)
		}
		payload := make([]byte, h.PayloadSize)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			return fmt.Errorf("engine: read payload: %w", err)
		}
		if h.MessageType != wire.FuncCallMsg {
			slog.Warn("engine: unexpected gateway message type", "type", h.MessageType)
			continue
		}
		go c.handleCall(ctx, h, payload)
	}
}

func (c *Conn) handleCall(ctx context.Context, h wire.GatewayHeader, payload []byte) {
	handler, ok := c.registry.lookup(h.FuncID)
	if !ok {
		c.respond(h, wire.FuncCallFailed, nil)
		return
	}
	resp, err := handler(ctx, h.MethodID, payload)
	if err != nil {
		slog.Warn("engine: function invocation failed", "func_id", h.FuncID, "call_id", h.CallID, "err", err)
		c.respond(h, wire.FuncCallFailed, nil)
		return
	}
	c.respond(h, wire.FuncCallComplete, resp)
}

func (c *Conn) respond(req wire.GatewayHeader, msgType wire.GatewayMessageType, payload []byte) {
	resp := wire.GatewayHeader{
		MessageType: msgType,
		FuncID:      req.FuncID,
		MethodID:    req.MethodID,
		ClientID:    req.ClientID,
		CallID:      req.CallID,
		PayloadSize: uint32(len(payload)),
	}
	c.writeCh <- append(resp.Encode(), payload...)
}

func (c *Conn) writeLoop(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case buf := <-c.writeCh:
			if _, err := c.conn.Write(buf); err != nil {
				slog.Warn("engine: write to gateway connection failed", "err", err)
				return
			}
		}
	}
}
