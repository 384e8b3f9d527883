package gateway

import (
	"io"
	"log/slog"
	"net"

	"github.com/boki-faas/boki/internal/wire"
)

// ServeEngineConn reads an ENGINE_HANDSHAKE followed by a stream of
// FUNC_CALL_COMPLETE/FUNC_CALL_FAILED messages from conn, registering
// and unregistering the reporting node against nodes as the
// connection comes up and goes down. It blocks until conn is closed
// or a framing error occurs.
func ServeEngineConn(conn net.Conn, nodes *NodeManager, dispatcher *Dispatcher) {
	header := make([]byte, wire.GatewayHeaderSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		slog.Warn("gateway: engine connection closed before handshake", "err", err)
		return
	}
	h, err := wire.DecodeGatewayHeader(header)
	if err != nil || h.MessageType != wire.EngineHandshake {
		slog.Warn("gateway: expected ENGINE_HANDSHAKE as first message", "err", err, "type", h.MessageType)
		return
	}
	payload := make([]byte, h.PayloadSize)
	if _, err := io.ReadFull(conn, payload); err != nil {
		slog.Warn("gateway: failed to read handshake payload", "err", err)
		return
	}
	hs, err := wire.DecodeEngineHandshakePayload(payload)
	if err != nil {
		slog.Warn("gateway: malformed handshake payload", "err", err)
		return
	}

	node := &Node{ID: uint16(hs.NodeID), Capacity: hs.Capacity, Conn: connSender{conn}}
	nodes.Register(node)
	slog.Info("gateway: engine node connected", "node_id", node.ID, "capacity", node.Capacity)
	defer func() {
		nodes.Unregister(node.ID)
		slog.Info("gateway: engine node disconnected", "node_id", node.ID)
	}()

	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		h, err := wire.DecodeGatewayHeader(header)
		if err != nil {
			return
		}
		payload := make([]byte, h.PayloadSize)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return
		}
		fullCallID := wire.NewFullCallID(h.ClientID, uint64(h.CallID))
		switch h.MessageType {
		case wire.FuncCallComplete:
			dispatcher.Complete(fullCallID, payload)
		case wire.FuncCallFailed:
			dispatcher.Failed(fullCallID)
		default:
			slog.Warn("gateway: unexpected message from engine connection", "type", h.MessageType)
		}
	}
}

// connSender adapts a net.Conn to the EngineConn interface.
type connSender struct{ net.Conn }

func (c connSender) Send(b []byte) error {
	_, err := c.Write(b)
	return err
}
