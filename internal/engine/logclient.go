package engine

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/boki-faas/boki/internal/logstore"
	"github.com/boki-faas/boki/internal/wire"
)

// ShardRouter answers whether the shard owning logspaceID is hosted
// by this engine's local storage subsystem or must be reached over a
// remote peer connection.
type ShardRouter interface {
	// Route returns the address of the storage node owning
	// logspaceID, and false if that shard is hosted locally.
	Route(logspaceID wire.LogspaceID) (addr string, remote bool)
}

// LogClient is the append/read surface function handlers use to
// touch the shared log. It dispatches locally when the target shard
// is co-located with this engine, and forwards to the owning storage
// node's peer connection otherwise.
type LogClient struct {
	selfID wire.NodeID
	local  *logstore.StorageCollection
	router ShardRouter

	peerMu sync.Mutex
	peers  map[string]*peerConn
}

// NewLogClient builds a client appending/reading through local
// (this engine's co-resident storage subsystem, may be nil if this
// deployment hosts no local shards) and falling back to router for
// everything else.
func NewLogClient(selfID wire.NodeID, local *logstore.StorageCollection, router ShardRouter) *LogClient {
	return &LogClient{selfID: selfID, local: local, router: router, peers: make(map[string]*peerConn)}
}

// Append replicates payload into logspaceID at seqNum. REPLICATE has
// no response message, so Append returns once the message has been
// handed to the local collection or written to the peer connection;
// it does not wait for an acknowledgement.
func (c *LogClient) Append(ctx context.Context, logspaceID wire.LogspaceID, seqNum wire.SeqNum, userLogspace uint32, userTag uint64, payload []byte) error {
	header := wire.SharedLogHeader{
		OpType:       wire.Replicate,
		SrcNodeID:    c.selfID,
		ViewID:       logspaceID.ViewID(),
		LogspaceID:   logspaceID,
		SeqNum:       seqNum,
		UserLogspace: userLogspace,
		UserTag:      userTag,
		PayloadSize:  uint32(len(payload)),
	}
	_, _, err := c.dispatch(ctx, header, payload)
	return err
}

// ReadAt retrieves the payload stored at seqNum within logspaceID.
// It returns wire.DataLost if the record was never durably written.
func (c *LogClient) ReadAt(ctx context.Context, logspaceID wire.LogspaceID, seqNum wire.SeqNum) (wire.OpType, []byte, error) {
	header := wire.SharedLogHeader{
		OpType:     wire.ReadAt,
		SrcNodeID:  c.selfID,
		ViewID:     logspaceID.ViewID(),
		LogspaceID: logspaceID,
		SeqNum:     seqNum,
	}
	return c.dispatch(ctx, header, nil)
}

func (c *LogClient) dispatch(ctx context.Context, header wire.SharedLogHeader, payload []byte) (wire.OpType, []byte, error) {
	addr, remote := c.router.Route(header.LogspaceID)
	if !remote {
		if c.local == nil {
			return 0, nil, fmt.Errorf("engine: logspace %d routed locally but no local storage collection configured", header.LogspaceID)
		}
		respCh := make(chan wire.SharedLogHeader, 1)
		payloadCh := make(chan []byte, 1)
		c.local.Dispatch(header, payload, func(respHeader wire.SharedLogHeader, respPayload []byte) {
			respCh <- respHeader
			payloadCh <- respPayload
		})
		if header.OpType == wire.Replicate {
			// REPLICATE produces no response message.
			return header.OpType, nil, nil
		}
		select {
		case respHeader := <-respCh:
			return respHeader.OpType, <-payloadCh, nil
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		}
	}

	peer, err := c.peerFor(addr)
	if err != nil {
		return 0, nil, err
	}
	return peer.roundTrip(ctx, header, payload)
}

// peerConn is a single TCP connection to a remote storage node,
// multiplexing concurrent requests by ClientData as a request id.
type peerConn struct {
	conn net.Conn

	mu      sync.Mutex
	nextID  uint64
	waiters map[uint64]chan peerResponse
	writeMu sync.Mutex
}

type peerResponse struct {
	header  wire.SharedLogHeader
	payload []byte
}

func (c *LogClient) peerFor(addr string) (*peerConn, error) {
	c.peerMu.Lock()
	defer c.peerMu.Unlock()
	if p, ok := c.peers[addr]; ok {
		return p, nil
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("engine: dial storage peer %s: %w", addr, err)
	}
	p := &peerConn{conn: conn, waiters: make(map[uint64]chan peerResponse)}
	go p.readLoop()
	c.peers[addr] = p
	return p, nil
}

func (p *peerConn) roundTrip(ctx context.Context, header wire.SharedLogHeader, payload []byte) (wire.OpType, []byte, error) {
	p.mu.Lock()
	p.nextID++
	reqID := p.nextID
	ch := make(chan peerResponse, 1)
	p.waiters[reqID] = ch
	p.mu.Unlock()
	header.ClientData = reqID

	p.writeMu.Lock()
	_, err := p.conn.Write(append(header.Encode(), payload...))
	p.writeMu.Unlock()
	if err != nil {
		p.mu.Lock()
		delete(p.waiters, reqID)
		p.mu.Unlock()
		return 0, nil, fmt.Errorf("engine: write to storage peer: %w", err)
	}
	if header.OpType == wire.Replicate {
		// REPLICATE produces no response message.
		p.mu.Lock()
		delete(p.waiters, reqID)
		p.mu.Unlock()
		return header.OpType, nil, nil
	}

	select {
	case resp := <-ch:
		return resp.header.OpType, resp.payload, nil
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (p *peerConn) readLoop() {
	header := make([]byte, wire.SharedLogHeaderSize)
	for {
		if _, err := io.ReadFull(p.conn, header); err != nil {
			p.failAll()
			return
		}
		h, err := wire.DecodeSharedLogHeader(header)
		if err != nil {
			p.failAll()
			return
		}
		payload := make([]byte, h.PayloadSize)
		if _, err := io.ReadFull(p.conn, payload); err != nil {
			p.failAll()
			return
		}
		p.mu.Lock()
		ch, ok := p.waiters[h.ClientData]
		delete(p.waiters, h.ClientData)
		p.mu.Unlock()
		if ok {
			ch <- peerResponse{header: h, payload: payload}
		}
	}
}

func (p *peerConn) failAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.waiters {
		close(ch)
		delete(p.waiters, id)
	}
}
