package ioworker

import (
	"net"
	"sync/atomic"
)

// ConnType distinguishes the role a connection plays, used by
// PickConnection's round-robin selection.
type ConnType int

const (
	ConnHTTP ConnType = iota
	ConnGRPC
	ConnEngine
	ConnStoragePeer
)

// ConnHandle is the opaque ownership token moved between the
// listening thread and a Worker across the connection-transfer
// channels. Exactly one goroutine may hold live access to a
// ConnHandle's Conn at a time: the listener until transfer, the
// owning Worker afterward, the listener again once the worker hands
// it back for destruction.
type ConnHandle struct {
	ID   uint64
	Type ConnType
	Conn net.Conn

	// scratch is a small buffer retained for bookkeeping when the
	// handle is written back to the listening thread's channel on
	// close.
	scratch [16]byte

	closing atomic.Bool
}

// MarkClosing records that this connection has begun its close
// sequence; ScheduleFunction calls with this handle as owner are
// dropped once this is set.
func (c *ConnHandle) MarkClosing() {
	c.closing.Store(true)
}

// IsClosing reports whether MarkClosing has been called.
func (c *ConnHandle) IsClosing() bool {
	return c.closing.Load()
}

// Send implements gateway.EngineConn and any other "write bytes to
// this connection" contract consumed by higher layers.
func (c *ConnHandle) Send(b []byte) error {
	_, err := c.Conn.Write(b)
	return err
}
