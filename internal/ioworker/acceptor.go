package ioworker

import (
	"log/slog"
	"net"
	"sync/atomic"
)

// Acceptor is the listening thread: it runs the accept loop, assigns
// each new connection to a Worker round-robin, and is the sole
// destroyer of connection objects once a Worker hands them back
// closed.
type Acceptor struct {
	ln      net.Listener
	workers []*Worker
	connID  atomic.Uint64

	closedCh chan *ConnHandle
	connType ConnType
}

// NewAcceptor wraps ln, distributing accepted connections of connType
// across workers. The Closed() channel is created here; the workers
// are not rewired and hand closed connections back on whichever
// `closed` channel they were constructed with.
func NewAcceptor(ln net.Listener, connType ConnType, workers []*Worker) *Acceptor {
	return &Acceptor{
		ln:       ln,
		workers:  workers,
		connType: connType,
		closedCh: make(chan *ConnHandle, 256),
	}
}

// Closed returns the channel workers use to hand back fully-closed
// connections for destruction.
func (a *Acceptor) Closed() chan *ConnHandle {
	return a.closedCh
}

// Serve runs the accept loop until the listener is closed. Each
// accepted connection is handed to the next worker in round-robin
// accept order, modeling the source's "new accepted sockets
// written into a dedicated pipe" handoff as a direct channel send.
func (a *Acceptor) Serve() error {
	var next int
	for {
		conn, err := a.ln.Accept()
		if err != nil {
			return err
		}
		handle := &ConnHandle{
			ID:   a.connID.Add(1),
			Type: a.connType,
			Conn: conn,
		}
		w := a.workers[next%len(a.workers)]
		next++
		w.Accept(handle)
	}
}

// ReapClosed drains the Closed() channel, destroying each handle's
// underlying connection. Run this on the listening goroutine (or a
// goroutine it owns) for the lifetime of the Acceptor.
func (a *Acceptor) ReapClosed() {
	for c := range a.closedCh {
		slog.Debug("ioworker: destroying closed connection", "conn_id", c.ID, "type", c.Type)
		// The worker already closed c.Conn; nothing further to release
		// beyond dropping the last reference, matching the source's
		// "listening thread finally destroys the connection object".
	}
}

// Close stops the accept loop.
func (a *Acceptor) Close() error {
	return a.ln.Close()
}
