// Package ioworker models a single-threaded cooperative executor: one
// goroutine per Worker drives a completion queue (here a buffered
// channel of closures, standing in for the kernel submission/completion
// ring the source binds to per-thread — no io_uring-capable networking
// binding exists in this module's dependency set, so the ring's only
// externally observable contract, in-order completion delivery to a
// single owning thread, is what gets reproduced). All mutation of a
// Worker's connection map happens inside that one goroutine; everything
// else communicates with it only by enqueueing closures.
package ioworker

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// State is a Worker's lifecycle stage. Transitions are monotonic;
// Stopped is terminal.
type State int32

const (
	Created State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// scheduledFunc is one entry in the worker's cross-thread wake-up
// queue.
type scheduledFunc struct {
	owner *ConnHandle
	fn    func()
}

// Worker is a single cooperative event-loop thread owning a subset of
// a node's connections.
type Worker struct {
	id int

	state atomic.Int32

	newConns chan *ConnHandle    // inbound ownership transfer from the listener
	closed   chan<- *ConnHandle  // outbound ownership transfer back to the listener
	schedule chan scheduledFunc  // cross-thread closures, run inline in enqueue order
	stopReq  chan struct{}
	done     chan struct{}

	bufs *bufPool

	mu          sync.Mutex // guards conns and pickCursor; only ever touched from the worker goroutine plus PickConnection's read
	conns       map[uint64]*ConnHandle
	pickCursor  map[ConnType]uint64
	connsByType map[ConnType][]uint64

	onAccept func(*ConnHandle) // invoked on the worker goroutine when a new connection arrives
}

// New builds a Worker identified by id. closed is the listener's
// ownership-transfer-back channel: this Worker writes a handle to it
// exactly once, when that connection is fully closed. onAccept, if
// non-nil, runs on the worker goroutine immediately after a new
// connection is adopted.
func New(id int, closed chan<- *ConnHandle, onAccept func(*ConnHandle)) *Worker {
	return &Worker{
		id:          id,
		newConns:    make(chan *ConnHandle, 64),
		closed:      closed,
		schedule:    make(chan scheduledFunc, 256),
		stopReq:     make(chan struct{}, 1),
		done:        make(chan struct{}),
		bufs:        newBufPool(),
		conns:       make(map[uint64]*ConnHandle),
		pickCursor:  make(map[ConnType]uint64),
		connsByType: make(map[ConnType][]uint64),
		onAccept:    onAccept,
	}
}

// Start transitions Created->Running and begins the event loop. It is
// an error to call Start more than once.
func (w *Worker) Start() error {
	if !w.state.CompareAndSwap(int32(Created), int32(Running)) {
		return fmt.Errorf("ioworker %d: start requires Created state, got %s", w.id, State(w.state.Load()))
	}
	go w.run()
	return nil
}

// Accept delivers a newly accepted connection to this worker for
// ownership transfer. Rejected (connection immediately closed) if the
// worker is not Running.
func (w *Worker) Accept(c *ConnHandle) {
	if State(w.state.Load()) != Running {
		_ = c.Conn.Close()
		return
	}
	select {
	case w.newConns <- c:
	default:
		// Listener backlog full; refuse rather than block the accept loop.
		_ = c.Conn.Close()
	}
}

// ScheduleFunction enqueues fn to run on this worker's goroutine, in
// enqueue order. If owner is non-nil and already closing, fn is
// dropped silently. Dropped silently if the worker is not Running.
func (w *Worker) ScheduleFunction(owner *ConnHandle, fn func()) {
	if State(w.state.Load()) != Running {
		return
	}
	select {
	case w.schedule <- scheduledFunc{owner: owner, fn: fn}:
	default:
		slog.Warn("ioworker: schedule queue full, dropping closure", "worker", w.id)
	}
}

// ScheduleStop requests a transition to Stopping. Idempotent; safe
// from any goroutine.
func (w *Worker) ScheduleStop() {
	select {
	case w.stopReq <- struct{}{}:
	default:
	}
}

// WaitForFinish blocks until the worker has reached Stopped.
func (w *Worker) WaitForFinish() {
	<-w.done
}

// State returns the worker's current lifecycle stage.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// NewWriteBuffer returns a pooled buffer of at least size bytes. Only
// safe to call from the worker's own goroutine.
func (w *Worker) NewWriteBuffer(size int) []byte {
	return w.bufs.Get(size)
}

// ReturnWriteBuffer returns buf to the pool. Only safe to call from
// the worker's own goroutine.
func (w *Worker) ReturnWriteBuffer(buf []byte) {
	w.bufs.Put(buf)
}

// PickConnection returns a live connection of the given type, using
// round-robin among connections of that type, or nil if none are
// live.
func (w *Worker) PickConnection(t ConnType) *ConnHandle {
	w.mu.Lock()
	defer w.mu.Unlock()

	ids := w.connsByType[t]
	if len(ids) == 0 {
		return nil
	}
	start := w.pickCursor[t]
	for i := 0; i < len(ids); i++ {
		idx := (int(start) + i) % len(ids)
		id := ids[idx]
		if c, ok := w.conns[id]; ok && !c.IsClosing() {
			w.pickCursor[t] = uint64(idx) + 1
			return c
		}
	}
	return nil
}

func (w *Worker) run() {
	defer close(w.done)

	for {
		select {
		case c := <-w.newConns:
			w.adopt(c)

		case sf := <-w.schedule:
			st := State(w.state.Load())
			if st != Running && st != Stopping {
				continue
			}
			if sf.owner != nil && sf.owner.IsClosing() {
				continue
			}
			sf.fn()

		case <-w.stopReq:
			w.state.Store(int32(Stopping))
			w.mu.Lock()
			live := make([]*ConnHandle, 0, len(w.conns))
			for _, c := range w.conns {
				live = append(live, c)
			}
			w.mu.Unlock()
			for _, c := range live {
				w.CloseConnection(c)
			}
			w.tryFinish()
		}

		if State(w.state.Load()) == Stopped {
			return
		}
	}
}

func (w *Worker) adopt(c *ConnHandle) {
	if State(w.state.Load()) != Running {
		_ = c.Conn.Close()
		return
	}
	w.mu.Lock()
	w.conns[c.ID] = c
	w.connsByType[c.Type] = append(w.connsByType[c.Type], c.ID)
	w.mu.Unlock()

	if w.onAccept != nil {
		w.onAccept(c)
	}
}

// CloseConnection begins the close sequence for c: marks it closing,
// removes it from this worker's live maps, and hands it back to the
// listening thread for destruction — the listening thread is the sole
// owner of allocation lifetime. Must be called from the worker's own
// goroutine.
func (w *Worker) CloseConnection(c *ConnHandle) {
	c.MarkClosing()
	w.mu.Lock()
	delete(w.conns, c.ID)
	ids := w.connsByType[c.Type]
	for i, id := range ids {
		if id == c.ID {
			w.connsByType[c.Type] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	w.mu.Unlock()

	_ = c.Conn.Close()
	w.closed <- c

	w.tryFinish()
}

// tryFinish transitions Stopping->Stopped once no connections remain.
// No-op outside Stopping.
func (w *Worker) tryFinish() {
	if State(w.state.Load()) != Stopping {
		return
	}
	w.mu.Lock()
	n := len(w.conns)
	w.mu.Unlock()
	if n == 0 {
		w.state.Store(int32(Stopped))
	}
}
