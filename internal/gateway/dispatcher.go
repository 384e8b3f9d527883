package gateway

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boki-faas/boki/internal/gwtimeout"
	"github.com/boki-faas/boki/internal/metrics"
	"github.com/boki-faas/boki/internal/wire"
)

// CallOutcome classifies how a dispatched call ended, for statistics
// and for routing the response back to the caller.
type CallOutcome int

const (
	OutcomeComplete CallOutcome = iota
	OutcomeFailed
	OutcomeTimeout
	OutcomeDiscarded
)

func (o CallOutcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// CallResult is delivered to a Submit caller's onComplete callback at
// most once: on completion, failure or timeout. A discarded call gets
// no callback.
type CallResult struct {
	Outcome CallOutcome
	Payload []byte
}

// funcCallState tracks one in-flight (or queued) function call.
type funcCallState struct {
	fullCallID wire.FullCallID
	funcName   string
	funcID     uint16
	methodID   uint16
	clientID   uint16
	callID     uint32
	payload    []byte
	async      bool

	node *Node

	onComplete func(CallResult)

	arrivedAt    time.Time
	dispatchedAt time.Time

	timer *time.Timer
}

// Dispatcher assigns full_call_ids, routes calls to engine nodes via
// NodeManager, tracks pending/running/discarded call state under one
// coarse mutex, and enforces per-call timeouts via gwtimeout.
type Dispatcher struct {
	nodes    *NodeManager
	funcs    *FuncConfig
	timeouts *gwtimeout.Config

	nextLocalCallID atomic.Uint64

	mu          sync.Mutex
	pending     []*funcCallState
	running     map[wire.FullCallID]*funcCallState
	discarded   map[wire.FullCallID]struct{}
	lastArrival map[string]time.Time
}

// NewDispatcher builds a Dispatcher wired to nodes, funcs, and a
// timeout config.
func NewDispatcher(nodes *NodeManager, funcs *FuncConfig, timeouts *gwtimeout.Config) *Dispatcher {
	return &Dispatcher{
		nodes:       nodes,
		funcs:       funcs,
		timeouts:    timeouts,
		running:     make(map[wire.FullCallID]*funcCallState),
		discarded:   make(map[wire.FullCallID]struct{}),
		lastArrival: make(map[string]time.Time),
	}
}

// Submit resolves funcName, assigns a full_call_id, and either
// dispatches the call immediately or appends it to pending_func_calls
// for a later dispatch attempt. onComplete is invoked at most once:
// on FUNC_CALL_COMPLETE, FUNC_CALL_FAILED, or timeout. Discard does
// not invoke it. Async calls still invoke it, for statistics, but
// callers may ignore the payload since connection_id = -1 means there
// is nothing left to write it to.
func (d *Dispatcher) Submit(funcName, methodName string, payload []byte, clientID uint16, async bool, onComplete func(CallResult)) (wire.FullCallID, error) {
	spec, ok := d.funcs.Resolve(funcName)
	if !ok {
		return 0, fmt.Errorf("gateway: unknown function %q", funcName)
	}
	var methodID uint16
	if methodName != "" {
		id, ok := spec.ResolveMethod(methodName)
		if !ok {
			return 0, fmt.Errorf("gateway: unknown method %q on function %q", methodName, funcName)
		}
		methodID = id
	}

	localCallID := d.nextLocalCallID.Add(1) - 1
	fullCallID := wire.NewFullCallID(clientID, localCallID)

	state := &funcCallState{
		fullCallID: fullCallID,
		funcName:   funcName,
		funcID:     spec.ID,
		methodID:   methodID,
		clientID:   clientID,
		callID:     uint32(localCallID),
		payload:    payload,
		async:      async,
		onComplete: onComplete,
		arrivedAt:  time.Now(),
	}

	d.mu.Lock()
	if last, ok := d.lastArrival[funcName]; ok {
		metrics.FuncCallInterArrival.WithLabelValues(funcName).Observe(state.arrivedAt.Sub(last).Seconds())
	}
	d.lastArrival[funcName] = state.arrivedAt
	metrics.PendingFuncCalls.Inc()
	d.pending = append(d.pending, state)
	d.mu.Unlock()

	d.drainPending()
	return fullCallID, nil
}

// drainPending attempts to dispatch queued calls in arrival order
// until either the queue is empty or no node has spare capacity.
// Network I/O (node.Conn.Send) is issued outside the coarse mutex.
func (d *Dispatcher) drainPending() {
	for {
		d.mu.Lock()
		if len(d.pending) == 0 {
			d.mu.Unlock()
			return
		}
		node, err := d.nodes.Pick()
		if err != nil {
			d.mu.Unlock()
			return
		}
		state := d.pending[0]
		d.pending = d.pending[1:]
		metrics.PendingFuncCalls.Dec()
		state.node = node
		state.dispatchedAt = time.Now()
		node.BeginCall()
		d.running[state.fullCallID] = state
		state.timer = time.AfterFunc(d.timeouts.CallTimeout(), func() { d.expire(state.fullCallID) })
		d.mu.Unlock()

		metrics.FuncCallQueueingDelay.WithLabelValues(state.funcName).Observe(state.dispatchedAt.Sub(state.arrivedAt).Seconds())

		header := wire.GatewayHeader{
			MessageType: wire.FuncCallMsg,
			FuncID:      state.funcID,
			MethodID:    state.methodID,
			ClientID:    state.clientID,
			CallID:      state.callID,
			PayloadSize: uint32(len(state.payload)),
		}
		msg := append(header.Encode(), state.payload...)
		if err := node.Conn.Send(msg); err != nil {
			slog.Warn("gateway: dispatch send failed, failing call", "full_call_id", state.fullCallID, "err", err)
			d.finish(state.fullCallID, CallResult{Outcome: OutcomeFailed})
		}
		metrics.FuncCallDispatchOverhead.WithLabelValues(state.funcName).Observe(time.Since(state.dispatchedAt).Seconds())
	}
}

// Complete handles a FUNC_CALL_COMPLETE from an engine connection.
func (d *Dispatcher) Complete(fullCallID wire.FullCallID, payload []byte) {
	d.finish(fullCallID, CallResult{Outcome: OutcomeComplete, Payload: payload})
}

// Failed handles a FUNC_CALL_FAILED from an engine connection.
func (d *Dispatcher) Failed(fullCallID wire.FullCallID) {
	d.finish(fullCallID, CallResult{Outcome: OutcomeFailed})
}

// Discard marks fullCallID as discarded because the originating
// client disconnected. A later completion for this id is absorbed
// silently and purges the discard entry.
func (d *Dispatcher) Discard(fullCallID wire.FullCallID) {
	d.mu.Lock()
	state, running := d.running[fullCallID]
	if running {
		delete(d.running, fullCallID)
		d.discarded[fullCallID] = struct{}{}
	}
	d.mu.Unlock()
	if running {
		if state.timer != nil {
			state.timer.Stop()
		}
		state.node.EndCall()
		metrics.FuncCallsTotal.WithLabelValues(state.funcName, OutcomeDiscarded.String()).Inc()
		d.drainPending()
	}
}

func (d *Dispatcher) expire(fullCallID wire.FullCallID) {
	d.finish(fullCallID, CallResult{Outcome: OutcomeTimeout})
}

// finish removes fullCallID from running (rejecting unknown ids
// silently, since the call may already have been discarded or
// resolved), releases its node slot, invokes onComplete, and attempts
// to drain the pending queue.
func (d *Dispatcher) finish(fullCallID wire.FullCallID, result CallResult) {
	d.mu.Lock()
	if _, wasDiscarded := d.discarded[fullCallID]; wasDiscarded {
		delete(d.discarded, fullCallID)
		d.mu.Unlock()
		return
	}
	state, ok := d.running[fullCallID]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.running, fullCallID)
	d.mu.Unlock()

	if state.timer != nil {
		state.timer.Stop()
	}
	state.node.EndCall()

	metrics.FuncCallsTotal.WithLabelValues(state.funcName, result.Outcome.String()).Inc()
	metrics.FuncCallEndToEndLatency.WithLabelValues(state.funcName).Observe(time.Since(state.arrivedAt).Seconds())

	if state.onComplete != nil {
		state.onComplete(result)
	}
	d.drainPending()
}
