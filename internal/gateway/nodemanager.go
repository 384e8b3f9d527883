package gateway

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/boki-faas/boki/internal/metrics"
)

// EngineConn is the minimal send surface the dispatcher needs on an
// engine connection. Concrete connections are owned by an
// internal/ioworker.Worker; this interface keeps NodeManager free of
// any dependency on the connection fabric.
type EngineConn interface {
	Send(b []byte) error
}

// Node tracks one registered engine node's outstanding call count
// against its advertised capacity.
type Node struct {
	ID       uint16
	Capacity int64
	Conn     EngineConn

	outstanding atomic.Int64
}

// Utilization returns outstanding/capacity, used to bias node
// selection toward the least-loaded engine.
func (n *Node) Utilization() float64 {
	if n.Capacity <= 0 {
		return 1
	}
	return float64(n.outstanding.Load()) / float64(n.Capacity)
}

// HasCapacity reports whether the node can accept one more call.
func (n *Node) HasCapacity() bool {
	return n.outstanding.Load() < n.Capacity
}

// NodeManager tracks connected engine nodes and picks one to receive
// the next dispatched call. Thread-safe.
type NodeManager struct {
	mu    sync.RWMutex
	nodes map[uint16]*Node
}

// NewNodeManager creates an empty NodeManager.
func NewNodeManager() *NodeManager {
	return &NodeManager{nodes: make(map[uint16]*Node)}
}

// Register adds or replaces an engine node. Replacing an existing
// node resets its outstanding count.
func (m *NodeManager) Register(n *Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.nodes[n.ID]
	m.nodes[n.ID] = n
	if !exists {
		metrics.ActiveEngineNodes.Inc()
	}
}

// Unregister removes a node by id. Returns true if it was present.
func (m *NodeManager) Unregister(id uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[id]; ok {
		delete(m.nodes, id)
		metrics.ActiveEngineNodes.Dec()
		return true
	}
	return false
}

// Get returns the node registered under id, or nil.
func (m *NodeManager) Get(id uint16) *Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nodes[id]
}

// IsOnline reports whether a node with the given id is registered.
func (m *NodeManager) IsOnline(id uint16) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.nodes[id]
	return ok
}

// Pick selects the engine node with spare capacity and the lowest
// utilization, ties broken by ascending node id. Returns an error if
// no registered node currently has capacity.
func (m *NodeManager) Pick() (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]uint16, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var best *Node
	for _, id := range ids {
		n := m.nodes[id]
		if !n.HasCapacity() {
			continue
		}
		if best == nil || n.Utilization() < best.Utilization() {
			best = n
		}
	}
	if best == nil {
		return nil, fmt.Errorf("gateway: no engine node has spare capacity")
	}
	return best, nil
}

// BeginCall records that a call is being dispatched to n.
func (n *Node) BeginCall() {
	n.outstanding.Add(1)
}

// EndCall records that a previously dispatched call on n has
// completed, failed, or been discarded.
func (n *Node) EndCall() {
	n.outstanding.Add(-1)
}
