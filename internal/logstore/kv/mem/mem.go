// Package mem provides an in-memory kv.Backend used by tests and the
// standalone dev binary: one map guarded by a single sync.RWMutex,
// grounded on go-ublk's RWMutex-plus-map memory backend.
package mem

import (
	"sync"

	"github.com/boki-faas/boki/internal/logstore/kv"
)

// Backend is a map-backed kv.Backend. Not durable across restarts:
// never select it for a production storage node.
type Backend struct {
	mu        sync.RWMutex
	logspaces map[uint32]map[kv.Key][]byte
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{logspaces: make(map[uint32]map[kv.Key][]byte)}
}

func (b *Backend) InstallLogSpace(id uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.logspaces[id]; !ok {
		b.logspaces[id] = make(map[kv.Key][]byte)
	}
	return nil
}

func (b *Backend) Get(key kv.Key) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ls, ok := b.logspaces[key.LogspaceID]
	if !ok {
		return nil, false, nil
	}
	v, ok := ls[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (b *Backend) PutBatch(batch kv.Batch) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ls, ok := b.logspaces[batch.LogspaceID]
	if !ok {
		ls = make(map[kv.Key][]byte)
		b.logspaces[batch.LogspaceID] = ls
	}
	for i, k := range batch.Keys {
		v := make([]byte, len(batch.Values[i]))
		copy(v, batch.Values[i])
		ls[k] = v
	}
	return nil
}

func (b *Backend) Close() error {
	return nil
}
