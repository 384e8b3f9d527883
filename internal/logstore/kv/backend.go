// Package kv defines the storage node's pluggable key-value backend
// contract and its three implementations.
package kv

import "fmt"

// Key addresses one stored log entry within a logspace.
type Key struct {
	LogspaceID uint32
	SeqNum     uint64
}

func (k Key) String() string {
	return fmt.Sprintf("%08x:%016x", k.LogspaceID, k.SeqNum)
}

// Batch is a set of key/value writes applied atomically with respect
// to crash: either every pair in Keys/Values is durable after a
// successful call, or none are.
type Batch struct {
	LogspaceID uint32
	Keys       []Key
	Values     [][]byte
}

// Backend is the contract every KV implementation (lsm, tree, mem)
// satisfies. A write failure from any method is a durability-invariant
// error: callers must treat it as fatal, not retry in-process.
type Backend interface {
	// InstallLogSpace creates a new keyspace for id, if not already
	// present. Idempotent.
	InstallLogSpace(id uint32) error

	// Get returns the stored value for key, or ok=false if absent.
	Get(key Key) (value []byte, ok bool, err error)

	// PutBatch writes b atomically with respect to crash.
	PutBatch(b Batch) error

	// Close releases resources held by the backend.
	Close() error
}
