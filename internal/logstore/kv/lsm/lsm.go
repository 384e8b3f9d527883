// Package lsm implements kv.Backend on goleveldb, standing in for a
// rocksdb backend choice: both are point-lookup-optimized LSM-tree
// stores with an optional block-compression knob.
package lsm

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/boki-faas/boki/internal/logstore/kv"
)

// Options configures the backend, mapping onto the "rocksdb_*" CLI
// knobs.
type Options struct {
	// MaxBackgroundJobs carries rocksdb_max_background_jobs. It is
	// stored but sets no goleveldb option.
	MaxBackgroundJobs int
	// EnableCompression maps onto rocksdb_enable_compression.
	EnableCompression bool
}

// Backend opens one goleveldb database per (backend, logspace_id), in
// Dir: one file per (backend, logspace_id) in the persisted-state
// layout.
type Backend struct {
	dir  string
	opts Options

	mu  sync.RWMutex
	dbs map[uint32]*leveldb.DB
}

// Open opens (creating if absent) the LSM backend rooted at dir.
func Open(dir string, opts Options) (*Backend, error) {
	return &Backend{dir: dir, opts: opts, dbs: make(map[uint32]*leveldb.DB)}, nil
}

func (b *Backend) dbPath(id uint32) string {
	return filepath.Join(b.dir, fmt.Sprintf("%08x.lsm", id))
}

func (b *Backend) InstallLogSpace(id uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.dbs[id]; ok {
		return nil
	}
	compression := opt.NoCompression
	if b.opts.EnableCompression {
		compression = opt.SnappyCompression
	}
	db, err := leveldb.OpenFile(b.dbPath(id), &opt.Options{
		Compression:         compression,
		CompactionTableSize: 2 << 20,
		WriteBuffer:         4 << 20,
	})
	if err != nil {
		return fmt.Errorf("lsm: open logspace %08x: %w", id, err)
	}
	b.dbs[id] = db
	return nil
}

func (b *Backend) Get(key kv.Key) ([]byte, bool, error) {
	b.mu.RLock()
	db, ok := b.dbs[key.LogspaceID]
	b.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	v, err := db.Get(encodeKey(key.SeqNum), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lsm: get %s: %w", key, err)
	}
	return v, true, nil
}

func (b *Backend) PutBatch(batch kv.Batch) error {
	b.mu.RLock()
	db, ok := b.dbs[batch.LogspaceID]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("lsm: logspace %08x not installed", batch.LogspaceID)
	}
	wb := new(leveldb.Batch)
	for i, k := range batch.Keys {
		wb.Put(encodeKey(k.SeqNum), batch.Values[i])
	}
	// Sync forces an fsync of the write-ahead log: batch durability
	// depends on this.
	if err := db.Write(wb, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("lsm: put_batch logspace %08x: %w", batch.LogspaceID, err)
	}
	return nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for _, db := range b.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func encodeKey(seqnum uint64) []byte {
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(seqnum)
		seqnum >>= 8
	}
	return buf
}
