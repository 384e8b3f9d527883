package logstore

import (
	"errors"
	"sync"

	"github.com/boki-faas/boki/internal/logstore/kv"
	"github.com/boki-faas/boki/internal/metrics"
	"github.com/boki-faas/boki/internal/wire"
)

// ErrDuplicateSeqNum is returned by Store when a seqnum has already
// been replicated into this logspace.
var ErrDuplicateSeqNum = errors.New("logstore: seqnum already replicated")

// ErrSealed is returned by Store and ApplyMetalogs once the logspace
// has been sealed by OnViewFinalized.
var ErrSealed = errors.New("logstore: logspace sealed")

// LogMetaData is the per-record metadata carried by a REPLICATE
// message, independent of the payload bytes.
type LogMetaData struct {
	SeqNum       wire.SeqNum
	UserLogspace uint32
	UserTag      uint64
	ClientData   uint64
}

// ReadOutcome classifies the result of a ReadAt call.
type ReadOutcome int

const (
	ReadOK ReadOutcome = iota
	ReadDataLost
)

// ReadResult is delivered to a ReadAt caller, either synchronously or
// (when the record is replicated but not yet metalog-confirmed) once
// ApplyMetalogs resolves it.
type ReadResult struct {
	Outcome ReadOutcome
	Payload []byte
}

type stagingEntry struct {
	meta      LogMetaData
	payload   []byte
	confirmed bool
}

// LogSpace is the per-(sequencer,view) storage unit: an in-memory
// staging index of recently replicated records, a bounded eviction
// ring, shard-progress bookkeeping, and a queue of reads parked on a
// not-yet-confirmed record. Every exported method expects the caller
// to hold the owning lockable.Ptr's guard; LogSpace itself does no
// additional locking beyond what's needed to protect pendingReads
// against concurrent ReadAt/ApplyMetalogs callers.
type LogSpace struct {
	id      wire.LogspaceID
	backend kv.Backend

	mu              sync.Mutex
	staging         map[wire.SeqNum]*stagingEntry
	ring            []wire.SeqNum
	ringCap         int
	metalogPosition uint64
	sealed          bool

	highestStored     uint64
	lastReportedStore uint64

	pendingReads map[wire.SeqNum][]func(ReadResult)
}

// DefaultRingCapacity bounds how many staging entries are kept before
// the oldest confirmed-and-flushed ones are evicted.
const DefaultRingCapacity = 4096

// NewLogSpace creates a fresh, empty logspace backed by backend,
// which must already have had InstallLogSpace(id) called on it.
func NewLogSpace(id wire.LogspaceID, backend kv.Backend) *LogSpace {
	metrics.ActiveLogSpaces.Inc()
	return &LogSpace{
		id:           id,
		backend:      backend,
		staging:      make(map[wire.SeqNum]*stagingEntry),
		ringCap:      DefaultRingCapacity,
		pendingReads: make(map[wire.SeqNum][]func(ReadResult)),
	}
}

// Close releases bookkeeping resources associated with the logspace.
// It does not close the shared backend.
func (ls *LogSpace) Close() {
	metrics.ActiveLogSpaces.Dec()
}

// Store applies a REPLICATE: rejects a seqnum already present,
// otherwise stages the record and folds it into shard-progress
// accounting.
func (ls *LogSpace) Store(meta LogMetaData, payload []byte) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.sealed {
		return ErrSealed
	}
	if _, exists := ls.staging[meta.SeqNum]; exists {
		return ErrDuplicateSeqNum
	}
	ls.staging[meta.SeqNum] = &stagingEntry{meta: meta, payload: payload}
	ls.ring = append(ls.ring, meta.SeqNum)
	if uint64(meta.SeqNum) > ls.highestStored {
		ls.highestStored = uint64(meta.SeqNum)
	}
	metrics.LogEntriesAppended.WithLabelValues(logspaceIDLabel(ls.id)).Inc()
	return nil
}

// ReadAt resolves seqnum. If the record is staged and confirmed, or
// present in the backend, resolve is invoked synchronously. If the
// record is staged but not yet metalog-confirmed, resolve is parked
// and invoked later from ApplyMetalogs. If the record is entirely
// absent, resolve is invoked synchronously with ReadDataLost — a
// READ-AT is never parked waiting for a REPLICATE that has not yet
// arrived: a read for an unknown seqnum is lost, not queued.
func (ls *LogSpace) ReadAt(seqnum wire.SeqNum, resolve func(ReadResult)) {
	ls.mu.Lock()
	entry, staged := ls.staging[seqnum]
	if staged {
		if entry.confirmed {
			ls.mu.Unlock()
			metrics.LogReadsTotal.WithLabelValues("memory").Inc()
			resolve(ReadResult{Outcome: ReadOK, Payload: entry.payload})
			return
		}
		ls.pendingReads[seqnum] = append(ls.pendingReads[seqnum], resolve)
		ls.mu.Unlock()
		return
	}
	ls.mu.Unlock()

	value, ok, err := ls.backend.Get(kv.Key{LogspaceID: uint32(ls.id), SeqNum: uint64(seqnum)})
	metrics.LogReadsTotal.WithLabelValues("db").Inc()
	if err != nil {
		// A backend read error is not a durability violation (no
		// data was lost, just inaccessible) so it surfaces as
		// DATA_LOST rather than aborting the process.
		resolve(ReadResult{Outcome: ReadDataLost})
		return
	}
	if !ok {
		resolve(ReadResult{Outcome: ReadDataLost})
		return
	}
	resolve(ReadResult{Outcome: ReadOK, Payload: value})
}

// ApplyMetalogs confirms the positions named in batch, flushes newly
// confirmed records to the KV backend in one batched write, releases
// any reads parked on those seqnums, and evicts confirmed-and-flushed
// entries once the staging ring exceeds capacity.
func (ls *LogSpace) ApplyMetalogs(batch MetalogBatch) error {
	ls.mu.Lock()
	if ls.sealed {
		ls.mu.Unlock()
		return ErrSealed
	}

	var flushKeys []kv.Key
	var flushValues [][]byte
	var resolved []wire.SeqNum
	for _, rec := range batch.Records {
		if !rec.Confirmed {
			continue
		}
		seqnum := wire.SeqNum(rec.SeqNum)
		entry, ok := ls.staging[seqnum]
		if !ok || entry.confirmed {
			continue
		}
		entry.confirmed = true
		flushKeys = append(flushKeys, kv.Key{LogspaceID: uint32(ls.id), SeqNum: rec.SeqNum})
		flushValues = append(flushValues, entry.payload)
		resolved = append(resolved, seqnum)
	}
	if batch.Position > ls.metalogPosition {
		ls.metalogPosition = batch.Position
	}
	ls.mu.Unlock()

	if len(flushKeys) > 0 {
		err := ls.backend.PutBatch(kv.Batch{LogspaceID: uint32(ls.id), Keys: flushKeys, Values: flushValues})
		if err != nil {
			// A KV write failure after a confirmed position has been
			// acknowledged is a durability-invariant violation: the
			// caller is expected to route this to internal/fatal.
			return err
		}
	}

	ls.mu.Lock()
	ls.evictFlushed()
	ls.mu.Unlock()

	for _, seqnum := range resolved {
		ls.releasePending(seqnum)
	}
	return nil
}

func (ls *LogSpace) releasePending(seqnum wire.SeqNum) {
	ls.mu.Lock()
	entry := ls.staging[seqnum]
	waiters := ls.pendingReads[seqnum]
	delete(ls.pendingReads, seqnum)
	ls.mu.Unlock()
	if entry == nil {
		return
	}
	for _, resolve := range waiters {
		metrics.LogReadsTotal.WithLabelValues("future_hold").Inc()
		resolve(ReadResult{Outcome: ReadOK, Payload: entry.payload})
	}
}

// evictFlushed drops the oldest ring entries once capacity is
// exceeded, provided they have already been confirmed (and thus
// durably flushed): unconfirmed entries are never evicted, since that
// would lose the only copy of the record.
func (ls *LogSpace) evictFlushed() {
	for len(ls.ring) > ls.ringCap {
		oldest := ls.ring[0]
		entry, ok := ls.staging[oldest]
		if !ok || !entry.confirmed {
			break
		}
		delete(ls.staging, oldest)
		ls.ring = ls.ring[1:]
	}
}

// TakeShardProgressDelta returns the highest stored seqnum if it has
// advanced since the last call, for the background shard-progress
// task to report upstream.
func (ls *LogSpace) TakeShardProgressDelta() (highest uint64, ok bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.highestStored <= ls.lastReportedStore {
		return 0, false
	}
	ls.lastReportedStore = ls.highestStored
	return ls.highestStored, true
}

// Seal marks the logspace as no longer accepting REPLICATEs or
// METALOGS, per OnViewFinalized.
func (ls *LogSpace) Seal() {
	ls.mu.Lock()
	ls.sealed = true
	ls.mu.Unlock()
}

func logspaceIDLabel(id wire.LogspaceID) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 8)
	v := uint32(id)
	for i := 7; i >= 0; i-- {
		buf[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(buf)
}
