package logstore

import (
	"context"
	"time"

	"github.com/boki-faas/boki/internal/lockable"
	"github.com/boki-faas/boki/internal/wire"
)

// EmitShardProgress sends a SHARD_PROGRESS message for logspace to
// the owning sequencer, carrying the newly reached seqnum as the
// header's SeqNum field.
type EmitShardProgress func(sequencer wire.NodeID, header wire.SharedLogHeader)

// ShardProgressTask periodically scans every installed logspace for
// newly stored (not yet reported) entries and emits a SHARD_PROGRESS
// message per delta, grounded on the single shared background-thread
// idiom used elsewhere in this codebase for periodic maintenance
// work, reusing time.Ticker rather than a hand-rolled sleep loop.
type ShardProgressTask struct {
	sc       *StorageCollection
	emit     EmitShardProgress
	interval time.Duration
}

// NewShardProgressTask builds a task that scans sc's logspaces every
// interval and reports progress via emit.
func NewShardProgressTask(sc *StorageCollection, emit EmitShardProgress, interval time.Duration) *ShardProgressTask {
	return &ShardProgressTask{sc: sc, emit: emit, interval: interval}
}

// Run blocks scanning on a ticker until ctx is canceled.
func (t *ShardProgressTask) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.scanOnce()
		}
	}
}

func (t *ShardProgressTask) scanOnce() {
	t.sc.lsMu.RLock()
	ids := make([]wire.LogspaceID, 0, len(t.sc.logspaces))
	ptrs := make(map[wire.LogspaceID]*lockable.Ptr[LogSpace], len(t.sc.logspaces))
	for id, ptr := range t.sc.logspaces {
		ids = append(ids, id)
		ptrs[id] = ptr
	}
	t.sc.lsMu.RUnlock()

	for _, id := range ids {
		guard := ptrs[id].Lock()
		ls := guard.Get()
		highest, ok := ls.TakeShardProgressDelta()
		guard.Unlock()
		if !ok {
			continue
		}
		t.emit(wire.NodeID(id.SequencerID()), wire.SharedLogHeader{
			OpType:     wire.ShardProgress,
			SrcNodeID:  t.sc.selfID,
			ViewID:     id.ViewID(),
			LogspaceID: id,
			SeqNum:     wire.SeqNum(highest),
		})
	}
}
