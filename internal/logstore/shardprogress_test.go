package logstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/boki-faas/boki/internal/wire"
)

func TestShardProgressTaskEmitsOnDelta(t *testing.T) {
	sc := newTestCollection(t)
	sc.OnViewCreated(View{ID: 1, SequencerIDs: []wire.NodeID{1}, StorageIDs: []wire.NodeID{1}})
	id := wire.NewLogspaceID(1, 1)
	ptr, ok := sc.getLogSpace(id)
	require.True(t, ok)
	guard := ptr.Lock()
	require.NoError(t, guard.Get().Store(LogMetaData{SeqNum: 42}, []byte("x")))
	guard.Unlock()

	var mu sync.Mutex
	var emitted []wire.SharedLogHeader
	task := NewShardProgressTask(sc, func(seq wire.NodeID, header wire.SharedLogHeader) {
		mu.Lock()
		emitted = append(emitted, header)
		mu.Unlock()
	}, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	task.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, emitted)
	require.Equal(t, wire.ShardProgress, emitted[0].OpType)
	require.Equal(t, wire.SeqNum(42), emitted[0].SeqNum)
}

func TestWatchAppliesEventsInOrder(t *testing.T) {
	sc := newTestCollection(t)
	src := newMemViewSource()
	done := make(chan struct{})
	go func() {
		sc.Watch(src)
		close(done)
	}()

	src.PushCreated(View{ID: 1, SequencerIDs: []wire.NodeID{1}, StorageIDs: []wire.NodeID{1}})
	src.PushFinalized(FinalizedView{View: View{ID: 1, SequencerIDs: []wire.NodeID{1}, StorageIDs: []wire.NodeID{1}}})
	require.NoError(t, src.Close())
	<-done

	require.Equal(t, uint16(1), sc.CurrentView().ID)
}
