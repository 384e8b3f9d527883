package logstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boki-faas/boki/internal/logstore/kv"
	"github.com/boki-faas/boki/internal/logstore/kv/mem"
	"github.com/boki-faas/boki/internal/wire"
)

func newTestLogSpace(t *testing.T) (*LogSpace, kv.Backend) {
	t.Helper()
	backend := mem.New()
	id := wire.NewLogspaceID(1, 1)
	require.NoError(t, backend.InstallLogSpace(uint32(id)))
	return NewLogSpace(id, backend), backend
}

func TestStoreRejectsDuplicateSeqNum(t *testing.T) {
	ls, _ := newTestLogSpace(t)
	meta := LogMetaData{SeqNum: 0x100}
	require.NoError(t, ls.Store(meta, []byte("abc")))
	assert.ErrorIs(t, ls.Store(meta, []byte("xyz")), ErrDuplicateSeqNum)
}

func TestReplicateThenReadReturnsPayload(t *testing.T) {
	// REPLICATE then METALOGS confirming, then READ_AT must return
	// READ_OK with the original payload, and the backend must
	// independently agree post-metalog.
	ls, backend := newTestLogSpace(t)
	id := wire.NewLogspaceID(1, 1)
	meta := LogMetaData{SeqNum: 0x100}
	require.NoError(t, ls.Store(meta, []byte("abc")))

	require.NoError(t, ls.ApplyMetalogs(MetalogBatch{
		Position: 1,
		Records:  []MetalogRecord{{SeqNum: 0x100, Confirmed: true}},
	}))

	var got ReadResult
	ls.ReadAt(0x100, func(r ReadResult) { got = r })
	assert.Equal(t, ReadOK, got.Outcome)
	assert.Equal(t, []byte("abc"), got.Payload)

	v, ok, err := backend.Get(kv.Key{LogspaceID: uint32(id), SeqNum: 0x100})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), v)
}

func TestReadAtUnconfirmedIsParkedUntilMetalog(t *testing.T) {
	ls, _ := newTestLogSpace(t)
	require.NoError(t, ls.Store(LogMetaData{SeqNum: 0x100}, []byte("abc")))

	var got *ReadResult
	ls.ReadAt(0x100, func(r ReadResult) { got = &r })
	assert.Nil(t, got, "read on unconfirmed record must not resolve immediately")

	require.NoError(t, ls.ApplyMetalogs(MetalogBatch{
		Records: []MetalogRecord{{SeqNum: 0x100, Confirmed: true}},
	}))
	require.NotNil(t, got)
	assert.Equal(t, ReadOK, got.Outcome)
	assert.Equal(t, []byte("abc"), got.Payload)
}

func TestReadAtUnknownSeqNumIsDataLost(t *testing.T) {
	// READ_AT for a seqnum with no entry anywhere must resolve to
	// DATA_LOST immediately, not be parked.
	ls, _ := newTestLogSpace(t)

	var got *ReadResult
	ls.ReadAt(0x200, func(r ReadResult) { got = &r })
	require.NotNil(t, got)
	assert.Equal(t, ReadDataLost, got.Outcome)
}

func TestSealRejectsFurtherWrites(t *testing.T) {
	ls, _ := newTestLogSpace(t)
	ls.Seal()
	assert.ErrorIs(t, ls.Store(LogMetaData{SeqNum: 1}, []byte("x")), ErrSealed)
	assert.ErrorIs(t, ls.ApplyMetalogs(MetalogBatch{}), ErrSealed)
}

func TestShardProgressDeltaReportsOnce(t *testing.T) {
	ls, _ := newTestLogSpace(t)
	_, ok := ls.TakeShardProgressDelta()
	assert.False(t, ok, "no progress before any store")

	require.NoError(t, ls.Store(LogMetaData{SeqNum: 10}, []byte("a")))
	highest, ok := ls.TakeShardProgressDelta()
	require.True(t, ok)
	assert.Equal(t, uint64(10), highest)

	_, ok = ls.TakeShardProgressDelta()
	assert.False(t, ok, "delta must not repeat without new stores")

	require.NoError(t, ls.Store(LogMetaData{SeqNum: 20}, []byte("b")))
	highest, ok = ls.TakeShardProgressDelta()
	require.True(t, ok)
	assert.Equal(t, uint64(20), highest)
}

func TestSeqNumImmutableAcrossRepeatedGets(t *testing.T) {
	ls, backend := newTestLogSpace(t)
	id := wire.NewLogspaceID(1, 1)
	require.NoError(t, ls.Store(LogMetaData{SeqNum: 1}, []byte("first")))
	require.NoError(t, ls.ApplyMetalogs(MetalogBatch{Records: []MetalogRecord{{SeqNum: 1, Confirmed: true}}}))

	for i := 0; i < 5; i++ {
		v, ok, err := backend.Get(kv.Key{LogspaceID: uint32(id), SeqNum: 1})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("first"), v)
	}
}
