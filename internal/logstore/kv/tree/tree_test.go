package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boki-faas/boki/internal/logstore/kv"
)

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestTreeBackendPutAndGet(t *testing.T) {
	b := openTestBackend(t)
	require.NoError(t, b.InstallLogSpace(1))

	key := kv.Key{LogspaceID: 1, SeqNum: 42}
	require.NoError(t, b.PutBatch(kv.Batch{
		LogspaceID: 1,
		Keys:       []kv.Key{key},
		Values:     [][]byte{[]byte("payload")},
	}))

	v, ok, err := b.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), v)
}

func TestTreeBackendGetMissReturnsNotOK(t *testing.T) {
	b := openTestBackend(t)
	require.NoError(t, b.InstallLogSpace(1))

	_, ok, err := b.Get(kv.Key{LogspaceID: 1, SeqNum: 7})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTreeBackendGetFromUninstalledLogspace(t *testing.T) {
	b := openTestBackend(t)
	_, ok, err := b.Get(kv.Key{LogspaceID: 99, SeqNum: 1})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTreeBackendPutBatchCreatesBucketImplicitly(t *testing.T) {
	b := openTestBackend(t)
	key := kv.Key{LogspaceID: 3, SeqNum: 1}
	require.NoError(t, b.PutBatch(kv.Batch{
		LogspaceID: 3,
		Keys:       []kv.Key{key},
		Values:     [][]byte{[]byte("x")},
	}))
	v, ok, err := b.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("x"), v)
}

func TestTreeBackendMultipleLogspacesIsolated(t *testing.T) {
	b := openTestBackend(t)
	require.NoError(t, b.InstallLogSpace(1))
	require.NoError(t, b.InstallLogSpace(2))

	require.NoError(t, b.PutBatch(kv.Batch{
		LogspaceID: 1,
		Keys:       []kv.Key{{LogspaceID: 1, SeqNum: 1}},
		Values:     [][]byte{[]byte("one")},
	}))

	_, ok, err := b.Get(kv.Key{LogspaceID: 2, SeqNum: 1})
	require.NoError(t, err)
	assert.False(t, ok)
}
