package logstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetalogBatchRoundTrip(t *testing.T) {
	batch := MetalogBatch{
		Position: 0xabc,
		Records: []MetalogRecord{
			{SeqNum: 0x100, Confirmed: true},
			{SeqNum: 0x101, Confirmed: false},
		},
	}
	decoded, err := DecodeMetalogBatch(EncodeMetalogBatch(batch))
	require.NoError(t, err)
	assert.Equal(t, batch, decoded)
}

func TestMetalogBatchEmptyRecords(t *testing.T) {
	batch := MetalogBatch{Position: 5}
	decoded, err := DecodeMetalogBatch(EncodeMetalogBatch(batch))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), decoded.Position)
	assert.Empty(t, decoded.Records)
}

func TestDecodeMetalogBatchInvalidFieldNumberErrors(t *testing.T) {
	// Tag byte 0x01 decodes to field number 0, wire type 1 — field
	// number 0 is never valid in protobuf.
	_, err := DecodeMetalogBatch([]byte{0x01, 0x02, 0x03})
	assert.Error(t, err)
}

func TestDecodeMetalogBatchTruncatedErrors(t *testing.T) {
	buf := EncodeMetalogBatch(MetalogBatch{Position: 1, Records: []MetalogRecord{{SeqNum: 1, Confirmed: true}}})
	_, err := DecodeMetalogBatch(buf[:len(buf)-1])
	assert.Error(t, err)
}
