package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedLogHeaderRoundTrip(t *testing.T) {
	h := SharedLogHeader{
		OpType:          Replicate,
		Flags:           FlagNone,
		SrcNodeID:       1,
		ViewID:          6,
		LogspaceID:      NewLogspaceID(1, 1),
		SeqNum:          0x100,
		MetalogPosition: 0,
		UserLogspace:    0,
		UserTag:         0,
		ClientData:      0xdeadbeef,
		PayloadSize:     3,
	}

	buf := h.Encode()
	assert.Len(t, buf, SharedLogHeaderSize)

	got, err := DecodeSharedLogHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestSharedLogHeaderDecodeTooShort(t *testing.T) {
	_, err := DecodeSharedLogHeader(make([]byte, 10))
	assert.Error(t, err)
}

func TestOpTypeString(t *testing.T) {
	assert.Equal(t, "REPLICATE", Replicate.String())
	assert.Equal(t, "DATA_LOST", DataLost.String())
	assert.Contains(t, OpType(200).String(), "OpType")
}

func TestLogspaceIDPacking(t *testing.T) {
	id := NewLogspaceID(1, 1)
	assert.Equal(t, LogspaceID(0x00010001), id)
	assert.Equal(t, uint16(1), id.SequencerID())
	assert.Equal(t, uint16(1), id.ViewID())
}

func TestFullCallIDPacking(t *testing.T) {
	id := NewFullCallID(42, 1000)
	assert.Equal(t, uint16(42), id.ClientID())
	assert.Equal(t, uint64(1000), id.LocalCallID())
}
