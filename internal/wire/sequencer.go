package wire

import (
	"encoding/binary"
	"fmt"
)

// SequencerMsgKind distinguishes the two envelope kinds exchanged
// with the (external) sequencer consensus module.
type SequencerMsgKind uint8

const (
	LocalCut SequencerMsgKind = iota + 1
	FSMRecords
)

func (k SequencerMsgKind) String() string {
	switch k {
	case LocalCut:
		return "LOCAL_CUT"
	case FSMRecords:
		return "FSM_RECORDS"
	default:
		return fmt.Sprintf("SequencerMsgKind(%d)", uint8(k))
	}
}

// SequencerEnvelopeHeaderSize is the fixed prefix of a sequencer
// message: a 1-byte kind discriminator and a 4-byte big-endian
// payload length.
const SequencerEnvelopeHeaderSize = 5

// SequencerEnvelope carries an opaque, length-prefixed protobuf
// payload destined for or originating from the sequencer's global-cut
// FSM. This package never interprets Payload: the FSM logic and its
// wire schema are owned entirely by the sequencer (INDEX_DATA and
// engine-response routing get the same opaque-passthrough treatment).
type SequencerEnvelope struct {
	Kind    SequencerMsgKind
	Payload []byte
}

// Encode serializes the envelope as [kind(1) | len(4) | payload].
func (e SequencerEnvelope) Encode() []byte {
	buf := make([]byte, SequencerEnvelopeHeaderSize+len(e.Payload))
	buf[0] = byte(e.Kind)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(e.Payload)))
	copy(buf[5:], e.Payload)
	return buf
}

// DecodeSequencerEnvelope parses a buffer produced by Encode. The
// returned Payload aliases buf; copy it if buf will be reused.
func DecodeSequencerEnvelope(buf []byte) (SequencerEnvelope, error) {
	if len(buf) < SequencerEnvelopeHeaderSize {
		return SequencerEnvelope{}, fmt.Errorf("wire: sequencer envelope needs at least %d bytes, got %d", SequencerEnvelopeHeaderSize, len(buf))
	}
	kind := SequencerMsgKind(buf[0])
	n := binary.BigEndian.Uint32(buf[1:5])
	if uint32(len(buf)-SequencerEnvelopeHeaderSize) < n {
		return SequencerEnvelope{}, fmt.Errorf("wire: sequencer envelope declares %d payload bytes, only %d available", n, len(buf)-SequencerEnvelopeHeaderSize)
	}
	return SequencerEnvelope{Kind: kind, Payload: buf[5 : 5+n]}, nil
}
