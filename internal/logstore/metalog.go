package logstore

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// MetalogRecord confirms the final position of one previously
// replicated seqnum. Records with Confirmed == false confirm nothing;
// the logspace's tail metalog position advances through
// MetalogBatch.Position.
type MetalogRecord struct {
	SeqNum    uint64
	Confirmed bool
}

// MetalogBatch is the parsed form of one METALOGS message payload: a
// sequencer-declared batch of position confirmations plus the new
// tail metalog position for the logspace.
type MetalogBatch struct {
	Position uint64
	Records  []MetalogRecord
}

// Field numbers for the wire schema the external sequencer uses for a
// METALOGS payload. A METALOGS message arrives from the sequencer's
// global-cut FSM, so this is the sequencer's protobuf schema, not a
// format owned by this package; this module only needs to decode (and,
// for tests, re-encode) it, so the schema is reproduced directly
// against protowire rather than through generated message types.
const (
	metalogBatchPositionField   protowire.Number = 1
	metalogBatchRecordsField    protowire.Number = 2
	metalogRecordSeqNumField    protowire.Number = 1
	metalogRecordConfirmedField protowire.Number = 2
)

// EncodeMetalogBatch serializes b using the sequencer's METALOGS
// protobuf wire schema: Position as field 1, each record as a
// length-delimited field 2 message. Proto3-style: zero-valued scalar
// fields are omitted.
func EncodeMetalogBatch(b MetalogBatch) []byte {
	var buf []byte
	if b.Position != 0 {
		buf = protowire.AppendTag(buf, metalogBatchPositionField, protowire.VarintType)
		buf = protowire.AppendVarint(buf, b.Position)
	}
	for _, r := range b.Records {
		buf = protowire.AppendTag(buf, metalogBatchRecordsField, protowire.BytesType)
		buf = protowire.AppendBytes(buf, encodeMetalogRecord(r))
	}
	return buf
}

func encodeMetalogRecord(r MetalogRecord) []byte {
	var buf []byte
	if r.SeqNum != 0 {
		buf = protowire.AppendTag(buf, metalogRecordSeqNumField, protowire.VarintType)
		buf = protowire.AppendVarint(buf, r.SeqNum)
	}
	if r.Confirmed {
		buf = protowire.AppendTag(buf, metalogRecordConfirmedField, protowire.VarintType)
		buf = protowire.AppendVarint(buf, 1)
	}
	return buf
}

// DecodeMetalogBatch parses a buffer produced by EncodeMetalogBatch
// (or by the sequencer itself).
func DecodeMetalogBatch(buf []byte) (MetalogBatch, error) {
	var b MetalogBatch
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return MetalogBatch{}, fmt.Errorf("logstore: metalog batch: invalid tag: %w", protowire.ParseError(n))
		}
		buf = buf[n:]
		switch num {
		case metalogBatchPositionField:
			v, n, err := consumeVarintField(buf, typ)
			if err != nil {
				return MetalogBatch{}, fmt.Errorf("logstore: metalog batch: position: %w", err)
			}
			b.Position = v
			buf = buf[n:]
		case metalogBatchRecordsField:
			if typ != protowire.BytesType {
				return MetalogBatch{}, fmt.Errorf("logstore: metalog batch: records field has wire type %d, want bytes", typ)
			}
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return MetalogBatch{}, fmt.Errorf("logstore: metalog batch: invalid record bytes: %w", protowire.ParseError(n))
			}
			rec, err := decodeMetalogRecord(v)
			if err != nil {
				return MetalogBatch{}, err
			}
			b.Records = append(b.Records, rec)
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return MetalogBatch{}, fmt.Errorf("logstore: metalog batch: invalid field %d: %w", num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	return b, nil
}

func decodeMetalogRecord(buf []byte) (MetalogRecord, error) {
	var r MetalogRecord
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return MetalogRecord{}, fmt.Errorf("logstore: metalog record: invalid tag: %w", protowire.ParseError(n))
		}
		buf = buf[n:]
		switch num {
		case metalogRecordSeqNumField:
			v, n, err := consumeVarintField(buf, typ)
			if err != nil {
				return MetalogRecord{}, fmt.Errorf("logstore: metalog record: seq_num: %w", err)
			}
			r.SeqNum = v
			buf = buf[n:]
		case metalogRecordConfirmedField:
			v, n, err := consumeVarintField(buf, typ)
			if err != nil {
				return MetalogRecord{}, fmt.Errorf("logstore: metalog record: confirmed: %w", err)
			}
			r.Confirmed = v != 0
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return MetalogRecord{}, fmt.Errorf("logstore: metalog record: invalid field %d: %w", num, protowire.ParseError(n))
			}
			buf = buf[n:]
		}
	}
	return r, nil
}

// consumeVarintField validates typ is VarintType and consumes the
// following varint from buf, shared by every uint64/bool scalar field
// in this schema.
func consumeVarintField(buf []byte, typ protowire.Type) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("wire type %d, want varint", typ)
	}
	v, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return 0, 0, fmt.Errorf("invalid varint: %w", protowire.ParseError(n))
	}
	return v, n, nil
}
