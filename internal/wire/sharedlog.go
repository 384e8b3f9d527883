package wire

import (
	"encoding/binary"
	"fmt"
)

// OpType identifies the purpose of a shared-log message.
type OpType uint8

const (
	Replicate OpType = iota + 1
	ReadAt
	Metalogs
	ShardProgress
	ReadOK
	DataLost
	IndexData
	Response
)

func (t OpType) String() string {
	switch t {
	case Replicate:
		return "REPLICATE"
	case ReadAt:
		return "READ_AT"
	case Metalogs:
		return "METALOGS"
	case ShardProgress:
		return "SHARD_PROGRESS"
	case ReadOK:
		return "READ_OK"
	case DataLost:
		return "DATA_LOST"
	case IndexData:
		return "INDEX_DATA"
	case Response:
		return "RESPONSE"
	default:
		return fmt.Sprintf("OpType(%d)", uint8(t))
	}
}

// Flag bits carried in SharedLogHeader.Flags.
const (
	FlagNone uint8 = 0
)

// SharedLogHeaderSize is the fixed size of a shared-log message
// header in bytes. Unlike the Gateway header, the fields here already
// fill the struct with no extra padding.
const SharedLogHeaderSize = 52

// SharedLogHeader is the fixed-size header carried on every
// storage/engine/sequencer shared-log channel, immediately followed
// by PayloadSize bytes of payload.
type SharedLogHeader struct {
	OpType          OpType
	Flags           uint8
	SrcNodeID       NodeID
	ViewID          uint16
	LogspaceID      LogspaceID
	SeqNum          SeqNum
	MetalogPosition uint64
	UserLogspace    uint32
	UserTag         uint64
	ClientData      uint64
	PayloadSize     uint32
}

// Encode writes h as a SharedLogHeaderSize-byte big-endian buffer.
func (h SharedLogHeader) Encode() []byte {
	buf := make([]byte, SharedLogHeaderSize)
	buf[0] = byte(h.OpType)
	buf[1] = h.Flags
	binary.BigEndian.PutUint16(buf[2:4], uint16(h.SrcNodeID))
	binary.BigEndian.PutUint16(buf[4:6], h.ViewID)
	// bytes [6:8) are reserved, left zero.
	binary.BigEndian.PutUint32(buf[8:12], uint32(h.LogspaceID))
	binary.BigEndian.PutUint64(buf[12:20], uint64(h.SeqNum))
	binary.BigEndian.PutUint64(buf[20:28], h.MetalogPosition)
	binary.BigEndian.PutUint32(buf[28:32], h.UserLogspace)
	binary.BigEndian.PutUint64(buf[32:40], h.UserTag)
	binary.BigEndian.PutUint64(buf[40:48], h.ClientData)
	binary.BigEndian.PutUint32(buf[48:52], h.PayloadSize)
	return buf
}

// DecodeSharedLogHeader parses a SharedLogHeaderSize-byte buffer
// produced by Encode. Returns an error if buf is too short.
func DecodeSharedLogHeader(buf []byte) (SharedLogHeader, error) {
	if len(buf) < SharedLogHeaderSize {
		return SharedLogHeader{}, fmt.Errorf("wire: shared-log header needs %d bytes, got %d", SharedLogHeaderSize, len(buf))
	}
	return SharedLogHeader{
		OpType:          OpType(buf[0]),
		Flags:           buf[1],
		SrcNodeID:       NodeID(binary.BigEndian.Uint16(buf[2:4])),
		ViewID:          binary.BigEndian.Uint16(buf[4:6]),
		LogspaceID:      LogspaceID(binary.BigEndian.Uint32(buf[8:12])),
		SeqNum:          SeqNum(binary.BigEndian.Uint64(buf[12:20])),
		MetalogPosition: binary.BigEndian.Uint64(buf[20:28]),
		UserLogspace:    binary.BigEndian.Uint32(buf[28:32]),
		UserTag:         binary.BigEndian.Uint64(buf[32:40]),
		ClientData:      binary.BigEndian.Uint64(buf[40:48]),
		PayloadSize:     binary.BigEndian.Uint32(buf[48:52]),
	}, nil
}
