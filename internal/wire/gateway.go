package wire

import (
	"encoding/binary"
	"fmt"
)

// GatewayMessageType identifies the purpose of a Gateway message.
type GatewayMessageType uint16

const (
	EngineHandshake GatewayMessageType = iota + 1
	FuncCallMsg
	FuncCallComplete
	FuncCallFailed
)

func (t GatewayMessageType) String() string {
	switch t {
	case EngineHandshake:
		return "ENGINE_HANDSHAKE"
	case FuncCallMsg:
		return "FUNC_CALL"
	case FuncCallComplete:
		return "FUNC_CALL_COMPLETE"
	case FuncCallFailed:
		return "FUNC_CALL_FAILED"
	default:
		return fmt.Sprintf("GatewayMessageType(%d)", uint16(t))
	}
}

// GatewayHeaderSize is the fixed, padded size of a Gateway message
// header in bytes.
const GatewayHeaderSize = 64

// GatewayHeader is the fixed-size header carried on every
// engine<->gateway connection, immediately followed by PayloadSize
// bytes of payload.
type GatewayHeader struct {
	MessageType    GatewayMessageType
	FuncID         uint16
	MethodID       uint16
	ClientID       uint16
	CallID         uint32
	PayloadSize    uint32
	ProcessingTime uint32 // microseconds
	DispatchDelay  uint32 // microseconds
}

// FuncCall extracts the FuncCall descriptor carried by this header.
func (h GatewayHeader) FuncCall() FuncCall {
	return FuncCall{FuncID: h.FuncID, MethodID: h.MethodID, ClientID: h.ClientID, CallID: h.CallID}
}

// Encode writes h as a GatewayHeaderSize-byte big-endian buffer.
func (h GatewayHeader) Encode() []byte {
	buf := make([]byte, GatewayHeaderSize)
	binary.BigEndian.PutUint16(buf[0:2], uint16(h.MessageType))
	binary.BigEndian.PutUint16(buf[2:4], h.FuncID)
	binary.BigEndian.PutUint16(buf[4:6], h.MethodID)
	binary.BigEndian.PutUint16(buf[6:8], h.ClientID)
	binary.BigEndian.PutUint32(buf[8:12], h.CallID)
	binary.BigEndian.PutUint32(buf[12:16], h.PayloadSize)
	binary.BigEndian.PutUint32(buf[16:20], h.ProcessingTime)
	binary.BigEndian.PutUint32(buf[20:24], h.DispatchDelay)
	// bytes [24:64) are reserved padding, left zero.
	return buf
}

// DecodeGatewayHeader parses a GatewayHeaderSize-byte buffer produced
// by Encode. Returns an error if buf is too short.
func DecodeGatewayHeader(buf []byte) (GatewayHeader, error) {
	if len(buf) < GatewayHeaderSize {
		return GatewayHeader{}, fmt.Errorf("wire: gateway header needs %d bytes, got %d", GatewayHeaderSize, len(buf))
	}
	return GatewayHeader{
		MessageType:    GatewayMessageType(binary.BigEndian.Uint16(buf[0:2])),
		FuncID:         binary.BigEndian.Uint16(buf[2:4]),
		MethodID:       binary.BigEndian.Uint16(buf[4:6]),
		ClientID:       binary.BigEndian.Uint16(buf[6:8]),
		CallID:         binary.BigEndian.Uint32(buf[8:12]),
		PayloadSize:    binary.BigEndian.Uint32(buf[12:16]),
		ProcessingTime: binary.BigEndian.Uint32(buf[16:20]),
		DispatchDelay:  binary.BigEndian.Uint32(buf[20:24]),
	}, nil
}

// EngineHandshakePayloadSize is the fixed size of the payload carried
// on the first ENGINE_HANDSHAKE message an engine sends a gateway
// after connecting.
const EngineHandshakePayloadSize = 10

// EngineHandshakePayload announces an engine's identity and
// concurrent-call capacity to the gateway it just connected to.
type EngineHandshakePayload struct {
	NodeID   NodeID
	Capacity int64
}

// Encode writes p as an EngineHandshakePayloadSize-byte big-endian
// buffer.
func (p EngineHandshakePayload) Encode() []byte {
	buf := make([]byte, EngineHandshakePayloadSize)
	binary.BigEndian.PutUint16(buf[0:2], uint16(p.NodeID))
	binary.BigEndian.PutUint64(buf[2:10], uint64(p.Capacity))
	return buf
}

// DecodeEngineHandshakePayload parses a buffer produced by Encode.
func DecodeEngineHandshakePayload(buf []byte) (EngineHandshakePayload, error) {
	if len(buf) < EngineHandshakePayloadSize {
		return EngineHandshakePayload{}, fmt.Errorf("wire: engine handshake payload needs %d bytes, got %d", EngineHandshakePayloadSize, len(buf))
	}
	return EngineHandshakePayload{
		NodeID:   NodeID(binary.BigEndian.Uint16(buf[0:2])),
		Capacity: int64(binary.BigEndian.Uint64(buf[2:10])),
	}, nil
}
