package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayHeaderRoundTrip(t *testing.T) {
	h := GatewayHeader{
		MessageType:    FuncCallMsg,
		FuncID:         7,
		MethodID:       0,
		ClientID:       42,
		CallID:         1000,
		PayloadSize:    5,
		ProcessingTime: 1500,
		DispatchDelay:  30,
	}

	buf := h.Encode()
	assert.Len(t, buf, GatewayHeaderSize)

	got, err := DecodeGatewayHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestGatewayHeaderDecodeTooShort(t *testing.T) {
	_, err := DecodeGatewayHeader(make([]byte, 10))
	assert.Error(t, err)
}

func TestGatewayMessageTypeString(t *testing.T) {
	assert.Equal(t, "FUNC_CALL", FuncCallMsg.String())
	assert.Equal(t, "FUNC_CALL_COMPLETE", FuncCallComplete.String())
	assert.Contains(t, GatewayMessageType(99).String(), "GatewayMessageType")
}

func TestFuncCallFromHeader(t *testing.T) {
	h := GatewayHeader{FuncID: 7, MethodID: 1, ClientID: 2, CallID: 3}
	assert.Equal(t, FuncCall{FuncID: 7, MethodID: 1, ClientID: 2, CallID: 3}, h.FuncCall())
}

func TestEngineHandshakePayloadRoundTrip(t *testing.T) {
	p := EngineHandshakePayload{NodeID: 3, Capacity: 64}
	buf := p.Encode()
	assert.Len(t, buf, EngineHandshakePayloadSize)

	got, err := DecodeEngineHandshakePayload(buf)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestEngineHandshakePayloadDecodeTooShort(t *testing.T) {
	_, err := DecodeEngineHandshakePayload(make([]byte, 2))
	assert.Error(t, err)
}
