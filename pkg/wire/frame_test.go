package wire

import (
	"testing"

	"github.com/samsamfire/cand/pkg/canderr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	addr, err := NewAddress(5, 6, 7, true, DataTypeStreamOrAck)
	require.NoError(t, err)

	f := Frame{Address: addr, Payload: []byte{1, 2, 3, 4, 5, 6}}
	raw := f.Encode()
	assert.Len(t, raw, 8)

	decoded, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, addr, decoded.Address)
	assert.Equal(t, f.Payload, decoded.Payload)
}

func TestDecodeFrameRejectsBadLength(t *testing.T) {
	_, err := DecodeFrame([]byte{0x00})
	assert.ErrorIs(t, err, canderr.ErrProtocol)

	_, err = DecodeFrame(make([]byte, 10))
	assert.ErrorIs(t, err, canderr.ErrProtocol)
}

func TestNewAckFrame(t *testing.T) {
	raw, err := NewAckFrame(0x10, 5, 2)
	require.NoError(t, err)
	require.Len(t, raw, 4)

	assert.Equal(t, byte(0x00), raw[0])
	assert.Equal(t, byte(0x10), raw[1])

	addr := ParseAddress(raw[2], raw[3])
	assert.Equal(t, uint8(0x10), addr.Slot())
	assert.Equal(t, uint8(5), addr.FnType())
	assert.Equal(t, uint8(2), addr.FnCount())
	assert.False(t, addr.Fragment())
	assert.Equal(t, DataTypeStreamOrAck, addr.DataType())
}
