package wire

import (
	"testing"

	"github.com/samsamfire/cand/pkg/canderr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	for slot := uint8(0); slot <= MaxSlot; slot++ {
		for fnType := uint8(0); fnType <= MaxFnType; fnType++ {
			for fnCount := uint8(1); fnCount <= MaxFnCount; fnCount++ {
				for _, fragment := range []bool{false, true} {
					for _, dt := range []DataType{DataTypeCommandOrResponse, DataTypeStreamOrAck} {
						a, err := NewAddress(slot, fnType, fnCount, fragment, dt)
						require.NoError(t, err)

						b := a.Bytes()
						decoded := ParseAddress(b[0], b[1])

						assert.Equal(t, slot, decoded.Slot())
						assert.Equal(t, fnType, decoded.FnType())
						assert.Equal(t, fnCount, decoded.FnCount())
						assert.Equal(t, fragment, decoded.Fragment())
						assert.Equal(t, dt, decoded.DataType())
					}
				}
			}
		}
	}
}

func TestNewAddressRejectsOutOfRange(t *testing.T) {
	_, err := NewAddress(MaxSlot+1, 0, 1, false, DataTypeCommandOrResponse)
	assert.ErrorIs(t, err, canderr.ErrInvalidArgs)

	_, err = NewAddress(0, MaxFnType+1, 1, false, DataTypeCommandOrResponse)
	assert.ErrorIs(t, err, canderr.ErrInvalidArgs)

	_, err = NewAddress(0, 0, MaxFnCount+1, false, DataTypeCommandOrResponse)
	assert.ErrorIs(t, err, canderr.ErrInvalidArgs)
}

func TestFnCountZeroIsReserved(t *testing.T) {
	_, err := NewAddress(0, 0, 0, false, DataTypeCommandOrResponse)
	assert.ErrorIs(t, err, canderr.ErrInvalidArgs)
}

func TestWithFragment(t *testing.T) {
	a, err := NewAddress(1, 2, 3, false, DataTypeCommandOrResponse)
	require.NoError(t, err)
	assert.False(t, a.Fragment())

	a = a.WithFragment(true)
	assert.True(t, a.Fragment())
	assert.Equal(t, uint8(1), a.Slot())
	assert.Equal(t, uint8(2), a.FnType())
	assert.Equal(t, uint8(3), a.FnCount())
}

func TestBigEndianWireOrder(t *testing.T) {
	a, err := NewAddress(0x1C, 11, 1, false, DataTypeCommandOrResponse)
	require.NoError(t, err)
	assert.EqualValues(t, 0xE2C4, a)
	b := a.Bytes()
	assert.Equal(t, byte(0xE2), b[0])
	assert.Equal(t, byte(0xC4), b[1])
}

func TestCANHeaderBytes(t *testing.T) {
	for slot := uint8(0); slot <= MaxSlot; slot++ {
		hdr := CANHeaderBytes(slot)
		assert.Equal(t, byte(0x00), hdr[0])
		assert.Equal(t, slot, hdr[1])
	}
}
