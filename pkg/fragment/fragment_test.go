package fragment

import (
	"testing"

	"github.com/samsamfire/cand/pkg/canderr"
	"github.com/samsamfire/cand/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAddr(t *testing.T) wire.Address {
	t.Helper()
	a, err := wire.NewAddress(1, 2, 3, false, wire.DataTypeCommandOrResponse)
	require.NoError(t, err)
	return a
}

func feedAll(d *Decoder, frames []wire.Frame) {
	for _, f := range frames {
		d.Feed(f.Address.Fragment(), f.Payload)
	}
}

func TestRoundTripAllSizes(t *testing.T) {
	addr := testAddr(t)
	for size := 1; size <= 1024; size++ {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i)
		}
		frames, err := Encode(addr, payload)
		require.NoError(t, err)

		d := NewDecoder()
		feedAll(d, frames)

		out := make([]byte, size)
		n, err := d.Get(out)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, size, n)
		assert.Equal(t, payload, out[:n])
	}
}

func TestExactlySixBytesIsOneFrameNoCRC(t *testing.T) {
	addr := testAddr(t)
	payload := []byte{1, 2, 3, 4, 5, 6}
	frames, err := Encode(addr, payload)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.False(t, frames[0].Address.Fragment())
	assert.Equal(t, payload, frames[0].Payload)
}

func TestSevenBytesSplitsIntoTwoFragments(t *testing.T) {
	addr := testAddr(t)
	payload := []byte{1, 2, 3, 4, 5, 6, 7}
	frames, err := Encode(addr, payload)
	require.NoError(t, err)
	require.Len(t, frames, 2)

	assert.True(t, frames[0].Address.Fragment())
	assert.Len(t, frames[0].Payload, 6)

	assert.False(t, frames[1].Address.Fragment())
	assert.Len(t, frames[1].Payload, 3) // 1 data byte + CRC lo + CRC hi
}

func TestEncodeDeterministic(t *testing.T) {
	addr := testAddr(t)
	payload := []byte("deterministic payload over six bytes")
	a, err := Encode(addr, payload)
	require.NoError(t, err)
	b, err := Encode(addr, payload)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBitFlipCausesCRCMismatch(t *testing.T) {
	addr := testAddr(t)
	payload := make([]byte, 13)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	frames, err := Encode(addr, payload)
	require.NoError(t, err)

	for fi := range frames {
		for bit := 0; bit < 8; bit++ {
			if len(frames[fi].Payload) == 0 {
				continue
			}
			corrupted := make([]wire.Frame, len(frames))
			for i, f := range frames {
				p := append([]byte(nil), f.Payload...)
				corrupted[i] = wire.Frame{Address: f.Address, Payload: p}
			}
			corrupted[fi].Payload[0] ^= 1 << bit

			d := NewDecoder()
			feedAll(d, corrupted)
			out := make([]byte, len(payload))
			_, err := d.Get(out)
			assert.ErrorIs(t, err, canderr.ErrWrongCRC, "frame %d bit %d", fi, bit)
		}
	}
}

func TestGetMidFragmentReturnsDataPending(t *testing.T) {
	addr := testAddr(t)
	payload := make([]byte, 13)
	frames, err := Encode(addr, payload)
	require.NoError(t, err)

	d := NewDecoder()
	d.Feed(frames[0].Address.Fragment(), frames[0].Payload)

	_, err = d.Get(make([]byte, 13))
	assert.ErrorIs(t, err, canderr.ErrDataPending)
}

func TestGetWithNothingAssembledReturnsInvalidSequence(t *testing.T) {
	d := NewDecoder()
	_, err := d.Get(make([]byte, 8))
	assert.ErrorIs(t, err, canderr.ErrInvalidSequence)
}

func TestGetIsOneShot(t *testing.T) {
	addr := testAddr(t)
	payload := []byte{1, 2, 3}
	frames, err := Encode(addr, payload)
	require.NoError(t, err)

	d := NewDecoder()
	feedAll(d, frames)

	out := make([]byte, 8)
	n, err := d.Get(out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = d.Get(out)
	assert.ErrorIs(t, err, canderr.ErrInvalidSequence)
}

func TestFlushDiscardsInProgressAssembly(t *testing.T) {
	addr := testAddr(t)
	payload := make([]byte, 20)
	frames, err := Encode(addr, payload)
	require.NoError(t, err)

	d := NewDecoder()
	d.Feed(frames[0].Address.Fragment(), frames[0].Payload)
	d.Flush()

	_, err = d.Get(make([]byte, 20))
	assert.ErrorIs(t, err, canderr.ErrInvalidSequence)
}

func TestEncodeRejectsEmptyPayload(t *testing.T) {
	addr := testAddr(t)
	_, err := Encode(addr, nil)
	assert.ErrorIs(t, err, canderr.ErrInvalidArgs)
}
