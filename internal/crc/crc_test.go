package crc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSingle(t *testing.T) {
	var c CRC16
	c.Single(10)
	assert.EqualValues(t, 0x0780, c)
}

func TestBlockMatchesRepeatedSingle(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}

	var byStep CRC16
	for _, b := range data {
		byStep.Single(b)
	}

	var byBlock CRC16
	byBlock.Block(data)

	assert.Equal(t, byStep, byBlock)
}

func TestEmptyBlockIsNoop(t *testing.T) {
	var c CRC16
	c.Block(nil)
	assert.EqualValues(t, 0, c)
}

func TestSingleBitFlipChangesResult(t *testing.T) {
	data := []byte{0x01, 0x0D, 0xAB, 0xCD, 0xEF, 0x12, 0x34}

	var base CRC16
	base.Block(data)

	for i := range data {
		for bit := 0; bit < 8; bit++ {
			corrupted := append([]byte(nil), data...)
			corrupted[i] ^= 1 << bit

			var got CRC16
			got.Block(corrupted)
			assert.NotEqual(t, base, got, "byte %d bit %d did not change CRC", i, bit)
		}
	}
}
