package fifo

import (
	"testing"

	"github.com/samsamfire/cand/internal/crc"
	"github.com/stretchr/testify/assert"
)

func TestAppendAccumulates(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte{1, 2, 3}, nil)
	b.Append([]byte{4, 5}, nil)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, b.Bytes())
	assert.Equal(t, 5, b.Len())
}

func TestAppendStepsCRC(t *testing.T) {
	b := NewBuffer()
	var stepped crc.CRC16
	b.Append([]byte{1, 2, 3}, &stepped)

	var expected crc.CRC16
	expected.Block([]byte{1, 2, 3})
	assert.Equal(t, expected, stepped)
}

func TestTruncateDropsTrailingBytes(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte{1, 2, 3, 4, 5}, nil)
	b.Truncate(2)
	assert.Equal(t, []byte{1, 2, 3}, b.Bytes())
}

func TestFlushResetsAndIsReusable(t *testing.T) {
	b := NewBuffer()
	b.Append([]byte{1, 2, 3}, nil)
	b.Flush()
	assert.Equal(t, 0, b.Len())

	b.Append([]byte{9}, nil)
	assert.Equal(t, []byte{9}, b.Bytes())
}

func TestGrowsPastInitialCapacity(t *testing.T) {
	b := NewBuffer()
	big := make([]byte, initialCapacity*4)
	for i := range big {
		big[i] = byte(i)
	}
	b.Append(big, nil)
	assert.Equal(t, big, b.Bytes())
}
