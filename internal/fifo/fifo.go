// Package fifo implements the growable byte buffer used to reassemble
// fragmented payloads. Unlike a fixed-capacity ring buffer, reassembly
// buffers must grow to an a-priori unknown payload size (up to the
// largest payload the fleet's devices ever emit); we amortise the
// growth cost and recycle the backing array on Flush via a sync.Pool
// instead of reallocating on every fragment.
package fifo

import (
	"sync"

	"github.com/samsamfire/cand/internal/crc"
)

const initialCapacity = 64

var pool = sync.Pool{
	New: func() any {
		buf := make([]byte, 0, initialCapacity)
		return &buf
	},
}

// Buffer accumulates bytes across several Append calls (one per received
// fragment) and is reset with Flush once the assembled message has been
// consumed or discarded.
type Buffer struct {
	data []byte
}

// NewBuffer returns an empty buffer backed by a pooled byte slice.
func NewBuffer() *Buffer {
	b := &Buffer{data: *(pool.Get().(*[]byte))}
	b.data = b.data[:0]
	return b
}

// Append adds p to the end of the buffer. When step is non-nil, every
// appended byte also advances the running CRC — this lets the decoder
// compute the CRC incrementally, fragment by fragment, instead of
// re-walking the whole buffer once reassembly completes.
func (b *Buffer) Append(p []byte, step *crc.CRC16) {
	b.ensure()
	b.data = append(b.data, p...)
	if step != nil {
		step.Block(p)
	}
}

// Len returns the number of bytes currently held.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Bytes returns the accumulated bytes. The returned slice is only valid
// until the next Append or Flush.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Truncate drops the last n bytes, used to strip a trailing CRC pair
// once it has been validated.
func (b *Buffer) Truncate(n int) {
	if n > len(b.data) {
		n = len(b.data)
	}
	b.data = b.data[:len(b.data)-n]
}

// Flush releases the backing array back to the pool and empties the
// buffer. The buffer is safe to reuse immediately after Flush; a fresh
// backing array is taken from the pool lazily, on the next Append.
func (b *Buffer) Flush() {
	if b.data == nil {
		return
	}
	recycled := b.data[:0]
	pool.Put(&recycled)
	b.data = nil
}

// ensure re-acquires a backing array from the pool if Flush released it;
// called internally so Append after Flush doesn't panic on a nil slice.
func (b *Buffer) ensure() {
	if b.data == nil {
		b.data = *(pool.Get().(*[]byte))
		b.data = b.data[:0]
	}
}
