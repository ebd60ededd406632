package fragment

import (
	"github.com/samsamfire/cand/internal/crc"
	"github.com/samsamfire/cand/internal/fifo"
	"github.com/samsamfire/cand/pkg/canderr"
)

type decoderState uint8

const (
	stateEmpty decoderState = iota
	stateAccumulating
	stateReady
	stateCRCError
)

// Decoder reassembles one channel's inbound fragment sequence into
// complete payloads, validating the trailing CRC-16 when one is
// present. One Decoder is owned per registered channel, per direction
// (command-response and streaming each get their own).
type Decoder struct {
	state decoderState
	buf   *fifo.Buffer
}

// NewDecoder returns a Decoder in the Idle state, ready to accept the
// first frame of a new message.
func NewDecoder() *Decoder {
	return &Decoder{state: stateEmpty, buf: fifo.NewBuffer()}
}

// Feed delivers one received frame's fragment bit and payload bytes
// (address header already stripped) to the state machine.
func (d *Decoder) Feed(fragment bool, payload []byte) {
	switch d.state {
	case stateEmpty, stateReady, stateCRCError:
		// A fresh frame always starts a new message, discarding any
		// unconsumed previous result — the reassembly buffer is reset
		// once Get has been called, but the state machine also treats
		// frame arrival for a new message as an implicit reset so a
		// sender is never blocked by a consumer that never called Get.
		d.buf.Flush()

		if !fragment {
			d.buf.Append(payload, nil)
			d.state = stateReady
			return
		}
		d.buf.Append(payload, nil)
		d.state = stateAccumulating

	case stateAccumulating:
		d.buf.Append(payload, nil)
		if fragment {
			return
		}
		d.finish()
	}
}

// finish is called on the frame that carries Fragment=0 while
// Accumulating: it validates the trailing CRC and transitions to Ready
// or CRCError.
func (d *Decoder) finish() {
	all := d.buf.Bytes()
	n := len(all)
	if n < 2 {
		// Malformed: a multi-frame message always carries at least the
		// 2 trailing CRC bytes.
		d.state = stateCRCError
		return
	}

	message := all[:n-2]
	var want crc.CRC16
	want.Block(message)

	gotLo, gotHi := all[n-2], all[n-1]
	got := crc.CRC16(uint16(gotLo) | uint16(gotHi)<<8)

	d.buf.Truncate(2)
	if got != want {
		d.state = stateCRCError
		return
	}
	d.state = stateReady
}

// Get returns the number of assembled payload bytes (CRC excluded) on
// success. It returns canderr.ErrDataPending if assembly is still in
// progress, canderr.ErrWrongCRC if the last message failed CRC
// validation, canderr.ErrProtocol if the assembled message is larger
// than buf, or canderr.ErrInvalidSequence if no message has been
// assembled. A successful or CRC-failed Get consumes the buffer: the
// next Get returns ErrInvalidSequence until a new message arrives.
func (d *Decoder) Get(buf []byte) (int, error) {
	switch d.state {
	case stateAccumulating:
		return 0, canderr.ErrDataPending
	case stateCRCError:
		d.state = stateEmpty
		d.buf.Flush()
		return 0, canderr.ErrWrongCRC
	case stateReady:
		assembled := d.buf.Bytes()
		if len(assembled) > len(buf) {
			d.state = stateEmpty
			d.buf.Flush()
			return 0, canderr.ErrProtocol
		}
		n := copy(buf, assembled)
		d.state = stateEmpty
		d.buf.Flush()
		return n, nil
	default: // stateEmpty
		return 0, canderr.ErrInvalidSequence
	}
}

// Pending reports the number of bytes accumulated so far for a message
// still in progress (0 outside the Accumulating state). Callers bound an
// overall message size and want to fail fast on a runaway sender should
// poll this between Feed calls rather than waiting for Get.
func (d *Decoder) Pending() int {
	if d.state != stateAccumulating {
		return 0
	}
	return d.buf.Len()
}

// Flush releases the buffer and resets all flags, discarding any
// in-progress or unconsumed assembly.
func (d *Decoder) Flush() {
	d.buf.Flush()
	d.state = stateEmpty
}
