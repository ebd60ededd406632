// Package fragment implements the fragmentation/reassembly codec: it
// splits payloads larger than one frame's 6 payload bytes into a
// fragment sequence with a trailing CRC-16, and reassembles an inbound
// fragment sequence back into a payload, validating the CRC. It is
// modeled on the reference stack's SDO block-transfer fragmentation
// (pkg/sdo/download_block.go, upload_block.go), generalised from SDO's
// 7-byte segments to this protocol's 6-byte ones and from SDO's
// fixed-position trailing CRC to this protocol's straddling one.
package fragment

import (
	"github.com/samsamfire/cand/internal/crc"
	"github.com/samsamfire/cand/pkg/canderr"
	"github.com/samsamfire/cand/pkg/wire"
)

// Encode splits payload into the frame sequence that carries it,
// addressed with addr (the caller sets addr's DataType; Fragment is
// overwritten per-frame by the encoder).
//
// If len(payload) <= 6, exactly one frame is emitted with Fragment=0 and
// no CRC. Otherwise a CRC-16 is computed over the whole payload and
// appended (low byte then high byte) before splitting into 6-byte
// chunks; the trailing CRC bytes may straddle the last two frames, by
// design — this matches the legacy wire protocol bit for bit.
func Encode(addr wire.Address, payload []byte) ([]wire.Frame, error) {
	if len(payload) == 0 {
		return nil, canderr.ErrInvalidArgs
	}

	if len(payload) <= wire.MaxPayload {
		return []wire.Frame{{
			Address: addr.WithFragment(false),
			Payload: append([]byte(nil), payload...),
		}}, nil
	}

	var sum crc.CRC16
	sum.Block(payload)

	full := make([]byte, len(payload)+2)
	copy(full, payload)
	full[len(full)-2] = byte(sum)
	full[len(full)-1] = byte(sum >> 8)

	numFrames := (len(full) + wire.MaxPayload - 1) / wire.MaxPayload
	frames := make([]wire.Frame, 0, numFrames)
	for i := 0; i < numFrames; i++ {
		start := i * wire.MaxPayload
		end := start + wire.MaxPayload
		if end > len(full) {
			end = len(full)
		}
		last := i == numFrames-1
		frames = append(frames, wire.Frame{
			Address: addr.WithFragment(!last),
			Payload: append([]byte(nil), full[start:end]...),
		})
	}
	return frames, nil
}
