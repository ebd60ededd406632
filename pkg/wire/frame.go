package wire

import "github.com/samsamfire/cand/pkg/canderr"

// MaxPayload is the largest number of payload bytes one raw frame can
// carry after its 2-byte address header (8 total bytes - 2 header bytes).
const MaxPayload = 6

// AckPayloadSize is the size of the acknowledgement frame's payload:
// just the 2 address bytes, no data.
const AckPayloadSize = 0

// Frame is one raw CAN frame as read from or written to the device: the
// 2-byte address header followed by 0-6 payload bytes. It does not
// include the 2 CAN-ID bytes that sit in front of it on the wire
// (see the CAN device contract) — those are prepended by the router
// immediately before a syscall write; a syscall read delivers the frame
// without them.
type Frame struct {
	Address Address
	Payload []byte
}

// Encode serializes the frame to its wire form: 2 address bytes followed
// by the payload, 2-8 bytes total.
func (f Frame) Encode() []byte {
	hdr := f.Address.Bytes()
	out := make([]byte, 0, 2+len(f.Payload))
	out = append(out, hdr[0], hdr[1])
	out = append(out, f.Payload...)
	return out
}

// DecodeFrame parses a frame's wire bytes (address header + payload,
// CAN-ID bytes already stripped). Returns ErrProtocol if fewer than 2
// bytes or more than 8 bytes were supplied.
func DecodeFrame(raw []byte) (Frame, error) {
	if len(raw) < 2 || len(raw) > 2+MaxPayload {
		return Frame{}, canderr.ErrProtocol
	}
	return Frame{
		Address: ParseAddress(raw[0], raw[1]),
		Payload: append([]byte(nil), raw[2:]...),
	}, nil
}

// NewAckFrame builds the 4-byte (2 CAN-ID + 2 address) acknowledgement
// frame for a received frame's (slot, fnType, fnCount) triple. Fragment
// is always 0, DataType is always ack (1).
func NewAckFrame(slot, fnType, fnCount uint8) ([]byte, error) {
	addr, err := NewAddress(slot, fnType, fnCount, false, DataTypeStreamOrAck)
	if err != nil {
		return nil, err
	}
	canID := CANHeaderBytes(slot)
	hdr := addr.Bytes()
	return []byte{canID[0], canID[1], hdr[0], hdr[1]}, nil
}
