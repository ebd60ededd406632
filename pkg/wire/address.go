// Package wire implements the 16-bit device-address header shared by
// every frame on the bus, and the raw 1-8 byte CAN frame layout that
// carries it. It performs no I/O; it is pure bit twiddling, mirroring
// how the reference CANopen stack keeps its CAN-ID field handling
// (bus.go, bus_manager.go) separate from transport.
package wire

import (
	"encoding/binary"

	"github.com/samsamfire/cand/pkg/canderr"
)

// Field widths, MSB to LSB: slot(5) | fnType(5) | fnCount(4) | fragment(1) | datatype(1)
const (
	MaxSlot    = 31 // 5 bits
	MaxFnType  = 31 // 5 bits
	MaxFnCount = 15 // 4 bits, 0 is reserved

	slotShift    = 11
	fnTypeShift  = 6
	fnCountShift = 2
	fragmentBit  = 1
	datatypeBit  = 0

	slotMask    = 0x1F
	fnTypeMask  = 0x1F
	fnCountMask = 0x0F
)

// DataType distinguishes, device-to-host, a command response (0) from a
// streaming packet (1); host-to-device, a command (0) from an
// acknowledgement (1). The bit means different things in each direction,
// per spec; callers interpret it according to which direction the frame
// travelled.
type DataType uint8

const (
	DataTypeCommandOrResponse DataType = 0
	DataTypeStreamOrAck       DataType = 1
)

// Address is the 16-bit device-address header. It is always manipulated
// through constructors and accessors, never by reinterpreting raw
// memory, so host endianness never leaks into the value's representation.
type Address uint16

// NewAddress builds an Address from its fields, validating ranges.
// fnCount == 0 is rejected: 0 is reserved and never a valid channel.
func NewAddress(slot, fnType, fnCount uint8, fragment bool, datatype DataType) (Address, error) {
	if slot > MaxSlot {
		return 0, canderr.ErrInvalidArgs
	}
	if fnType > MaxFnType {
		return 0, canderr.ErrInvalidArgs
	}
	if fnCount == 0 || fnCount > MaxFnCount {
		return 0, canderr.ErrInvalidArgs
	}

	a := uint16(slot&slotMask) << slotShift
	a |= uint16(fnType&fnTypeMask) << fnTypeShift
	a |= uint16(fnCount&fnCountMask) << fnCountShift
	if fragment {
		a |= 1 << fragmentBit
	}
	if datatype == DataTypeStreamOrAck {
		a |= 1 << datatypeBit
	}
	return Address(a), nil
}

func (a Address) Slot() uint8    { return uint8((a >> slotShift) & slotMask) }
func (a Address) FnType() uint8  { return uint8((a >> fnTypeShift) & fnTypeMask) }
func (a Address) FnCount() uint8 { return uint8((a >> fnCountShift) & fnCountMask) }
func (a Address) Fragment() bool { return (a>>fragmentBit)&1 != 0 }

func (a Address) DataType() DataType {
	if (a>>datatypeBit)&1 != 0 {
		return DataTypeStreamOrAck
	}
	return DataTypeCommandOrResponse
}

// WithFragment returns a copy of a with the fragment bit set or cleared.
func (a Address) WithFragment(fragment bool) Address {
	if fragment {
		return a | (1 << fragmentBit)
	}
	return a &^ (1 << fragmentBit)
}

// Bytes serializes the address to its two wire bytes, big-endian — the
// fixed byte order every device on the bus expects, regardless of host
// endianness.
func (a Address) Bytes() [2]byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(a))
	return b
}

// ParseAddress decodes the two wire bytes (big-endian) into an Address.
func ParseAddress(hi, lo byte) Address {
	return Address(binary.BigEndian.Uint16([]byte{hi, lo}))
}

// CANHeaderBytes returns the 2 CAN-ID bytes that prefix every raw frame
// on the wire for a given slot. Byte 0 is always 0x00; byte 1 is the
// slot value. This matches observed wire behaviour for every in-range
// slot (see DESIGN.md, Open Question 2).
func CANHeaderBytes(slot uint8) [2]byte {
	return [2]byte{0x00, slot}
}
