// Package ipc defines the CandCmd and CandResp record formats exchanged
// between the client library (package candlib) and the router daemon
// (package router) over the reliable IPC channel (package mailbox,
// spec.md §4.C, §4.E, §4.F). Records are encoded by hand, one fixed byte
// layout per variant, matching this codebase's convention elsewhere of
// explicit wire encoding (package wire) rather than reflection-based
// serialization — a mailbox record is just another wire format, only
// carried over a Unix socket instead of the CAN bus.
package ipc

import (
	"encoding/binary"

	"github.com/samsamfire/cand/pkg/canderr"
)

// CmdTag identifies which CandCmd variant a record carries.
type CmdTag uint8

const (
	CmdRegisterChannel CmdTag = iota
	CmdUnregisterChannel
	CmdTxFrame
)

// RespTag identifies which CandResp variant a record carries.
type RespTag uint8

const (
	RespResponse RespTag = iota
	RespStream
)

// Cmd is the tagged union of CandCmd record variants (spec.md §4.E).
// Only the fields relevant to Tag are meaningful.
type Cmd struct {
	Tag CmdTag

	// CmdRegisterChannel
	CmdTaskID       uint32
	CmdMailboxID    uint32
	HasStream       bool
	StreamTaskID    uint32
	StreamMailboxID uint32
	Slot            uint8
	FnType          uint8
	FnCount         uint8

	// CmdTxFrame: one or more raw frame payloads, all for the same Slot.
	// Batched so a multi-fragment message can cross the client-to-daemon
	// IPC hop as a single mailbox send (spec.md §4.F).
	Payloads [][]byte
}

// EncodeRegisterChannel builds a CmdRegisterChannel record. streamMailboxID
// is ignored (and HasStream is false) when hasStream is false.
func EncodeRegisterChannel(cmdTaskID, cmdMailboxID uint32, hasStream bool, streamTaskID, streamMailboxID uint32, slot, fnType, fnCount uint8) []byte {
	buf := make([]byte, 1+4+4+1+4+4+1+1+1)
	buf[0] = byte(CmdRegisterChannel)
	binary.BigEndian.PutUint32(buf[1:5], cmdTaskID)
	binary.BigEndian.PutUint32(buf[5:9], cmdMailboxID)
	if hasStream {
		buf[9] = 1
	}
	binary.BigEndian.PutUint32(buf[10:14], streamTaskID)
	binary.BigEndian.PutUint32(buf[14:18], streamMailboxID)
	buf[18] = slot
	buf[19] = fnType
	buf[20] = fnCount
	return buf
}

// EncodeUnregisterChannel builds a CmdUnregisterChannel record.
func EncodeUnregisterChannel(slot, fnType, fnCount uint8) []byte {
	return []byte{byte(CmdUnregisterChannel), slot, fnType, fnCount}
}

// EncodeTxFrame builds a CmdTxFrame record carrying one or more raw
// frame payloads (each already carrying the 2-byte address header
// produced by the client, spec.md §4.E), length-prefixed so the daemon
// can split them back apart and write each as its own device syscall.
func EncodeTxFrame(slot uint8, payloads ...[]byte) []byte {
	size := 2
	for _, p := range payloads {
		size += 2 + len(p)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, byte(CmdTxFrame), slot)
	var lenBuf [2]byte
	for _, p := range payloads {
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(p)))
		buf = append(buf, lenBuf[0], lenBuf[1])
		buf = append(buf, p...)
	}
	return buf
}

// DecodeCmd parses a CandCmd record produced by one of the Encode*
// functions above.
func DecodeCmd(raw []byte) (Cmd, error) {
	if len(raw) == 0 {
		return Cmd{}, canderr.ErrProtocol
	}
	switch CmdTag(raw[0]) {
	case CmdRegisterChannel:
		if len(raw) != 21 {
			return Cmd{}, canderr.ErrProtocol
		}
		return Cmd{
			Tag:             CmdRegisterChannel,
			CmdTaskID:       binary.BigEndian.Uint32(raw[1:5]),
			CmdMailboxID:    binary.BigEndian.Uint32(raw[5:9]),
			HasStream:       raw[9] != 0,
			StreamTaskID:    binary.BigEndian.Uint32(raw[10:14]),
			StreamMailboxID: binary.BigEndian.Uint32(raw[14:18]),
			Slot:            raw[18],
			FnType:          raw[19],
			FnCount:         raw[20],
		}, nil
	case CmdUnregisterChannel:
		if len(raw) != 4 {
			return Cmd{}, canderr.ErrProtocol
		}
		return Cmd{Tag: CmdUnregisterChannel, Slot: raw[1], FnType: raw[2], FnCount: raw[3]}, nil
	case CmdTxFrame:
		if len(raw) < 2 {
			return Cmd{}, canderr.ErrProtocol
		}
		rest := raw[2:]
		var payloads [][]byte
		for len(rest) > 0 {
			if len(rest) < 2 {
				return Cmd{}, canderr.ErrProtocol
			}
			n := int(binary.BigEndian.Uint16(rest[:2]))
			rest = rest[2:]
			if n > len(rest) {
				return Cmd{}, canderr.ErrProtocol
			}
			payloads = append(payloads, append([]byte(nil), rest[:n]...))
			rest = rest[n:]
		}
		return Cmd{Tag: CmdTxFrame, Slot: raw[1], Payloads: payloads}, nil
	default:
		return Cmd{}, canderr.ErrProtocol
	}
}

// Resp is the tagged union of CandResp record variants (spec.md §4.E),
// routed by the daemon to a registered sink. Payload is the frame's full
// wire encoding (2-byte address header + 0-6 data bytes), not just the
// data bytes: the client's fragment decoder needs the address header's
// Fragment bit to reassemble correctly.
type Resp struct {
	Tag     RespTag
	Payload []byte
}

// EncodeResponse builds a RespResponse record.
func EncodeResponse(payload []byte) []byte {
	buf := make([]byte, 1+len(payload))
	buf[0] = byte(RespResponse)
	copy(buf[1:], payload)
	return buf
}

// EncodeStream builds a RespStream record.
func EncodeStream(payload []byte) []byte {
	buf := make([]byte, 1+len(payload))
	buf[0] = byte(RespStream)
	copy(buf[1:], payload)
	return buf
}

// DecodeResp parses a CandResp record.
func DecodeResp(raw []byte) (Resp, error) {
	if len(raw) == 0 {
		return Resp{}, canderr.ErrProtocol
	}
	switch RespTag(raw[0]) {
	case RespResponse:
		return Resp{Tag: RespResponse, Payload: append([]byte(nil), raw[1:]...)}, nil
	case RespStream:
		return Resp{Tag: RespStream, Payload: append([]byte(nil), raw[1:]...)}, nil
	default:
		return Resp{}, canderr.ErrProtocol
	}
}
