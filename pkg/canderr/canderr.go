// Package canderr defines the closed set of error kinds surfaced by the
// router daemon, the fragmentation codec, and the client reliability
// layer. Every error the core returns to a caller is one of these
// sentinels (or wraps one, checkable with errors.Is).
package canderr

import "errors"

var (
	// ErrInvalidArgs is returned when a caller supplies a NULL, zero, or
	// out-of-range argument (e.g. slot > 31, fn_count == 0).
	ErrInvalidArgs = errors.New("cand: invalid argument")

	// ErrInvalidSequence is returned when an API is called before open,
	// after close, or when Get is called on a decoder with nothing
	// assembled.
	ErrInvalidSequence = errors.New("cand: invalid sequence")

	// ErrTimeout is returned when no complete message arrives within a
	// caller-specified deadline.
	ErrTimeout = errors.New("cand: timeout")

	// ErrProtocol is returned when a wire packet violates the protocol:
	// wrong size, an unexpected fragment bit, or an ack/command mismatch.
	ErrProtocol = errors.New("cand: protocol violation")

	// ErrWrongCRC is returned when fragment reassembly completes but the
	// trailing CRC does not verify.
	ErrWrongCRC = errors.New("cand: CRC mismatch")

	// ErrDataPending is returned by a fragment decoder's Get when
	// assembly is still in progress; the caller should retry later.
	ErrDataPending = errors.New("cand: fragment assembly in progress")

	// ErrDeviceInternal is returned when a remote board replies with an
	// explicit NACK to an otherwise well-formed request.
	ErrDeviceInternal = errors.New("cand: device reported internal error")

	// ErrMemory is returned when an allocation fails.
	ErrMemory = errors.New("cand: allocation failed")

	// ErrInternal is returned for pipe/driver failures inside the daemon
	// or the client library that are not otherwise classified.
	ErrInternal = errors.New("cand: internal error")

	// ErrCommandFailed is returned when a remote board acknowledges a
	// command with an explicit failure payload (see candlib.NACKByte).
	ErrCommandFailed = errors.New("cand: command failed on device")

	// ErrAlreadyRegistered is returned by the registration table when a
	// (slot, fn_type, fn_count) cell is already occupied.
	ErrAlreadyRegistered = errors.New("cand: channel already registered")

	// ErrNotRegistered is returned by deregister/lookup-style operations
	// for a cell that holds no entry.
	ErrNotRegistered = errors.New("cand: channel not registered")

	// ErrWouldBlock is returned by a nonblocking send when the peer
	// mailbox is not draining.
	ErrWouldBlock = errors.New("cand: would block")
)
