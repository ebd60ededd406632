// Package candev is the router daemon's sole owner of the physical CAN
// device (spec §5, "shared-resource policy": "The CAN device is owned
// exclusively by the daemon"). It models the device's contract exactly:
// each read returns at most one complete raw frame (1-8 bytes); each
// write transmits exactly one frame (2 CAN-ID header bytes plus up to 8
// payload bytes). The device is opened twice, mirroring the reference
// stack's split of send/receive concerns in bus_manager.go: once
// read-only nonblocking for the poll-driven receive path, once
// write-only blocking for the synchronous transmit path used by both
// outbound client frames and synthesised ack frames.
package candev

import (
	"golang.org/x/sys/unix"

	"github.com/samsamfire/cand/pkg/canderr"
)

// DefaultPath is the device node opened when no path is configured, per
// spec.md §6.
const DefaultPath = "/dev/can1"

// MaxFrame is the largest raw frame: 2 CAN-ID bytes + 8 payload bytes.
const MaxFrame = 10

// Device is the daemon's handle to the physical CAN bus: a nonblocking
// read fd and a blocking write fd over the same device node.
type Device struct {
	path    string
	readFd  int
	writeFd int
}

// Open opens path twice as spec.md §6 requires. readFd is O_RDONLY |
// O_NONBLOCK so it can sit in the daemon's poll set without ever
// blocking the event loop; writeFd is O_WRONLY so frame transmission
// (client TxFrame relay and ack synthesis) blocks until accepted by the
// driver, per spec.md §4.E / §5.
func Open(path string) (*Device, error) {
	if path == "" {
		path = DefaultPath
	}
	readFd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, canderr.ErrDeviceInternal
	}
	writeFd, err := unix.Open(path, unix.O_WRONLY, 0)
	if err != nil {
		_ = unix.Close(readFd)
		return nil, canderr.ErrDeviceInternal
	}
	return &Device{path: path, readFd: readFd, writeFd: writeFd}, nil
}

// ReadFd returns the nonblocking read descriptor, for inclusion in the
// daemon's unix.Poll set (spec.md §5).
func (d *Device) ReadFd() int {
	return d.readFd
}

// ReadFrame performs one nonblocking read and returns the raw frame
// bytes received, if any. A short read of 0 bytes is not an error: the
// caller (HandleCanReceive) is specified to ignore it silently.
// EAGAIN/EWOULDBLOCK (nothing currently pending) is reported as
// canderr.ErrWouldBlock so the event loop can distinguish "no frame
// right now" from a real device error.
func (d *Device) ReadFrame() ([]byte, error) {
	buf := make([]byte, MaxFrame)
	n, err := unix.Read(d.readFd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, canderr.ErrWouldBlock
		}
		return nil, canderr.ErrDeviceInternal
	}
	if n <= 0 {
		return nil, nil
	}
	return buf[:n], nil
}

// WriteFrame performs one blocking write of raw (2 CAN-ID bytes plus up
// to 8 payload bytes). A short write is reported distinctly from a
// write error so the caller can log the two cases as the spec
// distinguishes them ("short writes are reported").
func (d *Device) WriteFrame(raw []byte) error {
	if len(raw) == 0 || len(raw) > MaxFrame {
		return canderr.ErrInvalidArgs
	}
	n, err := unix.Write(d.writeFd, raw)
	if err != nil {
		return canderr.ErrDeviceInternal
	}
	if n != len(raw) {
		return canderr.ErrProtocol
	}
	return nil
}

// Close releases both descriptors.
func (d *Device) Close() error {
	err1 := unix.Close(d.readFd)
	err2 := unix.Close(d.writeFd)
	if err1 != nil {
		return err1
	}
	return err2
}
