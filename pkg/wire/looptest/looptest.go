// Package looptest provides an in-memory loopback CAN device for tests,
// modeled on the reference stack's pkg/can/virtual in-memory bus: rather
// than dialing a broker over TCP, it wires two OS pipes together so the
// router daemon can be driven through its real poll-based event loop
// (package candev.Device's contract: ReadFd/ReadFrame/WriteFrame) while
// the test harness plays the part of the CAN bus's peripherals, both
// injecting inbound frames and observing outbound ones.
package looptest

import (
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/samsamfire/cand/pkg/canderr"
)

const maxFrame = 10

// Bus is the shared medium: one pipe carries frames toward the daemon
// (what a peripheral transmits), the other carries frames away from it
// (what the daemon transmits, including synthesised acks).
type Bus struct {
	toDaemonR, toDaemonW     *os.File
	fromDaemonR, fromDaemonW *os.File
}

// NewBus creates a fresh loopback medium with no frames queued. Both
// pipes are packet-mode (O_DIRECT) pipes, so each write is delivered by
// exactly one read, matching the device's one-frame-per-syscall contract.
func NewBus() (*Bus, error) {
	var to, from [2]int
	if err := unix.Pipe2(to[:], unix.O_DIRECT|unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	if err := unix.Pipe2(from[:], unix.O_DIRECT|unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(to[0], true); err != nil {
		return nil, err
	}
	toR, toW := os.NewFile(uintptr(to[0]), "looptest-to-daemon-r"), os.NewFile(uintptr(to[1]), "looptest-to-daemon-w")
	fromR, fromW := os.NewFile(uintptr(from[0]), "looptest-from-daemon-r"), os.NewFile(uintptr(from[1]), "looptest-from-daemon-w")
	return &Bus{toDaemonR: toR, toDaemonW: toW, fromDaemonR: fromR, fromDaemonW: fromW}, nil
}

// Device returns the daemon-facing endpoint: the same shape as
// candev.Device (ReadFd, ReadFrame, WriteFrame, Close), so package
// router can be driven identically against real hardware or this
// loopback.
func (b *Bus) Device() *Device {
	return &Device{bus: b}
}

// InjectFrame simulates a peripheral transmitting raw onto the bus: it
// becomes the next frame the daemon's read fd delivers.
func (b *Bus) InjectFrame(raw []byte) error {
	_, err := b.toDaemonW.Write(raw)
	return err
}

// RecvTransmitted waits up to timeout for one frame the daemon wrote to
// the bus (a relayed TxFrame or a synthesised ack), for assertions in
// end-to-end tests.
func (b *Bus) RecvTransmitted(timeout time.Duration) ([]byte, error) {
	fd := int(b.fromDaemonR.Fd())
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, canderr.ErrTimeout
	}
	buf := make([]byte, maxFrame)
	m, err := unix.Read(fd, buf)
	if err != nil {
		return nil, err
	}
	return buf[:m], nil
}

// Close releases all four pipe ends.
func (b *Bus) Close() error {
	_ = b.toDaemonW.Close()
	_ = b.toDaemonR.Close()
	_ = b.fromDaemonW.Close()
	err := b.fromDaemonR.Close()
	return err
}

// Device is the loopback bus's daemon-facing endpoint.
type Device struct {
	bus *Bus
}

// ReadFd returns the nonblocking read end of the "toward daemon" pipe.
func (d *Device) ReadFd() int {
	return int(d.bus.toDaemonR.Fd())
}

// ReadFrame mirrors candev.Device.ReadFrame's contract.
func (d *Device) ReadFrame() ([]byte, error) {
	buf := make([]byte, maxFrame)
	n, err := unix.Read(int(d.bus.toDaemonR.Fd()), buf)
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

// WriteFrame mirrors candev.Device.WriteFrame's contract.
func (d *Device) WriteFrame(raw []byte) error {
	if len(raw) == 0 || len(raw) > maxFrame {
		return canderr.ErrInvalidArgs
	}
	n, err := d.bus.fromDaemonW.Write(raw)
	if err != nil {
		return canderr.ErrDeviceInternal
	}
	if n != len(raw) {
		return canderr.ErrProtocol
	}
	return nil
}

// Close is a no-op on the endpoint; the underlying Bus owns the pipes
// and is closed separately so the test harness can still drain them.
func (d *Device) Close() error {
	return nil
}
