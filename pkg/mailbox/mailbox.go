// Package mailbox implements the reliable IPC channel between the
// router daemon and client processes on the same host: an ordered,
// record-oriented channel with a fixed maximum record size, blocking and
// timed receive, blocking and nonblocking send, and an explicit flush.
//
// It is realized over Unix-domain datagram sockets, the natural Go
// primitive providing exactly this component's contract: each
// net.UnixConn.WriteTo/ReadFrom transfers one whole datagram, so record
// boundaries are preserved without any length-prefixing of our own —
// the same property the reference stack's virtual CAN bus
// (pkg/can/virtual) relies on framing by hand over a TCP stream; a
// datagram socket gives us that framing for free. Low-level control
// (exposing a raw fd for the daemon's poll set, nonblocking send) uses
// golang.org/x/sys/unix directly, mirroring bus_manager.go's use of
// that package for CAN-ID masking.
package mailbox

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samsamfire/cand/pkg/canderr"
	"golang.org/x/sys/unix"
)

// MaxRecordSize bounds one record. It covers every CandResp record and
// every CandCmd record (see package ipc) except a batched TxFrame record
// for a payload longer than 610 bytes, which Send rejects with
// canderr.ErrInvalidArgs.
const MaxRecordSize = 1024

// Direction is the role a mailbox endpoint plays: a process either sends
// into a mailbox or receives from it, never both on the same endpoint.
type Direction uint8

const (
	DirectionSend Direction = iota
	DirectionReceive
)

// Mode selects blocking behaviour for Send. The receive calls do not
// consult it: RecvBlocking always blocks and RecvTimeout always waits up
// to its timeout.
type Mode uint8

const (
	ModeBlocking Mode = iota
	ModeNonblocking
)

// RuntimeDir is the directory under which mailbox socket files are
// created. It is a package variable rather than a parameter threaded
// through every call because every mailbox in a given daemon/client
// deployment must agree on it to find each other — set it once at
// process startup before any Open call.
var RuntimeDir = "/var/run/cand"

// Path returns the well-known socket path for a (taskID, mailboxID)
// pair. Both daemon and client derive the same path independently from
// the same two integers, so a mailbox is always deterministically
// reachable from its peer without a separate name-registration step.
func Path(taskID, mailboxID uint32) string {
	return filepath.Join(RuntimeDir, fmt.Sprintf("%d.%d.sock", taskID, mailboxID))
}

// Mailbox is one endpoint (send-only or receive-only) of a reliable IPC
// channel.
type Mailbox struct {
	mu        sync.Mutex
	path      string
	dir       Direction
	mode      Mode
	conn      *net.UnixConn
	sendAddr  *net.UnixAddr // for send-only endpoints, the peer to write to
}

// Open creates or attaches to the mailbox identified by (taskID,
// mailboxID). A DirectionReceive open creates (or recreates) the
// listening socket file; a DirectionSend open merely resolves the peer
// address — the peer's receive-side Open must happen first, same as a
// QNX-style mailbox must exist before anyone can send to it.
func Open(taskID, mailboxID uint32, dir Direction, mode Mode) (*Mailbox, error) {
	if err := os.MkdirAll(RuntimeDir, 0755); err != nil {
		return nil, canderr.ErrInternal
	}
	path := Path(taskID, mailboxID)

	m := &Mailbox{path: path, dir: dir, mode: mode}

	switch dir {
	case DirectionReceive:
		_ = os.Remove(path)
		addr, err := net.ResolveUnixAddr("unixgram", path)
		if err != nil {
			return nil, canderr.ErrInternal
		}
		conn, err := net.ListenUnixgram("unixgram", addr)
		if err != nil {
			return nil, canderr.ErrInternal
		}
		m.conn = conn
	case DirectionSend:
		addr, err := net.ResolveUnixAddr("unixgram", path)
		if err != nil {
			return nil, canderr.ErrInternal
		}
		m.sendAddr = addr
		// A send-only endpoint still needs a local socket to originate
		// from, so replies (if any) and kernel-level flow control work;
		// it is bound to an unnamed (autobind) address.
		conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Net: "unixgram"})
		if err != nil {
			return nil, canderr.ErrInternal
		}
		m.conn = conn
	}

	return m, nil
}

// Send transmits record as exactly one datagram. In ModeNonblocking, if
// the peer's receive buffer is full, it returns canderr.ErrWouldBlock
// instead of blocking.
func (m *Mailbox) Send(record []byte) (int, error) {
	if len(record) > MaxRecordSize {
		return 0, canderr.ErrInvalidArgs
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return 0, canderr.ErrInvalidSequence
	}

	if m.mode == ModeNonblocking {
		return m.sendNonblocking(record)
	}
	n, err := m.conn.WriteToUnix(record, m.sendAddr)
	if err != nil {
		return 0, canderr.ErrInternal
	}
	return n, nil
}

// sendNonblocking performs the write with MSG_DONTWAIT via the raw fd,
// translating EAGAIN/EWOULDBLOCK into canderr.ErrWouldBlock.
func (m *Mailbox) sendNonblocking(record []byte) (int, error) {
	raw, err := m.conn.SyscallConn()
	if err != nil {
		return 0, canderr.ErrInternal
	}
	sa := &unix.SockaddrUnix{Name: m.sendAddr.Name}
	var n int
	var sendErr error
	ctrlErr := raw.Write(func(fd uintptr) bool {
		n, sendErr = unixSendto(int(fd), record, sa)
		return true
	})
	if ctrlErr != nil {
		return 0, canderr.ErrInternal
	}
	if sendErr == unix.EAGAIN {
		return 0, canderr.ErrWouldBlock
	}
	if sendErr != nil {
		return 0, canderr.ErrInternal
	}
	return n, nil
}

func unixSendto(fd int, p []byte, to unix.Sockaddr) (int, error) {
	err := unix.Sendto(fd, p, unix.MSG_DONTWAIT, to)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// RecvBlocking waits until one record is delivered and returns its
// length.
func (m *Mailbox) RecvBlocking(buf []byte) (int, error) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return 0, canderr.ErrInvalidSequence
	}
	_ = conn.SetReadDeadline(time.Time{})
	n, err := conn.Read(buf)
	if err != nil {
		return 0, canderr.ErrInternal
	}
	return n, nil
}

// RecvTimeout waits up to timeout for one record. On success it reports
// the unused portion of the budget so callers composing several timed
// receives (e.g. the per-attempt receive loop in package candlib) can
// pass the remainder to the next call.
func (m *Mailbox) RecvTimeout(buf []byte, timeout time.Duration) (int, time.Duration, error) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return 0, 0, canderr.ErrInvalidSequence
	}

	deadline := time.Now().Add(timeout)
	_ = conn.SetReadDeadline(deadline)
	n, err := conn.Read(buf)
	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return 0, 0, canderr.ErrTimeout
		}
		return 0, remaining, canderr.ErrInternal
	}
	return n, remaining, nil
}

// Flush discards any records currently queued for receipt, by draining
// the socket in nonblocking mode until it would block.
func (m *Mailbox) Flush() {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}
	buf := make([]byte, MaxRecordSize)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(time.Millisecond))
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}

// Fd exposes the underlying socket file descriptor for external
// multiplexing (the router daemon's poll set).
func (m *Mailbox) Fd() (uintptr, error) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return 0, canderr.ErrInvalidSequence
	}
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, canderr.ErrInternal
	}
	var fd uintptr
	if err := raw.Control(func(f uintptr) { fd = f }); err != nil {
		return 0, canderr.ErrInternal
	}
	return fd, nil
}

// Close releases the underlying socket (and, for a receive endpoint,
// removes the socket file so a later Open can recreate it cleanly).
func (m *Mailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	if m.dir == DirectionReceive {
		_ = os.Remove(m.path)
	}
	return err
}
