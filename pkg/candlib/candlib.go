// Package candlib is the client-side reliability layer and device API
// (spec.md §4.F): it sits between device-specific HAL code and the
// wire/fragment/mailbox components, offering open/close, tx, a
// retrying request/response call, and a streaming receive path.
//
// It is modeled on the reference stack's SDOClient lifecycle
// (pkg/sdo/client.go's setupServer/ReadRaw pairing: one setup call
// establishes addressing state, then request calls reuse it under a
// timeout budget) generalised from CANopen's node-ID addressing to this
// protocol's (slot, fn_type, fn_count) triple, and from SDO's per-call
// abort codes to this protocol's canderr sentinel set.
package candlib

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/samsamfire/cand/pkg/canderr"
	"github.com/samsamfire/cand/pkg/fragment"
	"github.com/samsamfire/cand/pkg/ipc"
	"github.com/samsamfire/cand/pkg/mailbox"
	"github.com/samsamfire/cand/pkg/router"
	"github.com/samsamfire/cand/pkg/wire"
)

// MaxNoRetries is the retry supervisor's default attempt ceiling
// (spec.md §4.F: "up to MAX_NO_RETRIES (default 3) invocations").
const MaxNoRetries = 3

const (
	mailboxIDCmdResp = 1
	mailboxIDStream  = 2
)

// NACKByte is the 1-byte payload convention a board uses to report that
// it cannot honor an otherwise well-formed command (SPEC_FULL.md §3,
// grounded on original_source/halsrc/Reliability.cpp).
const NACKByte = 0xFF

var (
	sharedMu   sync.Mutex
	sharedCmd  *mailbox.Mailbox
	sharedRefs int
)

// acquireSharedCmd opens the process-wide outbound command channel to
// the daemon on first use and bumps its refcount; every later call
// reuses the same endpoint (spec.md §5: "exactly one endpoint per
// process, refcounted across CanChannel instances").
func acquireSharedCmd() (*mailbox.Mailbox, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedCmd == nil {
		cmd, err := mailbox.Open(router.CommandTaskID, router.CommandMailboxID, mailbox.DirectionSend, mailbox.ModeBlocking)
		if err != nil {
			return nil, err
		}
		sharedCmd = cmd
	}
	sharedRefs++
	return sharedCmd, nil
}

// releaseSharedCmd decrements the refcount, tearing the shared endpoint
// down when the last CanChannel in this process closes.
func releaseSharedCmd() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	sharedRefs--
	if sharedRefs <= 0 && sharedCmd != nil {
		_ = sharedCmd.Close()
		sharedCmd = nil
		sharedRefs = 0
	}
}

// CanChannel is one client's registered channel: a command/response
// receive endpoint, an optional streaming receive endpoint, and the
// fragment reassembly state for each.
type CanChannel struct {
	slot, fnType, fnCount uint8
	taskID                uint32
	streaming             bool

	cmd *mailbox.Mailbox

	cmdRespRx *mailbox.Mailbox
	streamRx  *mailbox.Mailbox
	respDec   *fragment.Decoder
	streamDec *fragment.Decoder
	remaining time.Duration
}

// Open implements spec.md §4.F's CanChannel::open: lazily shares the
// outbound command channel, opens this channel's own receive
// endpoint(s) at a deterministic (task_id, mailbox_id), and registers
// with the daemon.
func Open(slot, fnType, fnCount uint8, streaming bool) (*CanChannel, error) {
	// NewAddress range-checks the triple; Open fails fast rather than on
	// the first tx.
	if _, err := wire.NewAddress(slot, fnType, fnCount, false, wire.DataTypeCommandOrResponse); err != nil {
		return nil, err
	}

	cmd, err := acquireSharedCmd()
	if err != nil {
		return nil, err
	}

	taskID := (uint32(slot) << 9) + (uint32(fnType) << 4) + uint32(fnCount) + 32768

	cmdRespRx, err := mailbox.Open(taskID, mailboxIDCmdResp, mailbox.DirectionReceive, mailbox.ModeBlocking)
	if err != nil {
		releaseSharedCmd()
		return nil, err
	}

	c := &CanChannel{
		slot: slot, fnType: fnType, fnCount: fnCount,
		taskID: taskID, streaming: streaming,
		cmd:       cmd,
		cmdRespRx: cmdRespRx,
		respDec:   fragment.NewDecoder(),
	}

	if streaming {
		streamRx, err := mailbox.Open(taskID, mailboxIDStream, mailbox.DirectionReceive, mailbox.ModeBlocking)
		if err != nil {
			_ = cmdRespRx.Close()
			releaseSharedCmd()
			return nil, err
		}
		c.streamRx = streamRx
		c.streamDec = fragment.NewDecoder()
	}

	var streamTaskID, streamMailboxID uint32
	if streaming {
		streamTaskID, streamMailboxID = taskID, mailboxIDStream
	}
	reg := ipc.EncodeRegisterChannel(taskID, mailboxIDCmdResp, streaming, streamTaskID, streamMailboxID, slot, fnType, fnCount)
	if _, err := c.cmd.Send(reg); err != nil {
		c.closeLocal()
		releaseSharedCmd()
		return nil, err
	}

	return c, nil
}

func (c *CanChannel) closeLocal() {
	_ = c.cmdRespRx.Close()
	if c.streamRx != nil {
		_ = c.streamRx.Close()
	}
}

// Close implements CanChannel::close: unregister, close the local
// receive endpoints, and release this process's share of the command
// channel.
func (c *CanChannel) Close() error {
	unreg := ipc.EncodeUnregisterChannel(c.slot, c.fnType, c.fnCount)
	_, err := c.cmd.Send(unreg)
	c.closeLocal()
	releaseSharedCmd()
	return err
}

// tx implements CanChannel::tx. For the FFB-status FnType, each fragment
// is sent in its own record with a 15ms pause between sends (a wire
// constraint of that device class); every other FnType batches all
// fragments of the message into a single send to the daemon.
func (c *CanChannel) tx(payload []byte, streaming bool) error {
	datatype := wire.DataTypeCommandOrResponse
	if streaming {
		datatype = wire.DataTypeStreamOrAck
	}
	addr, err := wire.NewAddress(c.slot, c.fnType, c.fnCount, false, datatype)
	if err != nil {
		return err
	}
	frames, err := fragment.Encode(addr, payload)
	if err != nil {
		return err
	}

	if wire.IsFFBStatus(c.fnType) && len(frames) > 1 {
		for i, f := range frames {
			if _, err := c.cmd.Send(ipc.EncodeTxFrame(c.slot, f.Encode())); err != nil {
				return canderr.ErrInternal
			}
			if i != len(frames)-1 {
				time.Sleep(wire.FFBInterFrameDelayMillis * time.Millisecond)
			}
		}
		return nil
	}

	raws := make([][]byte, len(frames))
	for i, f := range frames {
		raws[i] = f.Encode()
	}
	if _, err := c.cmd.Send(ipc.EncodeTxFrame(c.slot, raws...)); err != nil {
		return canderr.ErrInternal
	}
	return nil
}

// feedUntilComplete drains rx into dec until a complete message is
// assembled or the timeout budget is exhausted, returning the number of
// bytes assembled into buf.
func feedUntilComplete(rx *mailbox.Mailbox, dec *fragment.Decoder, buf []byte, respLen int, timeout time.Duration) (int, time.Duration, error) {
	remaining := timeout
	raw := make([]byte, mailbox.MaxRecordSize)
	for {
		n, left, err := rx.RecvTimeout(raw, remaining)
		remaining = left
		if err != nil {
			return 0, remaining, err
		}
		resp, err := ipc.DecodeResp(raw[:n])
		if err != nil {
			return 0, remaining, canderr.ErrProtocol
		}
		frame, err := wire.DecodeFrame(resp.Payload)
		if err != nil {
			return 0, remaining, canderr.ErrProtocol
		}
		dec.Feed(frame.Address.Fragment(), frame.Payload)

		if dec.Pending() > respLen+2 {
			dec.Flush()
			return 0, remaining, canderr.ErrProtocol
		}

		got, err := dec.Get(buf)
		switch err {
		case nil:
			return got, remaining, nil
		case canderr.ErrDataPending:
			if remaining <= 0 {
				return 0, remaining, canderr.ErrTimeout
			}
			continue
		default:
			return 0, remaining, err
		}
	}
}

// requestOnce is the unwrapped body of CanChannel::request (spec.md
// §4.F): flush stale state, transmit the command, and assemble the
// response within the timeout budget.
func (c *CanChannel) requestOnce(cmdPayload []byte, respBuf []byte, timeout time.Duration) (int, error) {
	c.cmdRespRx.Flush()
	c.respDec.Flush()

	if err := c.tx(cmdPayload, false); err != nil {
		return 0, err
	}

	n, remaining, err := feedUntilComplete(c.cmdRespRx, c.respDec, respBuf, len(respBuf), timeout)
	c.remaining = remaining
	if err != nil {
		return 0, err
	}
	if n == 1 && respBuf[0] == NACKByte {
		return 0, canderr.ErrCommandFailed
	}
	return n, nil
}

// Request implements CanChannel::request wrapped by the retry
// supervisor: up to MaxNoRetries attempts, retrying any outcome except
// canderr.ErrInvalidArgs. Each attempt gets the full timeout budget
// again, unchanged, matching original_source/halsrc/Reliability.cpp's
// retry loop (it passes unTimeOut to every iteration rather than
// shrinking it by what prior attempts consumed). It returns the
// assembled response and the number of attempts actually used.
func (c *CanChannel) Request(cmdPayload []byte, respBuf []byte, timeout time.Duration) (int, int, error) {
	var lastErr error
	for attempt := 1; attempt <= MaxNoRetries; attempt++ {
		n, err := c.requestOnce(cmdPayload, respBuf, timeout)
		if err == nil {
			return n, attempt, nil
		}
		lastErr = err
		if err == canderr.ErrInvalidArgs {
			return 0, attempt, err
		}
		log.Warnf("[CANDLIB][REQ] attempt %d/%d failed for slot=%d fnType=%d fnCount=%d: %v",
			attempt, MaxNoRetries, c.slot, c.fnType, c.fnCount, err)
	}
	return 0, MaxNoRetries, lastErr
}

// StreamRecv implements CanChannel::stream_recv: assembles the next
// complete streaming message within timeout.
func (c *CanChannel) StreamRecv(buf []byte, timeout time.Duration) (int, error) {
	if c.streamRx == nil {
		return 0, canderr.ErrInvalidSequence
	}
	n, remaining, err := feedUntilComplete(c.streamRx, c.streamDec, buf, len(buf), timeout)
	c.remaining = remaining
	return n, err
}

// StreamFlush implements CanChannel::stream_flush: discards any queued
// stream records.
func (c *CanChannel) StreamFlush() {
	if c.streamRx != nil {
		c.streamRx.Flush()
		c.streamDec.Flush()
	}
}

// RemainingTimeout implements CanChannel::remaining_timeout: the unused
// portion of the last timed receive, so callers composing a deadline
// across several HAL calls can subtract accurately.
func (c *CanChannel) RemainingTimeout() time.Duration {
	return c.remaining
}
