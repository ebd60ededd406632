package router

import (
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/samsamfire/cand/internal/metrics"
	"github.com/samsamfire/cand/pkg/canderr"
	"github.com/samsamfire/cand/pkg/ipc"
	"github.com/samsamfire/cand/pkg/mailbox"
	"github.com/samsamfire/cand/pkg/wire"
)

// CANDevice is the daemon's view of the CAN bus: a nonblocking read
// path, a blocking write path, and the raw fd for the poll set. Package
// candev.Device implements it against real hardware; package
// wire/looptest implements it in-memory for tests.
type CANDevice interface {
	ReadFd() int
	ReadFrame() ([]byte, error)
	WriteFrame(raw []byte) error
	Close() error
}

// CommandTaskID and CommandMailboxID are the fixed (task_id, mailbox_id)
// pair every client sends CandCmd records to (spec.md §4.E:
// "one well-known command-receive channel (fixed task/mailbox IDs)").
const (
	CommandTaskID    = 1
	CommandMailboxID = 1
)

// Daemon is the single-threaded, cooperatively-multiplexed router event
// loop (spec.md §4.E, §5). It owns the CAN device and the registration
// table; it is not safe for concurrent use beyond the one goroutine that
// calls Run, matching "no internal parallelism."
type Daemon struct {
	dev   CANDevice
	table *Table
	cmdRx *mailbox.Mailbox
	done  chan struct{}
}

// New opens the well-known command-receive channel and returns a Daemon
// ready to Run against dev.
func New(dev CANDevice) (*Daemon, error) {
	cmdRx, err := mailbox.Open(CommandTaskID, CommandMailboxID, mailbox.DirectionReceive, mailbox.ModeBlocking)
	if err != nil {
		return nil, err
	}
	return &Daemon{
		dev:   dev,
		table: NewTable(),
		cmdRx: cmdRx,
		done:  make(chan struct{}),
	}, nil
}

// Stop ends the next iteration of Run's event loop and releases every
// registered channel, per spec.md §4.D's shutdown contract.
func (d *Daemon) Stop() {
	close(d.done)
}

// Run is the event loop: wait on {CAN read fd, command channel fd}, then
// dispatch whichever is ready (spec.md §4.E steps 1-3). It returns when
// Stop is called.
func (d *Daemon) Run() error {
	defer d.table.Shutdown()
	defer d.cmdRx.Close()

	cmdFd, err := d.cmdRx.Fd()
	if err != nil {
		return err
	}

	for {
		select {
		case <-d.done:
			return nil
		default:
		}

		fds := []unix.PollFd{
			{Fd: int32(d.dev.ReadFd()), Events: unix.POLLIN},
			{Fd: int32(cmdFd), Events: unix.POLLIN},
		}
		n, err := unix.Poll(fds, 200)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			log.Errorf("[ROUTER] poll failed: %v", err)
			continue
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents&unix.POLLIN != 0 {
			d.HandleCanReceive()
		}
		if fds[1].Revents&unix.POLLIN != 0 {
			d.HandleClientCmd()
		}
	}
}

// HandleCanReceive implements spec.md §4.E's HandleCanReceive: read one
// raw frame, ack it (unless FFB-command), look it up, and forward it to
// the registered sink.
func (d *Daemon) HandleCanReceive() {
	raw, err := d.dev.ReadFrame()
	if err != nil {
		if err == canderr.ErrWouldBlock {
			return
		}
		log.Errorf("[ROUTER][RX] read error: %v", err)
		metrics.CANReadErrors.Inc()
		return
	}
	if len(raw) == 0 {
		return
	}

	frame, err := wire.DecodeFrame(raw)
	if err != nil {
		log.Warnf("[ROUTER][RX] malformed frame: %v", err)
		return
	}
	addr := frame.Address
	slot, fnType, fnCount := addr.Slot(), addr.FnType(), addr.FnCount()

	if !wire.IsFFBCommand(fnType) {
		ack, err := wire.NewAckFrame(slot, fnType, fnCount)
		if err != nil {
			log.Errorf("[ROUTER][TX] cannot build ack: %v", err)
		} else if err := d.dev.WriteFrame(ack); err != nil {
			log.Warnf("[ROUTER][TX] short/failed ack write: %v", err)
		} else {
			metrics.AcksSent.Inc()
		}
	}

	entry := d.table.Lookup(slot, fnType, fnCount)
	if entry == nil {
		log.Debugf("[ROUTER][RX] no registration for slot=%d fnType=%d fnCount=%d", slot, fnType, fnCount)
		return
	}

	if addr.DataType() == wire.DataTypeStreamOrAck {
		if entry.StreamSink == nil {
			log.Warnf("[ROUTER][RX] stream frame with no stream sink, dropping channel slot=%d fnType=%d fnCount=%d", slot, fnType, fnCount)
			d.dropEntry(slot, fnType, fnCount)
			return
		}
		if _, err := entry.StreamSink.Send(ipc.EncodeStream(frame.Encode())); err != nil {
			log.Warnf("[ROUTER][RX] stream sink send failed, dropping channel: %v", err)
			d.dropEntry(slot, fnType, fnCount)
			return
		}
	} else {
		if _, err := entry.CmdSink.Send(ipc.EncodeResponse(frame.Encode())); err != nil {
			log.Warnf("[ROUTER][RX] cmd sink send failed, dropping channel: %v", err)
			d.dropEntry(slot, fnType, fnCount)
			return
		}
	}
	metrics.FramesRouted.Inc()
}

func (d *Daemon) dropEntry(slot, fnType, fnCount uint8) {
	_ = d.table.Deregister(slot, fnType, fnCount)
	metrics.DroppedChannels.Inc()
	metrics.RegisteredChannels.Set(float64(d.table.Count()))
}

// HandleClientCmd implements spec.md §4.E's HandleClientCmd: receive one
// CandCmd record and dispatch by variant. The daemon never acknowledges
// these records back to the client ("fire-and-forget").
func (d *Daemon) HandleClientCmd() {
	buf := make([]byte, mailbox.MaxRecordSize)
	n, err := d.cmdRx.RecvBlocking(buf)
	if err != nil {
		log.Errorf("[ROUTER][CMD] recv failed: %v", err)
		return
	}
	cmd, err := ipc.DecodeCmd(buf[:n])
	if err != nil {
		log.Warnf("[ROUTER][CMD] malformed record: %v", err)
		return
	}

	switch cmd.Tag {
	case ipc.CmdRegisterChannel:
		d.handleRegister(cmd)
	case ipc.CmdUnregisterChannel:
		if err := d.table.Deregister(cmd.Slot, cmd.FnType, cmd.FnCount); err != nil {
			log.Warnf("[ROUTER][CMD] unregister: %v", err)
		}
		metrics.RegisteredChannels.Set(float64(d.table.Count()))
	case ipc.CmdTxFrame:
		d.handleTxFrame(cmd)
	}
}

func (d *Daemon) handleRegister(cmd ipc.Cmd) {
	cmdSink, err := mailbox.Open(cmd.CmdTaskID, cmd.CmdMailboxID, mailbox.DirectionSend, mailbox.ModeNonblocking)
	if err != nil {
		log.Errorf("[ROUTER][CMD] register: cannot open cmd sink: %v", err)
		return
	}

	entry := &Entry{CmdSink: cmdSink}
	if cmd.HasStream {
		streamSink, err := mailbox.Open(cmd.StreamTaskID, cmd.StreamMailboxID, mailbox.DirectionSend, mailbox.ModeNonblocking)
		if err != nil {
			log.Errorf("[ROUTER][CMD] register: cannot open stream sink: %v", err)
			_ = cmdSink.Close()
			return
		}
		entry.StreamSink = streamSink
	}

	if err := d.table.Register(cmd.Slot, cmd.FnType, cmd.FnCount, entry); err != nil {
		log.Warnf("[ROUTER][CMD] register: %v", err)
		closeEntry(entry)
		return
	}
	metrics.RegisteredChannels.Set(float64(d.table.Count()))
}

func (d *Daemon) handleTxFrame(cmd ipc.Cmd) {
	hdr := wire.CANHeaderBytes(cmd.Slot)
	for _, payload := range cmd.Payloads {
		out := make([]byte, 0, 2+len(payload))
		out = append(out, hdr[0], hdr[1])
		out = append(out, payload...)
		if err := d.dev.WriteFrame(out); err != nil {
			log.Warnf("[ROUTER][TX] TxFrame write failed: %v", err)
		}
	}
}
