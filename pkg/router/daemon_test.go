package router

import (
	"testing"
	"time"

	"github.com/samsamfire/cand/pkg/canderr"
	"github.com/samsamfire/cand/pkg/ipc"
	"github.com/samsamfire/cand/pkg/mailbox"
	"github.com/samsamfire/cand/pkg/wire"
	"github.com/samsamfire/cand/pkg/wire/looptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withMailboxDir(t *testing.T) {
	t.Helper()
	prev := mailbox.RuntimeDir
	mailbox.RuntimeDir = t.TempDir()
	t.Cleanup(func() { mailbox.RuntimeDir = prev })
}

func newTestDaemon(t *testing.T) (*Daemon, *looptest.Bus) {
	t.Helper()
	withMailboxDir(t)

	bus, err := looptest.NewBus()
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	d, err := New(bus.Device())
	require.NoError(t, err)

	go func() { _ = d.Run() }()
	t.Cleanup(d.Stop)
	return d, bus
}

func sendCmd(t *testing.T, raw []byte) {
	t.Helper()
	tx, err := mailbox.Open(CommandTaskID, CommandMailboxID, mailbox.DirectionSend, mailbox.ModeBlocking)
	require.NoError(t, err)
	defer tx.Close()
	_, err = tx.Send(raw)
	require.NoError(t, err)
}

func TestAckDisciplineNonFFBFrame(t *testing.T) {
	_, bus := newTestDaemon(t)

	addr, err := wire.NewAddress(5, 3, 2, false, wire.DataTypeCommandOrResponse)
	require.NoError(t, err)
	frame := wire.Frame{Address: addr, Payload: []byte{0x11, 0x22}}
	require.NoError(t, bus.InjectFrame(frame.Encode()))

	ack, err := bus.RecvTransmitted(time.Second)
	require.NoError(t, err)

	want, err := wire.NewAckFrame(5, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, want, ack)
}

func TestNoAckForFFBCommand(t *testing.T) {
	_, bus := newTestDaemon(t)

	addr, err := wire.NewAddress(5, uint8(wire.FnTypeFFBCommand), 2, false, wire.DataTypeCommandOrResponse)
	require.NoError(t, err)
	frame := wire.Frame{Address: addr, Payload: []byte{0x01}}
	require.NoError(t, bus.InjectFrame(frame.Encode()))

	_, err = bus.RecvTransmitted(100 * time.Millisecond)
	assert.Error(t, err)
}

func TestRegisterRouteResponse(t *testing.T) {
	_, bus := newTestDaemon(t)

	rx, err := mailbox.Open(40000, 1, mailbox.DirectionReceive, mailbox.ModeBlocking)
	require.NoError(t, err)
	defer rx.Close()

	sendCmd(t, ipc.EncodeRegisterChannel(40000, 1, false, 0, 0, 7, 2, 3))
	time.Sleep(50 * time.Millisecond)

	addr, err := wire.NewAddress(7, 2, 3, false, wire.DataTypeCommandOrResponse)
	require.NoError(t, err)
	frame := wire.Frame{Address: addr, Payload: []byte{0xAB, 0xCD}}
	require.NoError(t, bus.InjectFrame(frame.Encode()))

	// Drain the ack the daemon writes back to the bus.
	_, err = bus.RecvTransmitted(time.Second)
	require.NoError(t, err)

	buf := make([]byte, mailbox.MaxRecordSize)
	n, err := rx.RecvBlocking(buf)
	require.NoError(t, err)

	resp, err := ipc.DecodeResp(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, ipc.RespResponse, resp.Tag)

	// The router forwards the full address header plus payload, not just
	// the payload, so the client can recover the fragment bit.
	gotFrame, err := wire.DecodeFrame(resp.Payload)
	require.NoError(t, err)
	assert.Equal(t, frame.Address, gotFrame.Address)
	assert.Equal(t, []byte{0xAB, 0xCD}, gotFrame.Payload)
}

// TestRoutingOnlyMatchingFnCountReceives is scenario S4: two clients
// register the same (slot, fn_type) with different fn_count. A frame
// addressed to one of the two triples is delivered only to that
// client's sink; the other sees nothing.
func TestRoutingOnlyMatchingFnCountReceives(t *testing.T) {
	_, bus := newTestDaemon(t)

	rx1, err := mailbox.Open(50000, 1, mailbox.DirectionReceive, mailbox.ModeBlocking)
	require.NoError(t, err)
	defer rx1.Close()
	rx2, err := mailbox.Open(50001, 1, mailbox.DirectionReceive, mailbox.ModeBlocking)
	require.NoError(t, err)
	defer rx2.Close()

	sendCmd(t, ipc.EncodeRegisterChannel(50000, 1, false, 0, 0, 0x10, 5, 1))
	sendCmd(t, ipc.EncodeRegisterChannel(50001, 1, false, 0, 0, 0x10, 5, 2))
	time.Sleep(50 * time.Millisecond)

	addr, err := wire.NewAddress(0x10, 5, 2, false, wire.DataTypeCommandOrResponse)
	require.NoError(t, err)
	frame := wire.Frame{Address: addr, Payload: []byte{0x42}}
	require.NoError(t, bus.InjectFrame(frame.Encode()))

	_, err = bus.RecvTransmitted(time.Second) // drain the ack
	require.NoError(t, err)

	buf := make([]byte, mailbox.MaxRecordSize)
	n, err := rx2.RecvBlocking(buf)
	require.NoError(t, err)
	resp, err := ipc.DecodeResp(buf[:n])
	require.NoError(t, err)
	gotFrame, err := wire.DecodeFrame(resp.Payload)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x42}, gotFrame.Payload)

	_, _, err = rx1.RecvTimeout(buf, 100*time.Millisecond)
	assert.ErrorIs(t, err, canderr.ErrTimeout)
}

func TestUnregisteredFrameIsDroppedSilently(t *testing.T) {
	_, bus := newTestDaemon(t)

	addr, err := wire.NewAddress(9, 4, 1, false, wire.DataTypeCommandOrResponse)
	require.NoError(t, err)
	frame := wire.Frame{Address: addr, Payload: []byte{0x01}}
	require.NoError(t, bus.InjectFrame(frame.Encode()))

	// The ack is still written even though nothing is registered.
	ack, err := bus.RecvTransmitted(time.Second)
	require.NoError(t, err)
	want, err := wire.NewAckFrame(9, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, want, ack)
}

func TestTxFrameRelaysToBus(t *testing.T) {
	_, bus := newTestDaemon(t)

	addr, err := wire.NewAddress(12, 1, 1, false, wire.DataTypeCommandOrResponse)
	require.NoError(t, err)
	hdr := addr.Bytes()
	payload := append([]byte{hdr[0], hdr[1]}, 0x9, 0x9)
	sendCmd(t, ipc.EncodeTxFrame(12, payload))

	out, err := bus.RecvTransmitted(time.Second)
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), out[0])
	assert.Equal(t, byte(12), out[1])
	assert.Equal(t, payload, out[2:])
}
