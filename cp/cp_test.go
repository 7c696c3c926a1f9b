package cp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-osdp/osdp/channel"
	"github.com/go-osdp/osdp/channel/virtual"
	"github.com/go-osdp/osdp/codec"
	"github.com/go-osdp/osdp/phy"
)

// memFileOps is an in-memory filetransfer.Ops good enough to drive a
// Sender end to end without touching a real filesystem.
type memFileOps struct{ data []byte }

func (m *memFileOps) Open(fileID int, flags uint32) (int, error) { return len(m.data), nil }

func (m *memFileOps) Read(p []byte, offset int) (int, error) {
	if offset >= len(m.data) {
		return 0, nil
	}
	return copy(p, m.data[offset:]), nil
}

func (m *memFileOps) Write(p []byte, offset int) error { return nil }
func (m *memFileOps) Close() error                     { return nil }

// fakeClock lets tests advance time deterministically instead of
// depending on wall-clock timing.
type fakeClock struct{ ms int64 }

func (c *fakeClock) NowMs() int64    { return c.ms }
func (c *fakeClock) advance(d int64) { c.ms += d }

// fakePD is a minimal PD-side responder good enough to drive a
// Controller through INIT->CAPDET->ONLINE without a secure channel,
// so these tests do not depend on the pd package.
type fakePD struct {
	ch       channel.Channel
	address  byte
	seq      int8
	framer   *phy.Framer
	received []byte
}

func newFakePD(ch channel.Channel, address byte) *fakePD {
	return &fakePD{ch: ch, address: address, seq: -1, framer: phy.NewFramer(phy.MaxPacketSize + 1)}
}

// step drains whatever the CP has sent and replies once, if a whole
// command was received.
func (f *fakePD) step(t *testing.T) {
	t.Helper()
	var buf [512]byte
	n, err := f.ch.Recv(buf[:])
	require.NoError(t, err)
	if n > 0 {
		f.framer.Feed(buf[:n])
	}
	fr := f.framer.NextFrame()
	if fr.Status != phy.StatusNone {
		return
	}
	res, err := phy.Decode(phy.ScanContext{
		Role:         phy.RolePD,
		LocalAddress: f.address,
		CurrentSeq:   f.seq,
	}, fr.Raw)
	require.NoError(t, err)
	if res.Status != phy.StatusNone {
		return
	}
	f.seq = res.NewSeq

	var replyID byte
	var payload []byte
	switch codec.Command(res.ID) {
	case codec.CmdID:
		replyID = byte(codec.ReplyPDID)
		payload = codec.PDID{Vendor: [3]byte{1, 2, 3}, Model: 9, Version: 1}.Encode()
	case codec.CmdCap:
		replyID = byte(codec.ReplyPDCap)
		payload = codec.EncodeCapabilities([]codec.Capability{
			{Code: codec.CapCommunicationSecurity, Level: 0},
			{Code: codec.CapReceiveBufferSize, Level: 0, NumItems: 1}, // 256 bytes: 0 | 1<<8
		})
	case codec.CmdFileTransfer:
		ft, err := codec.DecodeFileTransfer(res.Payload)
		require.NoError(t, err)
		for len(f.received) < int(ft.Offset)+len(ft.Data) {
			f.received = append(f.received, 0)
		}
		copy(f.received[ft.Offset:], ft.Data)
		replyID = byte(codec.ReplyFTStat)
		payload = codec.FTStatus{Status: 0}.Encode()
	default:
		replyID = byte(codec.ReplyAck)
	}

	raw, err := phy.Build(phy.BuildParams{
		Address:    f.address,
		FromPDToCP: true,
		Sequence:   byte(f.seq),
		ID:         replyID,
		Payload:    payload,
	}, 0)
	require.NoError(t, err)
	_, err = f.ch.Send(raw)
	require.NoError(t, err)
}

func newTestController(t *testing.T, clock Clock) (*Controller, *fakePD) {
	t.Helper()
	cpEnd, pdEnd := virtual.NewPair()
	c := New([]Info{{Address: 0, Channel: cpEnd, ChannelID: "bus0"}}, clock)
	pd := newFakePD(pdEnd, 0)
	return c, pd
}

func pumpUntilOnline(t *testing.T, c *Controller, pd *fakePD, clock *fakeClock, ticks int) {
	t.Helper()
	for i := 0; i < ticks; i++ {
		c.Refresh()
		pd.step(t)
		clock.advance(PollTimeoutMs)
	}
}

func TestControllerReachesOnlineWithoutSecureChannel(t *testing.T) {
	clock := &fakeClock{}
	c, pd := newTestController(t, clock)

	pumpUntilOnline(t, c, pd, clock, 6)

	p, err := c.pd(0)
	require.NoError(t, err)
	require.Equal(t, StateOnline, p.state)
	require.Equal(t, uint32(1), c.GetStatusMask())

	id, err := c.GetPDID(0)
	require.NoError(t, err)
	require.EqualValues(t, 9, id.Model)
}

func TestSubmitCommandRejectsUnknownDisabledAndFullQueue(t *testing.T) {
	clock := &fakeClock{}
	c, _ := newTestController(t, clock)

	require.ErrorIs(t, c.SubmitCommand(5, codec.CmdLed, nil), ErrUnknownPD)

	require.NoError(t, c.DisablePD(0))
	require.ErrorIs(t, c.SubmitCommand(0, codec.CmdLed, nil), ErrPDDisabled)

	require.NoError(t, c.EnablePD(0))
	enabled, err := c.IsPDEnabled(0)
	require.NoError(t, err)
	require.True(t, enabled)

	for i := 0; i < queueCapacity; i++ {
		require.NoError(t, c.SubmitCommand(0, codec.CmdLed, nil))
	}
	require.ErrorIs(t, c.SubmitCommand(0, codec.CmdLed, nil), ErrQueueFull)
}

func TestDisablePDClearsStateAndDeactivatesSC(t *testing.T) {
	clock := &fakeClock{}
	c, _ := newTestController(t, clock)

	require.NoError(t, c.SubmitCommand(0, codec.CmdLed, nil))
	require.NoError(t, c.DisablePD(0))

	p, err := c.pd(0)
	require.NoError(t, err)
	require.Equal(t, StateDisabled, p.state)
	require.Zero(t, p.queue.Len())
	require.False(t, p.sc.Active)
}

// TestKeySetRotationRestartsHandshake confirms a successful KEYSET
// round trip moves the peer through SET_SCBK and back into SC_CHLNG,
// deactivating SC, per spec.md's "within one subsequent exchange SC
// is deactivated on both sides" property.
func TestKeySetRotationRestartsHandshake(t *testing.T) {
	clock := &fakeClock{}
	c, pd := newTestController(t, clock)
	pumpUntilOnline(t, c, pd, clock, 6)

	p, err := c.pd(0)
	require.NoError(t, err)
	require.Equal(t, StateOnline, p.state)

	var newKey [16]byte
	payload, err := codec.KeySet{Type: 1, Data: newKey[:]}.Encode()
	require.NoError(t, err)
	require.NoError(t, c.SubmitCommand(0, codec.CmdKeySet, payload))

	// Tick 1: KEYSET goes out.
	c.Refresh()
	pd.step(t)
	clock.advance(PollTimeoutMs)
	// Tick 2: the ACK comes back; CP moves to SET_SCBK.
	c.Refresh()
	require.Equal(t, StateSetSCBK, p.state)

	pd.step(t)
	clock.advance(PollTimeoutMs)
	// Tick 3: the follow-up poll (the "one clean exchange") goes out.
	c.Refresh()
	pd.step(t)
	clock.advance(PollTimeoutMs)
	// Tick 4: its reply lands; SC drops and the handshake restarts.
	c.Refresh()

	require.Equal(t, StateSCChlng, p.state)
	require.False(t, p.sc.Active)
}

func TestFileTransferPushesChunksUntilComplete(t *testing.T) {
	clock := &fakeClock{}
	c, pd := newTestController(t, clock)
	pumpUntilOnline(t, c, pd, clock, 6)

	payload := bytes.Repeat([]byte("0123456789abcdef"), 8) // 128 bytes
	require.NoError(t, c.StartFileTransfer(0, &memFileOps{data: payload}, 1, 0))

	for i := 0; i < 20; i++ {
		size, offset, active, err := c.GetFileTransferProgress(0)
		require.NoError(t, err)
		if !active || (size > 0 && offset == size) {
			break
		}
		c.Refresh()
		pd.step(t)
		clock.advance(PollTimeoutMs)
	}

	require.Equal(t, payload, pd.received)
	_, _, active, err := c.GetFileTransferProgress(0)
	require.NoError(t, err)
	require.False(t, active, "transfer should have finished")
}

// TestChannelLockSerializesSharedBus confirms two PDs that share a
// ChannelID never both hold the reply-wait slot at once: whichever
// peer sends first keeps the lock until its reply (or timeout)
// resolves, and the other peer's Refresh is a no-op meanwhile.
func TestChannelLockSerializesSharedBus(t *testing.T) {
	clock := &fakeClock{}
	cpEnd, pdEnd := virtual.NewPair()

	c := New([]Info{
		{Address: 0, Channel: cpEnd, ChannelID: "shared"},
		{Address: 1, Channel: cpEnd, ChannelID: "shared"},
	}, clock)

	c.Refresh() // peer 0 sends and takes the lock

	p0, err := c.pd(0)
	require.NoError(t, err)
	p1, err := c.pd(1)
	require.NoError(t, err)

	require.Equal(t, PhyReplyWait, p0.phyState)
	require.NotEqual(t, PhyReplyWait, p1.phyState)

	pd0 := newFakePD(pdEnd, 0)
	pd0.step(t) // answer peer 0's pending command, releasing the lock

	c.Refresh() // peer 0 processes the reply and releases; peer 1 can now send
	require.NotEqual(t, PhyReplyWait, p0.phyState)
}
