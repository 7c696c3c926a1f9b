package pd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-osdp/osdp/channel"
	"github.com/go-osdp/osdp/channel/virtual"
	"github.com/go-osdp/osdp/codec"
	"github.com/go-osdp/osdp/crypto"
	"github.com/go-osdp/osdp/phy"
	"github.com/go-osdp/osdp/securechannel"
)

// fakeCP is a minimal CP-side driver good enough to exercise a
// Context's command handlers without the full cp package. Tests drive
// it and a Context by hand, single-threaded: send a command, tick the
// Context's Refresh once, then read back the reply.
type fakeCP struct {
	ch      channel.Channel
	address byte
	seq     int8
	framer  *phy.Framer
}

func newFakeCP(ch channel.Channel, address byte) *fakeCP {
	return &fakeCP{ch: ch, address: address, seq: -1, framer: phy.NewFramer(phy.MaxPacketSize + 1)}
}

func (f *fakeCP) nextSeq() byte {
	if f.seq < 0 {
		return 0
	}
	n := f.seq + 1
	if n > 3 {
		n = 1
	}
	return byte(n)
}

func (f *fakeCP) sendCommand(t *testing.T, id codec.Command, payload []byte) {
	t.Helper()
	wireSeq := f.nextSeq()
	raw, err := phy.Build(phy.BuildParams{
		Address:   f.address,
		Sequence:  wireSeq,
		ID:        byte(id),
		Payload:   payload,
		IsCommand: true,
	}, 0)
	require.NoError(t, err)
	_, err = f.ch.Send(raw)
	require.NoError(t, err)
	f.seq = int8(wireSeq)
}

func (f *fakeCP) recvReply(t *testing.T) phy.Result {
	t.Helper()
	var buf [512]byte
	n, err := f.ch.Recv(buf[:])
	require.NoError(t, err)
	f.framer.Feed(buf[:n])
	fr := f.framer.NextFrame()
	require.Equal(t, phy.StatusNone, fr.Status, "expected a framed reply")
	res, err := phy.Decode(phy.ScanContext{Role: phy.RoleCP, LocalAddress: f.address, CurrentSeq: f.seq}, fr.Raw)
	require.NoError(t, err)
	return res
}

// exchange sends one command, ticks ctx once, and returns the reply.
func exchange(t *testing.T, ctx *Context, cp *fakeCP, id codec.Command, payload []byte) phy.Result {
	t.Helper()
	cp.sendCommand(t, id, payload)
	ctx.Refresh(0)
	return cp.recvReply(t)
}

func newTestContext() (*Context, *fakeCP) {
	cpEnd, pdEnd := virtual.NewPair()
	ctx := New(Info{
		Address: 0,
		Channel: pdEnd,
		PDID:    codec.PDID{Vendor: [3]byte{1, 2, 3}, Model: 9, Version: 1},
		Capabilities: []codec.Capability{
			{Code: codec.CapCommunicationSecurity, Level: 0},
		},
	})
	return ctx, newFakeCP(cpEnd, 0)
}

func TestPollRepliesAckWithNoEvent(t *testing.T) {
	ctx, cp := newTestContext()
	res := exchange(t, ctx, cp, codec.CmdPoll, nil)
	require.Equal(t, codec.ReplyAck, codec.Reply(res.ID))
}

func TestIDRepliesPDID(t *testing.T) {
	ctx, cp := newTestContext()
	res := exchange(t, ctx, cp, codec.CmdID, nil)
	require.Equal(t, codec.ReplyPDID, codec.Reply(res.ID))

	got, err := codec.DecodePDID(res.Payload)
	require.NoError(t, err)
	require.EqualValues(t, 9, got.Model)
}

func TestUnknownCommandIsNAKed(t *testing.T) {
	ctx, cp := newTestContext()
	res := exchange(t, ctx, cp, codec.Command(0x7F), nil)
	require.Equal(t, codec.ReplyNak, codec.Reply(res.ID))

	nak, err := codec.DecodeNak(res.Payload)
	require.NoError(t, err)
	require.Equal(t, codec.NAKCmdUnknown, nak.Reason)
}

func TestOutCommandDispatchesToCallbackAndNaksOnReject(t *testing.T) {
	ctx, cp := newTestContext()
	var seen Command
	ctx.SetCommandCallback(func(cmd Command) CommandResult {
		seen = cmd
		out, err := codec.DecodeOutput(cmd.Payload)
		if err == nil && out.OutputNo == 9 {
			return CommandResult{Nak: true, Reason: codec.NAKRecord}
		}
		return CommandResult{}
	})

	res := exchange(t, ctx, cp, codec.CmdOut, codec.Output{OutputNo: 1, ControlCode: 1}.Encode())
	require.Equal(t, codec.ReplyAck, codec.Reply(res.ID))
	require.Equal(t, codec.CmdOut, seen.ID)

	res = exchange(t, ctx, cp, codec.CmdOut, codec.Output{OutputNo: 9, ControlCode: 1}.Encode())
	require.Equal(t, codec.ReplyNak, codec.Reply(res.ID))
}

func TestCardReadEventIsDeliveredOnNextPoll(t *testing.T) {
	ctx, cp := newTestContext()
	err := ctx.SubmitEvent(Event{Kind: EventCardRead, Reader: 0, Format: codec.RawWiegand, Bits: 26, Data: []byte{1, 2, 3, 4}})
	require.NoError(t, err)

	res := exchange(t, ctx, cp, codec.CmdPoll, nil)
	require.Equal(t, codec.ReplyRaw, codec.Reply(res.ID))

	raw, err := codec.DecodeRaw(res.Payload)
	require.NoError(t, err)
	require.EqualValues(t, 26, raw.BitCount)

	// The event queue drains: the following poll goes back to plain ACK.
	res = exchange(t, ctx, cp, codec.CmdPoll, nil)
	require.Equal(t, codec.ReplyAck, codec.Reply(res.ID))
}

func TestSCHandshakeCompletesAndActivatesSecureChannel(t *testing.T) {
	ctx, cp := newTestContext()

	cpRandom := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	chlngRes := exchange(t, ctx, cp, codec.CmdChlng, codec.Challenge{CPRandom: cpRandom}.Encode())
	require.Equal(t, codec.ReplyCCrypt, codec.Reply(chlngRes.ID))

	cc, err := codec.DecodeCCrypt(chlngRes.Payload)
	require.NoError(t, err)
	require.False(t, ctx.SCActive(), "SC should not be active before SCRYPT")

	// Drive the rest of the handshake the way cp.commands.go does: CP
	// derives its own session keys from cp_random, verifies the PD's
	// cryptogram, then sends its own cp_cryptogram via SCRYPT.
	cpKeys := deriveCPSideKeys(t, cpRandom)
	cpCryptogram := cryptogram(t, cpKeys.Enc, cc.PDRandom, cpRandom)

	scryptRes := exchange(t, ctx, cp, codec.CmdSCrypt, codec.SCrypt{CPCryptogram: cpCryptogram}.Encode())
	require.Equal(t, codec.ReplyRMacI, codec.Reply(scryptRes.ID))
	require.True(t, ctx.SCActive(), "SC should be active after a valid SCRYPT")
}

// deriveCPSideKeys stands in for the CP's own session-key derivation
// in the handshake test above: the PD under test has a zero SCBK (no
// master key / install mode configured), so the CP side derives from
// the same zero key.
func deriveCPSideKeys(t *testing.T, cpRandom [8]byte) securechannel.SessionKeys {
	t.Helper()
	keys, err := securechannel.DeriveSessionKeys(crypto.Default(), [16]byte{}, cpRandom)
	require.NoError(t, err)
	return keys
}

func cryptogram(t *testing.T, encKey [16]byte, first, second [8]byte) [16]byte {
	t.Helper()
	out, err := securechannel.Cryptogram(crypto.Default(), encKey, first, second)
	require.NoError(t, err)
	return out
}
