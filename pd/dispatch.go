package pd

import (
	log "github.com/sirupsen/logrus"

	"github.com/go-osdp/osdp/codec"
	"github.com/go-osdp/osdp/phy"
	"github.com/go-osdp/osdp/securechannel"
)

// reply builds and sends one response frame. secure selects whether
// the reply is wrapped in a steady-state SC block (0x16/0x18); the
// two SC-handshake replies (CCRYPT/RMAC_I) and every NAK/plaintext
// fallback pass secure=false and drive scb/scsType directly instead.
func (c *Context) reply(secure bool, id byte, payload []byte, scb []byte, scsType codec.SCSType) {
	if secure && c.sc.Active {
		scsType = codec.SCSNoDataReply
		if len(payload) > 0 {
			scsType = codec.SCSEncryptedRpl
		}
		scb = []byte{2, byte(scsType)}
	}

	raw, err := phy.Build(phy.BuildParams{
		Address:    c.info.Address,
		FromPDToCP: true,
		Sequence:   byte(c.seq),
		SCB:        scb,
		SCSType:    scsType,
		ID:         id,
		Payload:    payload,
		Securer:    c.securer(),
		IsCommand:  false,
	}, 0)
	if err != nil {
		log.WithError(err).Warn("pd: failed to build reply")
		return
	}
	c.maybeCapture(raw)
	if _, err := c.info.Channel.Send(raw); err != nil {
		log.WithError(err).Warn("pd: send failed")
	}
}

func (c *Context) nak(reason codec.NAKReason) {
	c.reply(false, byte(codec.ReplyNak), codec.Nak{Reason: reason}.Encode(), nil, 0)
}

func (c *Context) dispatch(res phy.Result, now int64) {
	switch codec.Command(res.ID) {
	case codec.CmdPoll:
		c.handlePoll()
	case codec.CmdID:
		c.reply(true, byte(codec.ReplyPDID), c.info.PDID.Encode(), nil, 0)
	case codec.CmdCap:
		c.reply(true, byte(codec.ReplyPDCap), codec.EncodeCapabilities(c.info.Capabilities), nil, 0)
	case codec.CmdLstat:
		c.reply(true, byte(codec.ReplyLstatr), codec.StatusReport{Entries: c.lstat}.Encode(), nil, 0)
	case codec.CmdIstat:
		c.reply(true, byte(codec.ReplyIstatr), codec.StatusReport{Entries: c.istat}.Encode(), nil, 0)
	case codec.CmdOstat:
		c.reply(true, byte(codec.ReplyOstatr), codec.StatusReport{Entries: c.ostat}.Encode(), nil, 0)
	case codec.CmdRstat:
		c.reply(true, byte(codec.ReplyRstatr), codec.StatusReport{Entries: c.rstat}.Encode(), nil, 0)
	case codec.CmdOut:
		c.dispatchUserCommand(codec.CmdOut, res.Payload)
	case codec.CmdLed:
		c.dispatchUserCommand(codec.CmdLed, res.Payload)
	case codec.CmdBuz:
		c.dispatchUserCommand(codec.CmdBuz, res.Payload)
	case codec.CmdText:
		c.dispatchUserCommand(codec.CmdText, res.Payload)
	case codec.CmdMfg:
		c.dispatchMfg(res.Payload)
	case codec.CmdComSet:
		c.handleComSet(res.Payload)
	case codec.CmdKeySet:
		c.handleKeySet(res.Payload, now)
	case codec.CmdChlng:
		c.handleChlng(res.Payload)
	case codec.CmdSCrypt:
		c.handleSCrypt(res.Payload, now)
	case codec.CmdFileTransfer:
		c.handleFileTransfer(res.Payload)
	default:
		c.nak(codec.NAKCmdUnknown)
	}
}

func (c *Context) handlePoll() {
	ev, ok := c.events.Pop()
	if !ok {
		c.reply(true, byte(codec.ReplyAck), nil, nil, 0)
		return
	}

	switch ev.Kind {
	case EventCardRead:
		payload := codec.Raw{Reader: ev.Reader, Format: ev.Format, BitCount: uint16(ev.Bits), Data: ev.Data}.Encode()
		c.reply(true, byte(codec.ReplyRaw), payload, nil, 0)
	case EventKeypress:
		c.reply(true, byte(codec.ReplyKeypad), ev.Data, nil, 0)
	case EventMfgReply:
		c.reply(true, byte(codec.ReplyMfgRep), ev.Data, nil, 0)
	case EventStatus:
		c.reply(true, byte(codec.ReplyLstatr), ev.Data, nil, 0)
	default:
		c.reply(true, byte(codec.ReplyAck), nil, nil, 0)
	}
}

func (c *Context) dispatchUserCommand(id codec.Command, payload []byte) {
	if c.cmdCallback == nil {
		c.nak(codec.NAKCmdUnknown)
		return
	}
	result := c.cmdCallback(Command{ID: id, Payload: payload})
	if result.Nak {
		c.nak(result.Reason)
		return
	}
	c.reply(true, byte(codec.ReplyAck), nil, nil, 0)
}

func (c *Context) dispatchMfg(payload []byte) {
	if c.cmdCallback == nil {
		c.nak(codec.NAKCmdUnknown)
		return
	}
	result := c.cmdCallback(Command{ID: codec.CmdMfg, Payload: payload})
	if result.Nak {
		c.nak(result.Reason)
		return
	}
	if result.ReplyData != nil {
		c.reply(true, byte(codec.ReplyMfgRep), result.ReplyData, nil, 0)
		return
	}
	c.reply(true, byte(codec.ReplyAck), nil, nil, 0)
}

func (c *Context) handleComSet(payload []byte) {
	cs, err := codec.DecodeComSet(payload)
	if err != nil {
		c.nak(codec.NAKCmdLen)
		return
	}
	c.reply(true, byte(codec.ReplyCom), cs.Encode(), nil, 0)
	// The new address/baud take effect only after the COM reply is on
	// the wire; the transport owner applies comsetPending by calling
	// ApplyPendingComSet.
	c.comsetPending = &cs
}

// ApplyPendingComSet lets the transport owner pick up and apply an
// address/baud change scheduled by a COMSET command, clearing it
// once applied.
func (c *Context) ApplyPendingComSet() (codec.ComSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.comsetPending == nil {
		return codec.ComSet{}, false
	}
	cs := *c.comsetPending
	c.comsetPending = nil
	c.info.Address = cs.Address & 0x7F
	return cs, true
}

func (c *Context) handleKeySet(payload []byte, now int64) {
	ks, err := codec.DecodeKeySet(payload)
	if err != nil || len(ks.Data) != 16 {
		c.nak(codec.NAKCmdLen)
		return
	}
	var scbk [16]byte
	copy(scbk[:], ks.Data)
	c.reply(true, byte(codec.ReplyAck), nil, nil, 0)
	// Install the new key and drop SC: the spec requires a fresh
	// handshake on the next poll, on both sides.
	c.sc.Deactivate(now)
	c.sc.SCBK = scbk
	c.sc.UsingDefaultKey = false
}

// handleChlng is the PD's half of handshake step 2: derive session
// keys from cp_random, compute both cryptograms, and reply CCRYPT.
func (c *Context) handleChlng(payload []byte) {
	ch, err := codec.DecodeChallenge(payload)
	if err != nil {
		c.nak(codec.NAKCmdLen)
		return
	}
	c.sc.CPRandom = ch.CPRandom

	scbk := c.sc.SCBK
	if c.info.Flags&FlagInstallMode != 0 && c.sc.UsingDefaultKey {
		scbk = securechannel.DefaultSCBK
	}

	keys, err := securechannel.DeriveSessionKeys(c.provider, scbk, c.sc.CPRandom)
	if err != nil {
		log.WithError(err).Error("pd: deriving session keys")
		c.nak(codec.NAKSCCond)
		return
	}
	c.sc.Keys = keys

	r, err := c.provider.RandomBytes(8)
	if err != nil {
		log.WithError(err).Error("pd: generating pd_random")
		c.nak(codec.NAKSCCond)
		return
	}
	copy(c.sc.PDRandom[:], r)

	pdCryptogram, err := securechannel.PDCryptogram(c.provider, keys.Enc, c.sc.CPRandom, c.sc.PDRandom)
	if err != nil {
		log.WithError(err).Error("pd: computing pd cryptogram")
		c.nak(codec.NAKSCCond)
		return
	}
	c.sc.PDCryptogram = pdCryptogram

	identity := securechannel.Identity{
		Vendor:  c.info.PDID.Vendor,
		Model:   c.info.PDID.Model,
		Version: c.info.PDID.Version,
		Serial:  c.info.PDID.Serial,
	}
	c.sc.PDClientUID = securechannel.ClientUID(identity)

	cc := codec.CCrypt{PDClientUID: c.sc.PDClientUID, PDRandom: c.sc.PDRandom, PDCryptogram: pdCryptogram}
	c.reply(false, byte(codec.ReplyCCrypt), cc.Encode(), []byte{2, byte(codec.SCSCCrypt)}, 0)
}

// handleSCrypt is handshake step 4: verify the CP's cryptogram, seed
// r_mac, and reply RMAC_I. SC becomes active on success.
func (c *Context) handleSCrypt(payload []byte, now int64) {
	sc, err := codec.DecodeSCrypt(payload)
	if err != nil {
		c.nak(codec.NAKCmdLen)
		return
	}

	expected, err := securechannel.CPCryptogram(c.provider, c.sc.Keys.Enc, c.sc.PDRandom, c.sc.CPRandom)
	if err != nil || expected != sc.CPCryptogram {
		log.Warn("pd: cp cryptogram mismatch, aborting handshake")
		c.sc.Deactivate(now)
		c.nak(codec.NAKSCCond)
		return
	}
	c.sc.CPCryptogram = sc.CPCryptogram

	rmac, err := securechannel.SeedRMAC(c.provider, c.sc.Keys.Mac1, c.sc.Keys.Mac2, c.sc.CPCryptogram)
	if err != nil {
		log.WithError(err).Error("pd: seeding r_mac")
		c.nak(codec.NAKSCCond)
		return
	}
	c.sc.MAC = securechannel.MACState{RMAC: rmac}
	c.sc.Active = true

	c.reply(false, byte(codec.ReplyRMacI), codec.RMacI{RMAC: rmac}.Encode(), []byte{2, byte(codec.SCSRMacI)}, 0)
}

func (c *Context) handleFileTransfer(payload []byte) {
	ft, err := codec.DecodeFileTransfer(payload)
	if err != nil {
		c.nak(codec.NAKCmdLen)
		return
	}
	if c.fileReceiver == nil {
		c.nak(codec.NAKCmdUnknown)
		return
	}
	if err := c.fileReceiver.HandleChunk(int(ft.Type), int(ft.Size), int(ft.Offset), ft.Data); err != nil {
		log.WithError(err).Warn("pd: file transfer chunk rejected")
	}
	ok, control, delay := c.fileReceiver.BuildStatus()
	status := int16(0)
	if !ok {
		status = -1
	}
	c.reply(true, byte(codec.ReplyFTStat), codec.FTStatus{Control: control, DelayMS: delay, Status: status}.Encode(), nil, 0)
}
