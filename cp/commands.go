package cp

import (
	log "github.com/sirupsen/logrus"

	"github.com/go-osdp/osdp/codec"
	"github.com/go-osdp/osdp/filetransfer"
	"github.com/go-osdp/osdp/phy"
	"github.com/go-osdp/osdp/securechannel"
)

func nextWireSeq(cur int8) byte {
	if cur < 0 {
		return 0
	}
	n := cur + 1
	if n > 3 {
		n = 1
	}
	return byte(n)
}

func (c *Controller) sendNext(p *peer, now int64) {
	var cmdID codec.Command
	var payload []byte
	var scb []byte
	var scsType codec.SCSType

	switch p.state {
	case StateInit:
		cmdID = codec.CmdID

	case StateCapDet:
		cmdID = codec.CmdCap

	case StateSCChlng:
		r, err := p.provider.RandomBytes(8)
		if err != nil {
			log.WithError(err).Errorf("cp: pd %d: generating cp_random", p.index)
			return
		}
		copy(p.sc.CPRandom[:], r)
		cmdID = codec.CmdChlng
		payload = codec.Challenge{CPRandom: p.sc.CPRandom}.Encode()
		scb = []byte{2, byte(codec.SCSChallenge)}

	case StateSCScrypt:
		cpCryptogram, err := securechannel.CPCryptogram(p.provider, p.sc.Keys.Enc, p.sc.PDRandom, p.sc.CPRandom)
		if err != nil {
			log.WithError(err).Errorf("cp: pd %d: computing cp cryptogram", p.index)
			return
		}
		p.sc.CPCryptogram = cpCryptogram
		cmdID = codec.CmdSCrypt
		payload = codec.SCrypt{CPCryptogram: cpCryptogram}.Encode()
		scb = []byte{2, byte(codec.SCSCrypt)}

	case StateOnline:
		if p.fileSender != nil && p.fileSender.Active() && p.fileSender.TxState() == filetransfer.TxPending {
			chunk, err := p.fileSender.BuildChunk(p.peerRxSize)
			if err != nil {
				log.WithError(err).Warnf("cp: pd %d: building file chunk", p.index)
			} else {
				cmdID = codec.CmdFileTransfer
				payload = codec.FileTransfer{Type: chunk.Type, Size: chunk.Size, Offset: chunk.Offset, Data: chunk.Data}.Encode()
			}
		}
		if cmdID == 0 {
			if qc, ok := p.queue.Pop(); ok {
				cmdID, payload = qc.ID, qc.Payload
			} else {
				cmdID = codec.CmdPoll
			}
		}
		if p.sc.Active {
			if len(payload) > 0 {
				scsType = codec.SCSEncryptedCmd
			} else {
				scsType = codec.SCSNoDataCmd
			}
			scb = []byte{2, byte(scsType)}
		}

	case StateSetSCBK:
		// Waiting for the one clean exchange spec.md:163 requires
		// before dropping SC and restarting the handshake; the PD
		// has already dropped its own session by the time its
		// KEYSET ACK reaches us, so this poll goes out unsecured.
		cmdID = codec.CmdPoll

	default:
		return
	}

	p.lastCmdID = cmdID

	wireSeq := nextWireSeq(p.seq)
	raw, err := phy.Build(phy.BuildParams{
		Address:   p.info.Address,
		Sequence:  wireSeq,
		SCB:       scb,
		SCSType:   scsType,
		ID:        byte(cmdID),
		Payload:   payload,
		Securer:   p.securer(),
		IsCommand: true,
	}, p.peerRxSize)
	if err != nil {
		log.WithError(err).Errorf("cp: pd %d: building command %#x", p.index, cmdID)
		return
	}

	if _, err := p.info.Channel.Send(raw); err != nil {
		log.WithError(err).Warnf("cp: pd %d: send failed", p.index)
		return
	}
	c.maybeCapture(p, raw)

	p.seq = int8(wireSeq)
	p.lastSendMs = now
	p.phyState = PhyReplyWait
}

func (c *Controller) maybeCapture(p *peer, raw []byte) {
	if c.capture != nil && p.info.Flags&FlagCapturePackets != 0 {
		c.capture(raw)
	}
}

func (c *Controller) handleFrame(p *peer, raw []byte, now int64) {
	c.maybeCapture(p, raw)
	ctx := phy.ScanContext{
		Role:          phy.RoleCP,
		LocalAddress:  p.info.Address,
		CurrentSeq:    p.seq,
		SCActive:      p.sc.Active,
		EnforceSecure: p.enforceSecure(),
		AllowEmptyEnc: p.info.Flags&FlagAllowEmptyEncryptedData != 0,
		Securer:       p.securer(),
	}
	res, err := phy.Decode(ctx, raw)
	if err != nil {
		log.WithError(err).Warnf("cp: pd %d: decode error", p.index)
		p.phyState = PhyIdle
		return
	}

	switch res.Status {
	case phy.StatusSkip:
		return // keep waiting for the real reply within the timeout
	case phy.StatusNack, phy.StatusCheck:
		if res.Deactivate {
			p.sc.Deactivate(now)
			c.notify(p, NotifySCStatus, 0, 0)
		}
		p.retries++
		if p.retries >= MaxPhyRetries {
			c.goOffline(p, now)
		} else {
			p.phyState = PhyWaitRetry
			p.lastSendMs = now
		}
		return
	}

	p.retries = 0
	p.phyState = PhyIdle
	c.dispatchReply(p, res, now)
}

func (c *Controller) dispatchReply(p *peer, res phy.Result, now int64) {
	switch p.state {
	case StateInit:
		if codec.Reply(res.ID) == codec.ReplyPDID {
			if id, err := codec.DecodePDID(res.Payload); err == nil {
				p.id = id
				p.state = StateCapDet
			}
		}

	case StateCapDet:
		if codec.Reply(res.ID) == codec.ReplyPDCap {
			caps, err := codec.DecodeCapabilities(res.Payload)
			if err != nil {
				return
			}
			p.capabilities = caps
			for _, it := range caps {
				switch it.Code {
				case codec.CapCommunicationSecurity:
					p.scCapable = it.Level&0x01 != 0
				case codec.CapReceiveBufferSize:
					p.peerRxSize = int(it.Level) | int(it.NumItems)<<8
				}
			}
			if p.scCapable || p.enforceSecure() {
				p.state = StateSCChlng
			} else {
				p.state = StateOnline
			}
		}

	case StateSCChlng:
		if codec.Reply(res.ID) == codec.ReplyCCrypt {
			cc, err := codec.DecodeCCrypt(res.Payload)
			if err != nil {
				return
			}
			p.sc.PDClientUID = cc.PDClientUID
			p.sc.PDRandom = cc.PDRandom

			// In install mode the default key is the SCBK itself, as on
			// the PD side; otherwise it is derived from the master key.
			scbk := securechannel.DefaultSCBK
			if p.info.Flags&FlagInstallMode == 0 {
				scbk, err = securechannel.DeriveSCBK(p.provider, p.info.MasterKey, p.sc.PDClientUID)
				if err != nil {
					log.WithError(err).Errorf("cp: pd %d: deriving scbk", p.index)
					return
				}
			}
			p.sc.SCBK = scbk
			keys, err := securechannel.DeriveSessionKeys(p.provider, scbk, p.sc.CPRandom)
			if err != nil {
				log.WithError(err).Errorf("cp: pd %d: deriving session keys", p.index)
				return
			}
			p.sc.Keys = keys

			expected, err := securechannel.PDCryptogram(p.provider, keys.Enc, p.sc.CPRandom, p.sc.PDRandom)
			if err != nil || expected != cc.PDCryptogram {
				log.Warnf("cp: pd %d: pd cryptogram mismatch, aborting handshake", p.index)
				p.state = StateCapDet
				return
			}
			p.state = StateSCScrypt
		}

	case StateSCScrypt:
		if codec.Reply(res.ID) == codec.ReplyRMacI {
			rm, err := codec.DecodeRMacI(res.Payload)
			if err != nil {
				return
			}
			expected, err := securechannel.SeedRMAC(p.provider, p.sc.Keys.Mac1, p.sc.Keys.Mac2, p.sc.CPCryptogram)
			if err != nil || expected != rm.RMAC {
				log.Warnf("cp: pd %d: r_mac seed mismatch, aborting handshake", p.index)
				p.state = StateCapDet
				return
			}
			p.sc.MAC = securechannel.MACState{RMAC: expected}
			p.sc.Active = true
			p.state = StateOnline
			c.notify(p, NotifySCStatus, 1, 0)
		}

	case StateOnline:
		c.dispatchOnlineReply(p, res)

	case StateSetSCBK:
		// The clean exchange spec.md:163 calls for has landed: drop
		// the stale session on our side too and restart the
		// handshake from scratch.
		p.sc.Deactivate(now)
		c.notify(p, NotifySCStatus, 0, 0)
		p.state = StateSCChlng
	}
}

func (c *Controller) dispatchOnlineReply(p *peer, res phy.Result) {
	switch codec.Reply(res.ID) {
	case codec.ReplyAck:
		if p.lastCmdID == codec.CmdKeySet {
			// spec.md:163: a KEYSET ACK moves us to SET_SCBK to
			// wait for one clean exchange before dropping SC.
			p.state = StateSetSCBK
		}
	case codec.ReplyNak:
		nak, err := codec.DecodeNak(res.Payload)
		if err == nil {
			log.Debugf("cp: pd %d: NAK %#x", p.index, nak.Reason)
		}
	case codec.ReplyRaw:
		raw, err := codec.DecodeRaw(res.Payload)
		if err == nil {
			c.emit(Event{PDIndex: p.index, Kind: EventCardRead, Reader: raw.Reader, Format: raw.Format, Bits: int(raw.BitCount), Data: raw.Data})
		}
	case codec.ReplyKeypad:
		c.emit(Event{PDIndex: p.index, Kind: EventKeypress, Data: res.Payload})
	case codec.ReplyMfgRep:
		mfg, err := codec.DecodeMfg(res.Payload)
		if err == nil {
			c.emit(Event{PDIndex: p.index, Kind: EventMfgReply, Data: mfg.Data})
		}
	case codec.ReplyLstatr, codec.ReplyIstatr, codec.ReplyOstatr, codec.ReplyRstatr:
		c.emit(Event{PDIndex: p.index, Kind: EventStatus, Data: codec.DecodeStatusReport(res.Payload).Entries})
	case codec.ReplyFTStat:
		st, err := codec.DecodeFTStatus(res.Payload)
		if err == nil {
			c.handleFileStatus(p, st)
		}
	}
}

func (c *Controller) emit(ev Event) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

// handleFileStatus applies an FTSTAT reply to the peer's in-progress
// file transfer, if any, and surfaces completion/failure as an event.
func (c *Controller) handleFileStatus(p *peer, st codec.FTStatus) {
	if p.fileSender == nil {
		return
	}
	ok := st.Status == 0
	if err := p.fileSender.DecodeStatus(ok); err != nil {
		log.WithError(err).Warnf("cp: pd %d: applying file status", p.index)
		return
	}
	switch p.fileSender.TxState() {
	case filetransfer.TxError:
		c.emit(Event{PDIndex: p.index, Kind: EventStatus, StatusT: byte(st.Status), Arg0: -1})
		p.fileSender = nil
	case filetransfer.TxIdle:
		if !p.fileSender.Active() {
			break
		}
		size, offset := p.fileSender.Progress()
		c.emit(Event{PDIndex: p.index, Kind: EventStatus, Arg0: size, Arg1: offset})
		p.fileSender = nil
	}
}
