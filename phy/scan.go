package phy

import (
	"github.com/go-osdp/osdp/codec"
	"github.com/go-osdp/osdp/securechannel"
)

// ScanContext carries everything Decode needs to validate and, where
// applicable, de-secure one already-framed packet. It is supplied
// fresh by the caller (the cp or pd state machine) on every call
// rather than owned by the Framer, since address, sequence, and SC
// state all belong to the per-peer session, not the byte pipe.
type ScanContext struct {
	Role         Role
	LocalAddress byte // this station's 7-bit address (PD side) or the target PD's address (CP side)
	CurrentSeq   int8 // -1 (about to resync), 0..3

	SCActive      bool
	EnforceSecure bool
	AllowEmptyEnc bool

	Securer Securer
}

// Securer abstracts the secure-channel operations Decode and Build
// need, so phy depends only on an interface rather than importing a
// concrete session type from the cp/pd packages.
type Securer interface {
	ComputeMAC(isCommand bool, clear []byte) ([4]byte, securechannel.MACState, error)
	VerifyMAC(isCommand bool, clear []byte, wireMAC [4]byte) (securechannel.MACState, bool, error)
	Encrypt(isCommand bool, plaintext []byte) ([]byte, error)
	Decrypt(isCommand bool, ciphertext []byte, allowEmpty bool) ([]byte, error)
}

// Result is the semantic outcome of decoding one framed packet.
type Result struct {
	Status     Status
	Broadcast  bool
	NewSeq     int8
	SCSType    codec.SCSType
	ID         byte
	Payload    []byte
	NakReason  codec.NAKReason
	Deactivate bool
	MACState   securechannel.MACState
}

// Decode validates and, if the packet is secured, authenticates and
// decrypts one complete raw packet handed back by Framer.NextFrame.
// It implements scan-path steps 5-9 from the spec: address check,
// sequence check, SCB presence/type check, MAC verification, and
// decryption.
func Decode(ctx ScanContext, raw []byte) (Result, error) {
	addrByte := raw[1]
	control := raw[4]
	hasCRC := control&ControlCRC != 0
	trailerLen := 1
	if hasCRC {
		trailerLen = 2
	}
	hasSCB := control&ControlSCB != 0

	body := raw[5 : len(raw)-trailerLen]

	// Step 5: address / direction check.
	fromPD := addrByte&DirectionBit != 0
	addr7 := addrByte &^ DirectionBit
	broadcast := ctx.Role == RolePD && addr7 == 0x7F

	if ctx.Role == RolePD {
		if fromPD {
			return Result{Status: StatusSkip}, nil
		}
		if !broadcast && addr7 != ctx.LocalAddress {
			return Result{Status: StatusSkip}, nil
		}
	} else {
		if !fromPD || addr7 != ctx.LocalAddress {
			return Result{Status: StatusCheck}, nil
		}
	}

	var scbOff int
	var scsType codec.SCSType
	if hasSCB {
		if len(body) < 2 {
			return Result{Status: StatusCheck}, nil
		}
		scbLen := int(body[0])
		if scbLen < 2 || scbLen > len(body) {
			return Result{Status: StatusCheck}, nil
		}
		scsType = codec.SCSType(body[1])
		scbOff = scbLen
	}

	id := body[scbOff]
	payload := body[scbOff+1:]

	seqByte := raw[4] & SeqMask

	// Step 6: sequence check. PD validates and may NAK; CP merely
	// drops replies that don't match the command it most recently
	// sent (an unsolicited or stale reply is ignored, not NAK'd: only
	// a PD can originate a NAK).
	newSeq := ctx.CurrentSeq
	if ctx.Role == RolePD {
		switch {
		case seqByte == 0:
			newSeq = 0 // CP-initiated resync
		case int8(seqByte) == ctx.CurrentSeq:
			newSeq = ctx.CurrentSeq // benign retransmit, reprocess
		case int8(seqByte) == nextSeq(ctx.CurrentSeq):
			newSeq = int8(seqByte)
		default:
			return Result{Status: StatusNack, NakReason: codec.NAKSeqNumber}, nil
		}
	} else {
		if int8(seqByte) != ctx.CurrentSeq {
			return Result{Status: StatusSkip}, nil
		}
	}

	// Step 7: SCB presence/type check against the secure-channel state.
	// A plaintext NAK is always tolerated, even under an enforced
	// secure channel, since it may be the PD's only way to report a
	// problem before SC has been established.
	if ctx.EnforceSecure && !hasSCB && codec.Reply(id) != codec.ReplyNak {
		return Result{Status: StatusNack, NakReason: codec.NAKSCCond}, nil
	}
	if hasSCB && scsType.IsSecure() && !ctx.SCActive {
		return Result{Status: StatusNack, NakReason: codec.NAKSCCond}, nil
	}

	isCommand := ctx.Role == RolePD // a PD is always decoding a command; a CP is always decoding a reply
	result := Result{Status: StatusNone, Broadcast: broadcast, NewSeq: newSeq, SCSType: scsType, ID: id}

	if hasSCB && scsType.IsSecure() {
		if ctx.Securer == nil {
			return Result{}, ErrNoSecurity
		}
		// The last 4 bytes before the trailer are the MAC, not payload.
		if len(payload) < 4 {
			return Result{Status: StatusCheck}, nil
		}
		payload = payload[:len(payload)-4]
		macBuf := raw[:len(raw)-trailerLen-4]
		var wireMAC [4]byte
		copy(wireMAC[:], raw[len(raw)-trailerLen-4:len(raw)-trailerLen])

		// Decrypt before VerifyMAC advances the MAC register: the sender
		// encrypted under the register as it stood before this packet.
		var plain []byte
		var decErr error
		if scsType.IsEncrypted() {
			plain, decErr = ctx.Securer.Decrypt(isCommand, payload, ctx.AllowEmptyEnc)
		}

		state, ok, err := ctx.Securer.VerifyMAC(isCommand, macBuf, wireMAC)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{Status: StatusNack, NakReason: codec.NAKSCCond, Deactivate: true}, nil
		}
		result.MACState = state

		if scsType.IsEncrypted() {
			if decErr != nil {
				return Result{Status: StatusNack, NakReason: codec.NAKSCCond, Deactivate: true}, nil
			}
			payload = plain
		}
	}

	result.Payload = payload
	return result, nil
}

// nextSeq advances a sequence counter through its 1,2,3 cycle. -1
// means "about to resync": its successor is 0, the resync value
// itself, which the caller handles as a special case above.
func nextSeq(cur int8) int8 {
	if cur < 0 {
		return 0
	}
	n := cur + 1
	if n > 3 {
		n = 1
	}
	return n
}
