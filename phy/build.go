package phy

import (
	"github.com/go-osdp/osdp/codec"
	"github.com/go-osdp/osdp/internal/crc"
)

// BuildParams describes one outgoing packet. The caller (cp or pd)
// has already decided the command/reply ID, encoded its payload
// through the codec package, and picked the SC block type if any;
// Build's job is purely to frame, secure, and trailer it.
type BuildParams struct {
	Address     byte
	FromPDToCP  bool
	Sequence    byte // 0..3
	UseCRC      bool
	IncludeMark bool

	SCB     []byte // raw SCB bytes (len, type, ...), nil if none
	SCSType codec.SCSType

	ID      byte
	Payload []byte // cleartext payload-after-ID

	Securer   Securer
	IsCommand bool
}

// Build assembles a complete wire packet, encrypting and MAC'ing it
// under p.Securer when p.SCSType calls for it, and fails with
// ErrTooLarge if the finalized packet would exceed maxPeerRxSize (0
// disables the check).
func Build(p BuildParams, maxPeerRxSize int) ([]byte, error) {
	payload := p.Payload
	if p.SCSType.IsEncrypted() {
		if p.Securer == nil {
			return nil, ErrNoSecurity
		}
		enc, err := p.Securer.Encrypt(p.IsCommand, payload)
		if err != nil {
			return nil, err
		}
		payload = enc
	}

	addr := p.Address & 0x7F
	if p.FromPDToCP {
		addr |= DirectionBit
	}

	control := p.Sequence & SeqMask
	if p.UseCRC {
		control |= ControlCRC
	}
	if p.SCB != nil {
		control |= ControlSCB
	}

	var buf []byte
	if p.IncludeMark {
		buf = append(buf, Mark)
	}
	buf = append(buf, SOM, addr, 0, 0, control)
	if p.SCB != nil {
		buf = append(buf, p.SCB...)
	}
	buf = append(buf, p.ID)
	buf = append(buf, payload...)

	trailerLen := 1
	if p.UseCRC {
		trailerLen = 2
	}

	headerStart := 0
	if p.IncludeMark {
		headerStart = 1
	}
	macLen := 0
	if p.SCSType.IsSecure() {
		macLen = 4 // appended below, after the length is in place
	}
	length := len(buf) - headerStart + macLen + trailerLen
	if maxPeerRxSize > 0 && length > maxPeerRxSize {
		return nil, ErrTooLarge
	}
	if length > MaxPacketSize {
		return nil, ErrTooLarge
	}
	buf[headerStart+2] = byte(length)
	buf[headerStart+3] = byte(length >> 8)

	if p.SCSType.IsSecure() {
		if p.Securer == nil {
			return nil, ErrNoSecurity
		}
		mac, _, err := p.Securer.ComputeMAC(p.IsCommand, buf[headerStart:])
		if err != nil {
			return nil, err
		}
		buf = append(buf, mac[:]...)
	}

	if p.UseCRC {
		sum := crc.Compute(buf[headerStart:])
		buf = append(buf, byte(sum), byte(sum>>8))
	} else {
		buf = append(buf, crc.Checksum(buf[headerStart:]))
	}

	return buf, nil
}
