// Package phy implements the OSDP packet physical layer: framing,
// length and trailer validation, sequence numbering, mark-byte
// handling, and the ring-buffered assembly of bytes arriving from a
// channel into whole packets.
package phy

import "errors"

// Wire constants, bit-exact per the spec.
const (
	Mark byte = 0xFF
	SOM  byte = 0x53

	SeqMask      byte = 0x03
	ControlCRC   byte = 0x04
	ControlSCB   byte = 0x08
	DirectionBit byte = 0x80 // set in the address byte iff PD->CP

	// MaxPacketSize is OSDP_PACKET_BUF_SIZE: the largest packet this
	// library will ever assemble or accept.
	MaxPacketSize = 512

	// MinPacketSize is the smallest structurally valid packet: SOM,
	// address, 2-byte length, control, one ID byte, one checksum byte.
	MinPacketSize = 7
)

// Role distinguishes which side of the link a Framer/Decode call is
// running on, since the address direction bit and sequence rules are
// asymmetric between CP and PD.
type Role int

const (
	RoleCP Role = iota
	RolePD
)

// Status is the outcome of one scan/decode attempt, mirroring the
// internal PHY error taxonomy from the spec (NONE, FMT, WAIT, SKIP,
// CHECK, BUSY, NACK, BUILD, NO_DATA).
type Status int

const (
	StatusNone   Status = iota // a well-formed packet was decoded
	StatusWait                 // not enough bytes yet; try again later
	StatusSkip                 // foreign/broadcast-mismatched packet; ignore
	StatusFmt                  // malformed header; bytes discarded, rescan
	StatusCheck                // trailer/address mismatch; bytes discarded
	StatusBusy                 // PD replied BUSY
	StatusNack                 // PHY itself decided to NAK (reason set)
	StatusNoData               // nothing available from the channel
)

var (
	ErrBuild      = errors.New("phy: failed to build outgoing packet")
	ErrTooLarge   = errors.New("phy: finalized packet exceeds peer receive size")
	ErrNoSecurity = errors.New("phy: secure block present but no securer configured")
	ErrBadSCB     = errors.New("phy: malformed security control block")
)
