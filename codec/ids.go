// Package codec serializes and parses the typed OSDP command and
// reply payloads: exact field order, width, and endianness per the
// wire format, with no reliance on struct memory layout.
package codec

// Command is a CP->PD command identifier byte.
type Command byte

const (
	CmdPoll         Command = 0x60
	CmdID           Command = 0x61
	CmdCap          Command = 0x62
	CmdLstat        Command = 0x64
	CmdIstat        Command = 0x65
	CmdOstat        Command = 0x66
	CmdRstat        Command = 0x67
	CmdOut          Command = 0x68
	CmdLed          Command = 0x69
	CmdBuz          Command = 0x6A
	CmdText         Command = 0x6B
	CmdTDSet        Command = 0x6D
	CmdComSet       Command = 0x6E
	CmdBioRead      Command = 0x73
	CmdBioMatch     Command = 0x74
	CmdKeySet       Command = 0x75
	CmdChlng        Command = 0x76
	CmdSCrypt       Command = 0x77
	CmdACURxSize    Command = 0x7B
	CmdFileTransfer Command = 0x7C
	CmdMfg          Command = 0x80
	CmdAbort        Command = 0xA2
	CmdKeepActive   Command = 0xA7
)

// Reply is a PD->CP reply identifier byte.
type Reply byte

const (
	ReplyAck       Reply = 0x40
	ReplyNak       Reply = 0x41
	ReplyPDID      Reply = 0x45
	ReplyPDCap     Reply = 0x46
	ReplyLstatr    Reply = 0x48
	ReplyIstatr    Reply = 0x49
	ReplyOstatr    Reply = 0x4A
	ReplyRstatr    Reply = 0x4B
	ReplyRaw       Reply = 0x50
	ReplyFmt       Reply = 0x51 // deprecated
	ReplyKeypad    Reply = 0x53
	ReplyCom       Reply = 0x54
	ReplyBioReadR  Reply = 0x57
	ReplyBioMatchR Reply = 0x58
	ReplyCCrypt    Reply = 0x76
	ReplyRMacI     Reply = 0x78
	ReplyBusy      Reply = 0x79
	ReplyFTStat    Reply = 0x7A
	ReplyMfgRep    Reply = 0x90
	ReplyXRD       Reply = 0xB1
)

// NAKReason is the single byte carried in a NAK reply payload.
type NAKReason byte

const (
	NAKNone       NAKReason = 0x00
	NAKMsgCheck   NAKReason = 0x01
	NAKCmdLen     NAKReason = 0x02
	NAKCmdUnknown NAKReason = 0x03
	NAKSeqNumber  NAKReason = 0x04
	NAKSCUnsup    NAKReason = 0x05
	NAKSCCond     NAKReason = 0x06
	NAKBioType    NAKReason = 0x07
	NAKBioFormat  NAKReason = 0x08
	NAKRecord     NAKReason = 0x09
)

// SCSType is the security-block-type byte carried in byte[1] of the
// SCB when the control block-present bit is set.
type SCSType byte

const (
	SCSChallenge    SCSType = 0x11 // CHLNG from CP
	SCSCCrypt       SCSType = 0x12 // CCRYPT from PD
	SCSCrypt        SCSType = 0x13 // SCRYPT from CP
	SCSRMacI        SCSType = 0x14 // RMAC_I from PD
	SCSNoDataCmd    SCSType = 0x15 // MAC only, CP->PD
	SCSNoDataReply  SCSType = 0x16 // MAC only, PD->CP
	SCSEncryptedCmd SCSType = 0x17 // MAC + encrypted data, CP->PD
	SCSEncryptedRpl SCSType = 0x18 // MAC + encrypted data, PD->CP
)

// IsHandshake reports whether s is one of the four SC handshake block
// types (0x11..0x14), as opposed to a steady-state 0x15..0x18 block.
func (s SCSType) IsHandshake() bool {
	return s >= SCSChallenge && s <= SCSRMacI
}

// IsSecure reports whether s is a steady-state secure block (MAC
// present, 0x15..0x18).
func (s SCSType) IsSecure() bool {
	return s >= SCSNoDataCmd && s <= SCSEncryptedRpl
}

// IsEncrypted reports whether s carries an encrypted data block.
func (s SCSType) IsEncrypted() bool {
	return s == SCSEncryptedCmd || s == SCSEncryptedRpl
}
