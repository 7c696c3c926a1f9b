// Package filetransfer implements the OSDP file transfer
// sub-protocol: a PD-greedy, chunked, retryable transfer of an
// opaque file from a CP to a PD, driven by the FILETRANSFER command
// and FTSTAT reply.
package filetransfer

import "errors"

// ErrorRetryMax is the number of consecutive chunk failures tolerated
// before a transfer is abandoned.
const ErrorRetryMax = 10

// HeaderOverhead is the on-wire size of a FileTransfer payload's fixed
// header, subtracted from the available packet space when sizing a
// chunk so the sender never builds an oversize command.
const HeaderOverhead = 11

// FrameOverhead is a conservative allowance for PHY framing and MAC
// bytes the codec layer doesn't account for: header (5), SCB (2),
// command ID (1), MAC (4), CRC (2) and up to 16 bytes of encryption
// padding; file transfer greedily fills whatever room is left in a
// packet.
const FrameOverhead = 30

var (
	ErrOpsNotRegistered = errors.New("filetransfer: no file ops registered")
	ErrNotInProgress    = errors.New("filetransfer: no transfer in progress")
	ErrAlreadyRunning   = errors.New("filetransfer: a transfer is already in progress")
	ErrInvalidCancel    = errors.New("filetransfer: invalid cancel request")
	ErrShortChunk       = errors.New("filetransfer: insufficient space for a chunk")
)

// State is the lifecycle of one transfer.
type State int

const (
	StateIdle State = iota
	StateInProgress
	StateDone
	StateError
)

// TxState mirrors the spec's OSDP_FILE_TX_STATE_* values reported
// through the public status query.
type TxState int

const (
	TxIdle TxState = iota
	TxPending
	TxError
)

// Ops is the file-backing interface a caller must provide: an open
// file descriptor, reads (sender) or writes (receiver) at the offset
// each chunk carries, and a close.
type Ops interface {
	Open(fileID int, flags uint32) (size int, err error)
	Read(p []byte, offset int) (int, error)
	Write(p []byte, offset int) error
	Close() error
}

const (
	FlagCancel uint32 = 1 << iota
)
