// Package cp implements the control-panel side of OSDP: one FSM per
// peripheral device, a FIFO command queue, and the phy-level
// send/reply-wait loop that drives each PD from INIT through to
// ONLINE and keeps it there.
package cp

import (
	"sync"

	"github.com/go-osdp/osdp/channel"
	"github.com/go-osdp/osdp/codec"
	"github.com/go-osdp/osdp/crypto"
	"github.com/go-osdp/osdp/filetransfer"
	"github.com/go-osdp/osdp/phy"
	"github.com/go-osdp/osdp/securechannel"
)

// State is a PD's per-PD FSM state, as seen from the control panel.
type State int

const (
	StateInit State = iota
	StateCapDet
	StateSCChlng
	StateSCScrypt
	StateSetSCBK
	StateOnline
	StateOffline
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateCapDet:
		return "CAPDET"
	case StateSCChlng:
		return "SC_CHLNG"
	case StateSCScrypt:
		return "SC_SCRYPT"
	case StateSetSCBK:
		return "SET_SCBK"
	case StateOnline:
		return "ONLINE"
	case StateOffline:
		return "OFFLINE"
	case StateDisabled:
		return "DISABLED"
	default:
		return "UNKNOWN"
	}
}

// PhyState is the per-PD phy sub-FSM: one outstanding command at a
// time, no pipelining.
type PhyState int

const (
	PhyIdle PhyState = iota
	PhySendCmd
	PhyReplyWait
	PhyWaitRetry
)

// Timing constants, named after the spec's OSDP_* constants.
const (
	PollTimeoutMs   = 50
	RespTimeoutMs   = 200
	CmdRetryWaitMs  = 500
	ErrRetrySeconds = 5
	MaxPhyRetries   = 3
)

// Config option flags, one bitset per PD.
type Flag uint32

const (
	FlagEnforceSecure Flag = 1 << iota
	FlagInstallMode
	FlagIgnoreUnsolicited
	FlagEnableNotification
	FlagCapturePackets
	FlagAllowEmptyEncryptedData
)

// Info configures one PD a CP will manage.
type Info struct {
	Address   byte
	Flags     Flag
	MasterKey [16]byte
	Channel   channel.Channel
	ChannelID string // PDs sharing a ChannelID serialize access via the channel lock
}

// QueuedCommand is one application command waiting to be sent.
type QueuedCommand struct {
	ID      codec.Command
	Payload []byte
}

// queueCapacity is the fixed slab size for a peer's command queue;
// spec.md requires a pool of at least 32 slots.
const queueCapacity = 32

// cmdQueue is a fixed-capacity FIFO over a pre-sized backing array: it
// never grows or reallocates past newCmdQueue, matching spec.md's
// bounded-slab queue requirement.
type cmdQueue struct {
	buf   []QueuedCommand
	head  int
	count int
}

func newCmdQueue(capacity int) cmdQueue {
	return cmdQueue{buf: make([]QueuedCommand, capacity)}
}

func (q *cmdQueue) Len() int { return q.count }

func (q *cmdQueue) Push(qc QueuedCommand) bool {
	if q.count == len(q.buf) {
		return false
	}
	q.buf[(q.head+q.count)%len(q.buf)] = qc
	q.count++
	return true
}

func (q *cmdQueue) Pop() (QueuedCommand, bool) {
	if q.count == 0 {
		return QueuedCommand{}, false
	}
	qc := q.buf[q.head]
	q.buf[q.head] = QueuedCommand{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return qc, true
}

func (q *cmdQueue) Reset() {
	for i := range q.buf {
		q.buf[i] = QueuedCommand{}
	}
	q.head, q.count = 0, 0
}

// Event is delivered to the CP's event callback whenever a PD reply
// carries something the application needs to see.
type Event struct {
	PDIndex int
	Kind    EventKind
	Reader  byte
	Format  codec.RawFormat
	Bits    int
	Data    []byte
	StatusT byte
	Arg0    int
	Arg1    int
}

type EventKind int

const (
	EventCardRead EventKind = iota
	EventKeypress
	EventMfgReply
	EventStatus
	EventNotification
)

// Notification kinds, mirroring the spec's NOTIFICATION kinds; an
// EventNotification carries one of these in its StatusT field.
const (
	NotifyCommand EventKind = iota + 100
	NotifySCStatus
	NotifyPDStatus
)

// EventCallback receives asynchronous events surfaced by a PD.
type EventCallback func(ev Event)

// peer is the full per-PD runtime state.
type peer struct {
	mu sync.Mutex

	info     Info
	index    int
	provider crypto.Provider

	framer *phy.Framer
	seq    int8

	state          State
	phyState       PhyState
	retries        int
	lastSendMs     int64
	offlineSinceMs int64

	queue     cmdQueue
	lastCmdID codec.Command

	id           codec.PDID
	capabilities []codec.Capability
	scCapable    bool
	peerRxSize   int

	sc securechannel.State

	fileSender *filetransfer.Sender
}

func newPeer(idx int, info Info) *peer {
	p := &peer{
		info:       info,
		index:      idx,
		provider:   crypto.Default(),
		framer:     phy.NewFramer(phy.MaxPacketSize + 1),
		seq:        -1,
		state:      StateInit,
		peerRxSize: phy.MaxPacketSize,
		queue:      newCmdQueue(queueCapacity),
	}
	if info.Flags&FlagInstallMode != 0 {
		p.sc.UsingDefaultKey = true
	}
	return p
}

func (p *peer) enforceSecure() bool {
	return p.info.Flags&FlagEnforceSecure != 0
}
