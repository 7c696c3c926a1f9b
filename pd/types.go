// Package pd implements the peripheral-device side of OSDP: a
// single command-driven context that decodes whatever the CP last
// sent, runs the matching handler, and crafts the reply -- there is
// no CP-style multi-state probe sequence, since a PD never initiates
// anything beyond what it's polled for.
package pd

import (
	"errors"
	"sync"

	"github.com/go-osdp/osdp/channel"
	"github.com/go-osdp/osdp/codec"
	"github.com/go-osdp/osdp/crypto"
	"github.com/go-osdp/osdp/filetransfer"
	"github.com/go-osdp/osdp/phy"
	"github.com/go-osdp/osdp/securechannel"
)

// Flag mirrors cp.Flag's bit meanings, but configures this PD rather
// than how a CP treats a peer.
type Flag uint32

const (
	FlagEnforceSecure Flag = 1 << iota
	FlagInstallMode
	FlagIgnoreUnsolicited
	FlagEnableNotification
	FlagCapturePackets
	FlagAllowEmptyEncryptedData
)

// eventQueueCapacity is the fixed slab size for the pending-event
// queue; spec.md requires a pool of at least 32 slots.
const eventQueueCapacity = 32

var ErrQueueFull = errors.New("pd: event queue full")

// Info configures the identity and transport of one PD context.
type Info struct {
	Address   byte
	Flags     Flag
	MasterKey [16]byte
	Channel   channel.Channel

	PDID         codec.PDID
	Capabilities []codec.Capability
}

// Command carries one decoded application-visible command (OUT, LED,
// BUZ, TEXT, ...) to the CommandCallback; CommandResult.ReplyData lets
// MFGREP-style callbacks write a typed reply instead of a bare ACK.
type Command struct {
	ID      codec.Command
	Payload []byte
}

// CommandResult is what a CommandCallback returns: Ack (default
// zero value) sends ACK, Nak sends NAK with Reason, and ReplyData lets
// a MFG command answer with MFGREP data.
type CommandResult struct {
	Nak       bool
	Reason    codec.NAKReason
	ReplyData []byte // non-nil -> send MFGREP with this payload instead of ACK
}

// CommandCallback handles OUT/LED/BUZ/TEXT/MFG. Commands the Context
// does not recognize are NAKed without reaching the callback.
type CommandCallback func(cmd Command) CommandResult

// Event is something the application wants delivered on the next
// POLL reply: a card read, a keypress, a status report, or an MFGREP.
type Event struct {
	Kind   EventKind
	Reader byte
	Format codec.RawFormat
	Bits   int
	Data   []byte
}

type EventKind int

const (
	EventCardRead EventKind = iota
	EventKeypress
	EventMfgReply
	EventStatus
)

// eventQueue is a fixed-capacity FIFO over a pre-sized backing array:
// it never grows or reallocates past newEventQueue, matching
// spec.md's bounded-slab queue requirement.
type eventQueue struct {
	buf   []Event
	head  int
	count int
}

func newEventQueue(capacity int) eventQueue {
	return eventQueue{buf: make([]Event, capacity)}
}

func (q *eventQueue) Len() int { return q.count }

func (q *eventQueue) Push(ev Event) bool {
	if q.count == len(q.buf) {
		return false
	}
	q.buf[(q.head+q.count)%len(q.buf)] = ev
	q.count++
	return true
}

func (q *eventQueue) Pop() (Event, bool) {
	if q.count == 0 {
		return Event{}, false
	}
	ev := q.buf[q.head]
	q.buf[q.head] = Event{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return ev, true
}

// Context is the full PD-side runtime: one per physical device,
// driven exclusively by repeated Refresh calls on a single goroutine.
type Context struct {
	mu sync.Mutex

	info     Info
	provider crypto.Provider

	framer *phy.Framer
	seq    int8

	sc securechannel.State

	events eventQueue

	cmdCallback CommandCallback

	comsetPending *codec.ComSet

	fileOps      filetransfer.Ops
	fileReceiver *filetransfer.Receiver

	lstat, istat, ostat, rstat []byte

	capture func(raw []byte)
}

// New builds a PD Context. Context keeps no clock of its own beyond
// the time Refresh is handed.
func New(info Info) *Context {
	c := &Context{
		info:     info,
		provider: crypto.Default(),
		framer:   phy.NewFramer(phy.MaxPacketSize + 1),
		seq:      0,
		events:   newEventQueue(eventQueueCapacity),
	}
	if info.Flags&FlagInstallMode != 0 {
		c.sc.UsingDefaultKey = true
	}
	return c
}

// SetCommandCallback installs the application handler for OUT/LED/
// BUZ/TEXT/MFG commands.
func (c *Context) SetCommandCallback(cb CommandCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmdCallback = cb
}

// RegisterFileOps enables FILETRANSFER handling by supplying the
// application's open/read/write/close hooks.
func (c *Context) RegisterFileOps(ops filetransfer.Ops) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fileOps = ops
	c.fileReceiver = filetransfer.NewReceiver(ops)
}

// SubmitEvent enqueues an asynchronous event to attach to the next
// POLL reply; it is the only way application code surfaces a card
// read, keypress, or status change.
func (c *Context) SubmitEvent(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.events.Push(ev) {
		return ErrQueueFull
	}
	return nil
}

// SetStatusReports lets the application seed the bytes LSTAT/ISTAT/
// OSTAT/RSTAT reply with; each is a flat list of status-entry bytes
// per the codec's StatusReport encoding.
func (c *Context) SetStatusReports(lstat, istat, ostat, rstat []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lstat, c.istat, c.ostat, c.rstat = lstat, istat, ostat, rstat
}

// SetCapture installs a sink every raw frame is copied to when
// FlagCapturePackets is set. A *pcap.Writer's Capture method matches
// this signature.
func (c *Context) SetCapture(fn func(raw []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capture = fn
}

func (c *Context) maybeCapture(raw []byte) {
	if c.capture != nil && c.info.Flags&FlagCapturePackets != 0 {
		c.capture(raw)
	}
}

// SCActive reports whether the secure channel is currently
// established.
func (c *Context) SCActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sc.Active
}

func (c *Context) enforceSecure() bool {
	return c.info.Flags&FlagEnforceSecure != 0
}
