package cp

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/go-osdp/osdp/codec"
	"github.com/go-osdp/osdp/filetransfer"
	"github.com/go-osdp/osdp/phy"
)

var (
	ErrUnknownPD  = errors.New("cp: unknown PD index")
	ErrPDDisabled = errors.New("cp: PD is disabled")
	ErrQueueFull  = errors.New("cp: command queue full")
	ErrNoCallback = errors.New("cp: no event callback installed")
)

// Clock is the monotonic millisecond source driving every timeout.
type Clock interface {
	NowMs() int64
}

// SystemClock implements Clock with the wall clock.
type SystemClock struct{}

func (SystemClock) NowMs() int64 { return time.Now().UnixNano() / int64(time.Millisecond) }

// Controller manages a set of PDs and must be driven by repeated
// calls to Refresh on a single goroutine: there are no background
// threads or internal timers.
type Controller struct {
	mu    sync.Mutex
	peers []*peer
	clock Clock

	onEvent EventCallback
	capture func(raw []byte)

	channelLocks map[string]int
}

// New builds a Controller for the given PDs. clock may be nil to use
// SystemClock.
func New(infos []Info, clock Clock) *Controller {
	if clock == nil {
		clock = SystemClock{}
	}
	c := &Controller{clock: clock, channelLocks: map[string]int{}}
	for i, info := range infos {
		c.peers = append(c.peers, newPeer(i, info))
	}
	return c
}

// SetEventCallback installs the sink for PD-originated events.
func (c *Controller) SetEventCallback(cb EventCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = cb
}

// SetCapture installs a sink every raw frame is copied to for PDs
// with FlagCapturePackets set, in the order captured (send then
// reply). A *pcap.Writer's Capture method matches this signature.
func (c *Controller) SetCapture(fn func(raw []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capture = fn
}

func (c *Controller) pd(idx int) (*peer, error) {
	if idx < 0 || idx >= len(c.peers) {
		return nil, ErrUnknownPD
	}
	return c.peers[idx], nil
}

// SubmitCommand enqueues an application command for PD idx.
func (c *Controller) SubmitCommand(idx int, id codec.Command, payload []byte) error {
	p, err := c.pd(idx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDisabled {
		return ErrPDDisabled
	}
	if !p.queue.Push(QueuedCommand{ID: id, Payload: payload}) {
		return ErrQueueFull
	}
	return nil
}

// DisablePD clears a PD's queue and phy state and moves it to DISABLED.
func (c *Controller) DisablePD(idx int) error {
	p, err := c.pd(idx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateDisabled
	p.phyState = PhyIdle
	p.queue.Reset()
	p.fileSender = nil
	p.sc.Deactivate(c.clock.NowMs())
	return nil
}

// EnablePD re-enters a disabled PD into INIT.
func (c *Controller) EnablePD(idx int) error {
	p, err := c.pd(idx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateDisabled {
		return nil
	}
	p.state = StateInit
	p.seq = -1
	return nil
}

// IsPDEnabled reports whether a PD is currently enabled.
func (c *Controller) IsPDEnabled(idx int) (bool, error) {
	p, err := c.pd(idx)
	if err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state != StateDisabled, nil
}

// GetPDID returns the last decoded PDID for a PD.
func (c *Controller) GetPDID(idx int) (codec.PDID, error) {
	p, err := c.pd(idx)
	if err != nil {
		return codec.PDID{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id, nil
}

// GetCapability returns the PD's reported capability entry for code,
// if present.
func (c *Controller) GetCapability(idx int, code byte) (codec.Capability, bool, error) {
	p, err := c.pd(idx)
	if err != nil {
		return codec.Capability{}, false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, item := range p.capabilities {
		if item.Code == code {
			return item, true, nil
		}
	}
	return codec.Capability{}, false, nil
}

// StartFileTransfer begins pushing fileID to PD idx, reading chunks
// through ops. File chunks preempt the command queue once the PD is
// ONLINE, so the transfer makes progress on every tick until it
// completes, is cancelled, or exhausts its retry budget.
func (c *Controller) StartFileTransfer(idx int, ops filetransfer.Ops, fileID int, flags uint32) error {
	p, err := c.pd(idx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fileSender == nil {
		p.fileSender = filetransfer.NewSender(ops)
	}
	return p.fileSender.Start(fileID, flags)
}

// CancelFileTransfer requests cancellation of PD idx's in-progress
// file transfer.
func (c *Controller) CancelFileTransfer(idx int) error {
	p, err := c.pd(idx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fileSender == nil {
		return filetransfer.ErrNotInProgress
	}
	p.fileSender.Abort()
	p.fileSender = nil
	return nil
}

// GetFileTransferProgress reports the current size/offset of PD idx's
// file transfer, if one is active.
func (c *Controller) GetFileTransferProgress(idx int) (size, offset int, active bool, err error) {
	p, err := c.pd(idx)
	if err != nil {
		return 0, 0, false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fileSender == nil {
		return 0, 0, false, nil
	}
	size, offset = p.fileSender.Progress()
	return size, offset, p.fileSender.Active(), nil
}

// GetStatusMask returns one bit per PD, set when that PD is ONLINE.
func (c *Controller) GetStatusMask() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var mask uint32
	for i, p := range c.peers {
		p.mu.Lock()
		if p.state == StateOnline {
			mask |= 1 << uint(i)
		}
		p.mu.Unlock()
	}
	return mask
}

// GetSCStatusMask returns one bit per PD, set when its secure channel
// is active.
func (c *Controller) GetSCStatusMask() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var mask uint32
	for i, p := range c.peers {
		p.mu.Lock()
		if p.sc.Active {
			mask |= 1 << uint(i)
		}
		p.mu.Unlock()
	}
	return mask
}

// Refresh drives every PD one cooperative tick. Call it repeatedly
// from a single goroutine, ideally every PollTimeoutMs.
func (c *Controller) Refresh() {
	now := c.clock.NowMs()
	for _, p := range c.peers {
		c.refreshPeer(p, now)
	}
}

func (c *Controller) refreshPeer(p *peer, now int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateDisabled {
		return
	}

	if !c.acquireChannel(p) {
		return
	}

	var rxbuf [256]byte
	n, err := p.info.Channel.Recv(rxbuf[:])
	if err != nil {
		log.WithError(err).Warnf("cp: pd %d recv error", p.index)
	}
	if n > 0 {
		p.framer.Feed(rxbuf[:n])
	}

	if p.state == StateOffline {
		c.maybeReprobe(p, now)
		return
	}

	switch p.phyState {
	case PhyIdle:
		c.sendNext(p, now)
	case PhyReplyWait:
		c.pumpReplies(p, now)
	case PhyWaitRetry:
		if now-p.lastSendMs >= CmdRetryWaitMs {
			p.phyState = PhyIdle
		}
	}

	if p.phyState != PhyReplyWait {
		c.releaseChannel(p)
	}
}

func (c *Controller) acquireChannel(p *peer) bool {
	if p.info.ChannelID == "" {
		return true
	}
	owner, held := c.channelLocks[p.info.ChannelID]
	if held && owner != p.index {
		return false
	}
	c.channelLocks[p.info.ChannelID] = p.index
	return true
}

func (c *Controller) releaseChannel(p *peer) {
	if p.info.ChannelID == "" {
		return
	}
	delete(c.channelLocks, p.info.ChannelID)
}

func (c *Controller) maybeReprobe(p *peer, now int64) {
	if now-p.offlineSinceMs >= ErrRetrySeconds*1000 {
		log.Infof("cp: pd %d re-probing after offline backoff", p.index)
		p.state = StateInit
		p.retries = 0
		p.seq = -1
	}
}

func (c *Controller) pumpReplies(p *peer, now int64) {
	for {
		fr := p.framer.NextFrame()
		switch fr.Status {
		case phy.StatusWait:
			if now-p.lastSendMs >= RespTimeoutMs {
				c.onPhyTimeout(p)
			}
			return
		case phy.StatusCheck, phy.StatusFmt:
			continue
		case phy.StatusNone:
			c.handleFrame(p, fr.Raw, now)
			return
		}
	}
}

func (c *Controller) onPhyTimeout(p *peer) {
	p.retries++
	log.Warnf("cp: pd %d response timeout (retry %d)", p.index, p.retries)
	if p.retries >= MaxPhyRetries {
		c.goOffline(p, c.clock.NowMs())
		return
	}
	p.phyState = PhyWaitRetry
}

func (c *Controller) goOffline(p *peer, now int64) {
	log.Warnf("cp: pd %d going OFFLINE", p.index)
	p.state = StateOffline
	p.offlineSinceMs = now
	p.phyState = PhyIdle
	p.retries = 0
	p.sc.Deactivate(now)
	c.notify(p, NotifyPDStatus, 0, 0)
}

func (c *Controller) notify(p *peer, kind EventKind, a0, a1 int) {
	if c.onEvent == nil {
		return
	}
	c.onEvent(Event{PDIndex: p.index, Kind: EventNotification, StatusT: byte(kind), Arg0: a0, Arg1: a1})
}
