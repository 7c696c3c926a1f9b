package pd

import (
	log "github.com/sirupsen/logrus"

	"github.com/go-osdp/osdp/phy"
)

// Refresh pulls whatever bytes are available from the channel, and,
// once a whole command has framed, dispatches and replies. Like the
// CP side there is no pipelining: one command is fully handled per
// call before Refresh returns, matching the spec's single-outstanding-
// exchange rule.
func (c *Context) Refresh(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rxbuf [512]byte
	n, err := c.info.Channel.Recv(rxbuf[:])
	if err != nil {
		log.WithError(err).Warn("pd: recv error")
		return
	}
	if n > 0 {
		c.framer.Feed(rxbuf[:n])
	}

	for {
		fr := c.framer.NextFrame()
		switch fr.Status {
		case phy.StatusWait:
			return
		case phy.StatusCheck, phy.StatusFmt:
			continue
		case phy.StatusNone:
			c.handleFrame(fr.Raw, now)
			return
		default:
			return
		}
	}
}

func (c *Context) handleFrame(raw []byte, now int64) {
	c.maybeCapture(raw)
	ctx := phy.ScanContext{
		Role:          phy.RolePD,
		LocalAddress:  c.info.Address,
		CurrentSeq:    c.seq,
		SCActive:      c.sc.Active,
		EnforceSecure: c.enforceSecure(),
		AllowEmptyEnc: c.info.Flags&FlagAllowEmptyEncryptedData != 0,
		Securer:       c.securer(),
	}
	res, err := phy.Decode(ctx, raw)
	if err != nil {
		log.WithError(err).Warn("pd: decode error")
		return
	}

	switch res.Status {
	case phy.StatusSkip:
		return // not addressed to us, or a foreign command direction bit
	case phy.StatusNack:
		if res.Deactivate {
			c.sc.Deactivate(now)
		}
		c.nak(res.NakReason)
		return
	case phy.StatusCheck:
		return
	}

	c.seq = res.NewSeq
	c.dispatch(res, now)
}
