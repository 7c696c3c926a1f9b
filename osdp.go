// Package osdp is the public entry point for this module: it wires a
// cp.Controller or a pd.Context into a single lifecycle object with
// setup/refresh/teardown methods, mirroring the C library's
// osdp_cp_setup/osdp_pd_setup/osdp_*_refresh/osdp_*_teardown shape.
package osdp

import (
	"github.com/go-osdp/osdp/codec"
	"github.com/go-osdp/osdp/cp"
	"github.com/go-osdp/osdp/filetransfer"
	"github.com/go-osdp/osdp/pd"
)

// PHYError is a negative PHY-layer outcome surfaced to diagnostics
// callers, matching the C library's enum osdp_phy errors as small
// signed ints with a name table rather than typed error values.
type PHYError int8

const (
	PHYErrorNone    PHYError = 0
	PHYErrorNack    PHYError = -1
	PHYErrorSeq     PHYError = -2
	PHYErrorCrc     PHYError = -3
	PHYErrorSC      PHYError = -4
	PHYErrorGeneric PHYError = -5
)

var phyErrorNames = map[PHYError]string{
	PHYErrorNone:    "OK",
	PHYErrorNack:    "PD replied NAK",
	PHYErrorSeq:     "sequence number mismatch",
	PHYErrorCrc:     "checksum/CRC failure",
	PHYErrorSC:      "secure channel failure",
	PHYErrorGeneric: "generic PHY error",
}

func (e PHYError) String() string {
	if name, ok := phyErrorNames[e]; ok {
		return name
	}
	return "unknown PHY error"
}

// CP wraps a cp.Controller as the public CP-side lifecycle object.
type CP struct {
	ctrl *cp.Controller
}

// SetupCP mirrors osdp_cp_setup: build a CP managing the given PDs.
// clock may be nil to use cp.SystemClock.
func SetupCP(infos []cp.Info, clock cp.Clock) *CP {
	return &CP{ctrl: cp.New(infos, clock)}
}

// Refresh drives every managed PD one cooperative tick.
func (c *CP) Refresh() { c.ctrl.Refresh() }

// Teardown releases the CP. The Controller holds no background
// goroutines or file descriptors of its own, so this is a no-op
// placeholder matching the C API's lifecycle symmetry; it exists so
// callers don't need to special-case Go when porting code.
func (c *CP) Teardown() {}

func (c *CP) SetEventCallback(cb cp.EventCallback) { c.ctrl.SetEventCallback(cb) }
func (c *CP) SetCapture(fn func(raw []byte))       { c.ctrl.SetCapture(fn) }
func (c *CP) SubmitCommand(pdIdx int, id codec.Command, payload []byte) error {
	return c.ctrl.SubmitCommand(pdIdx, id, payload)
}
func (c *CP) DisablePD(pdIdx int) error             { return c.ctrl.DisablePD(pdIdx) }
func (c *CP) EnablePD(pdIdx int) error              { return c.ctrl.EnablePD(pdIdx) }
func (c *CP) IsPDEnabled(pdIdx int) (bool, error)   { return c.ctrl.IsPDEnabled(pdIdx) }
func (c *CP) GetPDID(pdIdx int) (codec.PDID, error) { return c.ctrl.GetPDID(pdIdx) }
func (c *CP) GetCapability(pdIdx int, code byte) (codec.Capability, bool, error) {
	return c.ctrl.GetCapability(pdIdx, code)
}
func (c *CP) GetStatusMask() uint32   { return c.ctrl.GetStatusMask() }
func (c *CP) GetSCStatusMask() uint32 { return c.ctrl.GetSCStatusMask() }

// FileRegisterOps starts a transfer of fileID to pdIdx using ops for
// the source file, matching osdp_file_register_ops's role of handing
// the library the application's open/read/write/close hooks.
func (c *CP) FileRegisterOps(pdIdx int, ops filetransfer.Ops, fileID int, flags uint32) error {
	return c.ctrl.StartFileTransfer(pdIdx, ops, fileID, flags)
}

// GetFileTxStatus reports a PD's in-progress file transfer size and
// offset, matching osdp_get_file_tx_status.
func (c *CP) GetFileTxStatus(pdIdx int) (size, offset int, active bool, err error) {
	return c.ctrl.GetFileTransferProgress(pdIdx)
}

// PD wraps a pd.Context as the public PD-side lifecycle object.
type PD struct {
	ctx *pd.Context
}

// SetupPD mirrors osdp_pd_setup: build the single PD context this
// process represents.
func SetupPD(info pd.Info) *PD {
	return &PD{ctx: pd.New(info)}
}

// Refresh processes one pending command, if any, and replies.
func (p *PD) Refresh(nowMs int64) { p.ctx.Refresh(nowMs) }

// Teardown mirrors osdp_pd_teardown's lifecycle symmetry; see CP.Teardown.
func (p *PD) Teardown() {}

func (p *PD) SetCommandCallback(cb pd.CommandCallback) { p.ctx.SetCommandCallback(cb) }
func (p *PD) SetCapture(fn func(raw []byte))           { p.ctx.SetCapture(fn) }
func (p *PD) SubmitEvent(ev pd.Event) error            { return p.ctx.SubmitEvent(ev) }
func (p *PD) SetStatusReports(lstat, istat, ostat, rstat []byte) {
	p.ctx.SetStatusReports(lstat, istat, ostat, rstat)
}
func (p *PD) SCActive() bool { return p.ctx.SCActive() }

// FileRegisterOps enables FILETRANSFER handling on the PD side.
func (p *PD) FileRegisterOps(ops filetransfer.Ops) { p.ctx.RegisterFileOps(ops) }

// ApplyPendingComSet lets the transport owner apply an address/baud
// change scheduled by a COMSET command once the COM reply is on the
// wire.
func (p *PD) ApplyPendingComSet() (codec.ComSet, bool) { return p.ctx.ApplyPendingComSet() }
