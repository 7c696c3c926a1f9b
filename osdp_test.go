package osdp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-osdp/osdp/channel/virtual"
	"github.com/go-osdp/osdp/codec"
	"github.com/go-osdp/osdp/cp"
	"github.com/go-osdp/osdp/pd"
)

// fakeClock lets the test drive SetupCP's Controller deterministically.
type fakeClock struct{ ms int64 }

func (c *fakeClock) NowMs() int64    { return c.ms }
func (c *fakeClock) advance(d int64) { c.ms += d }

// TestCPAndPDReachOnlineOverVirtualChannel wires a real CP and a real
// PD together through the public SetupCP/SetupPD surface, exactly as
// an application using this module would, and checks they converge
// on ONLINE without a secure channel.
func TestCPAndPDReachOnlineOverVirtualChannel(t *testing.T) {
	cpSide, pdSide := virtual.NewPair()
	clock := &fakeClock{}

	theCP := SetupCP([]cp.Info{{Address: 0, Channel: cpSide}}, clock)

	pdCtx := SetupPD(pd.Info{
		Address: 0,
		Channel: pdSide,
		PDID:    codec.PDID{Vendor: [3]byte{0x01, 0x02, 0x03}, Model: 1, Version: 1},
		Capabilities: []codec.Capability{
			{Code: codec.CapCommunicationSecurity, Level: 0, NumItems: 0},
			{Code: codec.CapReceiveBufferSize, Level: 0, NumItems: 1},
		},
	})

	var lastStatusMask uint32
	for i := 0; i < 10; i++ {
		theCP.Refresh()
		pdCtx.Refresh(clock.NowMs())
		clock.advance(200)
		lastStatusMask = theCP.GetStatusMask()
		if lastStatusMask != 0 {
			break
		}
	}

	require.NotZero(t, lastStatusMask, "PD never came online")
	require.False(t, pdCtx.SCActive(), "PD reports no secure-channel capability, SC should stay dormant")

	id, err := theCP.GetPDID(0)
	require.NoError(t, err)
	require.Equal(t, [3]byte{0x01, 0x02, 0x03}, id.Vendor)

	// Teardown is a lifecycle no-op but must not panic.
	theCP.Teardown()
	pdCtx.Teardown()
}

// TestPHYErrorString exercises both the known-name table and the
// unknown-value fallback.
func TestPHYErrorString(t *testing.T) {
	require.Equal(t, "PD replied NAK", PHYErrorNack.String())
	require.Equal(t, "unknown PHY error", PHYError(99).String())
}
