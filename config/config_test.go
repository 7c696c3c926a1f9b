package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleProfile = `
[pd "front_door"]
address = 0
channel = bus0
baud = 115200
flags = enforce_secure, capture_packets
master_key = 000102030405060708090a0b0c0d0e0f

[pd "back_door"]
address = 1
channel = bus0
`

func TestLoadProfileParsesMultipleSections(t *testing.T) {
	profiles, err := LoadProfile([]byte(sampleProfile))
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	byName := map[string]PDProfile{}
	for _, p := range profiles {
		byName[p.Name] = p
	}

	front, ok := byName["front_door"]
	require.True(t, ok)
	require.EqualValues(t, 0, front.Address)
	require.Equal(t, "bus0", front.ChannelID)
	require.Equal(t, 115200, front.Baud)
	require.Equal(t, FlagEnforceSecure|FlagCapturePackets, front.Flags)
	require.Equal(t, [16]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 0xa, 0xb, 0xc, 0xd, 0xe, 0xf}, front.MasterKey)

	back, ok := byName["back_door"]
	require.True(t, ok)
	require.EqualValues(t, 1, back.Address)
	require.Equal(t, 9600, back.Baud, "default baud applies when unset")
	require.Zero(t, back.Flags)
}

func TestLoadProfileRejectsMissingChannel(t *testing.T) {
	_, err := LoadProfile([]byte(`
[pd "broken"]
address = 0
`))
	require.Error(t, err)
}

func TestLoadProfileRejectsUnknownFlag(t *testing.T) {
	_, err := LoadProfile([]byte(`
[pd "broken"]
address = 0
channel = bus0
flags = not_a_real_flag
`))
	require.Error(t, err)
}
