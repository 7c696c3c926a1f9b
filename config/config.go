// Package config loads PD descriptor profiles from an ini-formatted
// file: one [pd "name"] section per device, address/baud/flags/key
// spelled out the way an installer would hand-edit them.
package config

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// Flag mirrors the bit layout shared by cp.Flag and pd.Flag so a
// loaded profile can be cast directly into either.
type Flag uint32

const (
	FlagEnforceSecure Flag = 1 << iota
	FlagInstallMode
	FlagIgnoreUnsolicited
	FlagEnableNotification
	FlagCapturePackets
	FlagAllowEmptyEncryptedData
)

var flagNames = map[string]Flag{
	"enforce_secure":        FlagEnforceSecure,
	"install_mode":          FlagInstallMode,
	"ignore_unsolicited":    FlagIgnoreUnsolicited,
	"enable_notification":   FlagEnableNotification,
	"capture_packets":       FlagCapturePackets,
	"allow_empty_encrypted": FlagAllowEmptyEncryptedData,
}

// PDProfile is one [pd "name"] section: everything needed to stand up
// either a cp.Info peer entry or a pd.Info context from a config file.
type PDProfile struct {
	Name      string
	Address   byte
	ChannelID string
	Baud      int
	Flags     Flag
	MasterKey [16]byte
}

var sectionNameExp = regexp.MustCompile(`^pd\s+"(.+)"$`)

// LoadProfile reads every [pd "name"] section out of an ini file (path,
// io.Reader, or []byte -- anything ini.Load accepts).
func LoadProfile(source any) ([]PDProfile, error) {
	f, err := ini.Load(source)
	if err != nil {
		return nil, fmt.Errorf("config: loading profile: %w", err)
	}

	var profiles []PDProfile
	for _, section := range f.Sections() {
		m := sectionNameExp.FindStringSubmatch(section.Name())
		if m == nil {
			continue
		}
		p, err := parsePDSection(m[1], section)
		if err != nil {
			return nil, fmt.Errorf("config: section %q: %w", section.Name(), err)
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func parsePDSection(name string, section *ini.Section) (PDProfile, error) {
	p := PDProfile{Name: name, Baud: 9600}

	addr, err := strconv.ParseUint(section.Key("address").Value(), 0, 8)
	if err != nil {
		return p, fmt.Errorf("parsing address: %w", err)
	}
	p.Address = byte(addr)

	p.ChannelID = section.Key("channel").String()
	if p.ChannelID == "" {
		return p, fmt.Errorf("missing channel")
	}

	if baud, err := section.GetKey("baud"); err == nil {
		v, err := baud.Int()
		if err != nil {
			return p, fmt.Errorf("parsing baud: %w", err)
		}
		p.Baud = v
	}

	if flagsKey, err := section.GetKey("flags"); err == nil {
		p.Flags, err = parseFlags(flagsKey.String())
		if err != nil {
			return p, err
		}
	}

	if keyKey, err := section.GetKey("master_key"); err == nil {
		raw, err := hex.DecodeString(strings.TrimSpace(keyKey.String()))
		if err != nil {
			return p, fmt.Errorf("parsing master_key: %w", err)
		}
		if len(raw) != 16 {
			return p, fmt.Errorf("master_key must be 16 bytes, got %d", len(raw))
		}
		copy(p.MasterKey[:], raw)
	}

	return p, nil
}

// parseFlags accepts a comma-separated list of flag names (matching
// flagNames) so a profile reads like "enforce_secure,capture_packets".
func parseFlags(s string) (Flag, error) {
	var out Flag
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		bit, ok := flagNames[tok]
		if !ok {
			return 0, fmt.Errorf("unknown flag %q", tok)
		}
		out |= bit
	}
	return out, nil
}
