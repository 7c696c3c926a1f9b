package pd

import (
	"github.com/go-osdp/osdp/crypto"
	"github.com/go-osdp/osdp/phy"
	"github.com/go-osdp/osdp/securechannel"
)

// peerSecurer adapts a Context's secure-channel state to phy.Securer,
// mirroring cp.peerSecurer from the other side of the link.
type peerSecurer struct {
	provider crypto.Provider
	keys     *securechannel.SessionKeys
	mac      *securechannel.MACState
}

var _ phy.Securer = (*peerSecurer)(nil)

func (s *peerSecurer) ComputeMAC(isCommand bool, clear []byte) ([4]byte, securechannel.MACState, error) {
	full, err := securechannel.ComputeMAC(s.provider, *s.keys, s.mac, isCommand, clear)
	var out [4]byte
	copy(out[:], full[:4])
	return out, *s.mac, err
}

func (s *peerSecurer) VerifyMAC(isCommand bool, clear []byte, wireMAC [4]byte) (securechannel.MACState, bool, error) {
	full, ok, err := securechannel.VerifyMAC(s.provider, *s.keys, *s.mac, isCommand, clear, wireMAC)
	if err == nil && ok {
		if isCommand {
			s.mac.CMAC = full
		} else {
			s.mac.RMAC = full
		}
	}
	return *s.mac, ok, err
}

func (s *peerSecurer) Encrypt(isCommand bool, plaintext []byte) ([]byte, error) {
	return securechannel.EncryptData(s.provider, *s.keys, *s.mac, isCommand, plaintext)
}

func (s *peerSecurer) Decrypt(isCommand bool, ciphertext []byte, allowEmpty bool) ([]byte, error) {
	return securechannel.DecryptData(s.provider, *s.keys, *s.mac, isCommand, ciphertext, allowEmpty)
}

func (c *Context) securer() *peerSecurer {
	return &peerSecurer{provider: c.provider, keys: &c.sc.Keys, mac: &c.sc.MAC}
}
