// Package securechannel implements the OSDP secure channel: session
// key derivation, mutual-authentication cryptograms, the per-packet
// MAC chain, and encrypted data blocks. It holds no notion of a
// packet or a state machine -- phy and cp/pd drive it.
package securechannel

import (
	"errors"

	"github.com/go-osdp/osdp/crypto"
)

// ErrKeyLength is returned whenever a key or block argument isn't
// exactly 16 bytes, the only size AES-128 accepts here.
var ErrKeyLength = errors.New("securechannel: key or block must be 16 bytes")

// DefaultSCBK is the diagnostic, install-mode-only key the spec calls
// the default key: ASCII "0123456789:;<=>?" -- bytes 0x30..0x3F.
var DefaultSCBK = [16]byte{
	0x30, 0x31, 0x32, 0x33, 0x34, 0x35, 0x36, 0x37,
	0x38, 0x39, 0x3A, 0x3B, 0x3C, 0x3D, 0x3E, 0x3F,
}

// Identity carries the fields of a PD's identity record that feed the
// client UID derivation.
type Identity struct {
	Vendor  [3]byte
	Model   byte
	Version byte
	Serial  [4]byte
}

// ClientUID builds the 8-byte PD_CLIENT_UID: the first two vendor
// bytes, the model byte, the version byte, and the first four serial
// bytes, exactly as the spec enumerates it.
func ClientUID(id Identity) [8]byte {
	var uid [8]byte
	uid[0] = id.Vendor[0]
	uid[1] = id.Vendor[1]
	uid[2] = id.Model
	uid[3] = id.Version
	copy(uid[4:8], id.Serial[:])
	return uid
}

// DeriveSCBK computes the session key base from an 8-byte client UID
// and a 16-byte master key: cuid followed by its bitwise complement,
// ECB-encrypted under the master key.
func DeriveSCBK(provider crypto.Provider, masterKey [16]byte, cuid [8]byte) ([16]byte, error) {
	var block [16]byte
	copy(block[0:8], cuid[:])
	for i := 0; i < 8; i++ {
		block[8+i] = ^block[i]
	}
	out, err := provider.ECBEncrypt(masterKey[:], block[:])
	if err != nil {
		return [16]byte{}, err
	}
	var result [16]byte
	copy(result[:], out)
	return result, nil
}

// SessionKeys are the three keys derived from SCBK and cp_random at
// the start of every SC handshake.
type SessionKeys struct {
	Enc  [16]byte
	Mac1 [16]byte
	Mac2 [16]byte
}

func sessionSeed(tag1, tag2 byte, cpRandom [8]byte) [16]byte {
	var block [16]byte
	block[0] = tag1
	block[1] = tag2
	copy(block[2:8], cpRandom[0:6])
	return block
}

// DeriveSessionKeys computes s_enc, s_mac1 and s_mac2 from scbk and the
// CP-supplied challenge nonce.
func DeriveSessionKeys(provider crypto.Provider, scbk [16]byte, cpRandom [8]byte) (SessionKeys, error) {
	var keys SessionKeys
	seeds := [][16]byte{
		sessionSeed(0x01, 0x82, cpRandom),
		sessionSeed(0x01, 0x01, cpRandom),
		sessionSeed(0x01, 0x02, cpRandom),
	}
	outs := make([][16]byte, 3)
	for i, seed := range seeds {
		enc, err := provider.ECBEncrypt(scbk[:], seed[:])
		if err != nil {
			return SessionKeys{}, err
		}
		copy(outs[i][:], enc)
	}
	keys.Enc = outs[0]
	keys.Mac1 = outs[1]
	keys.Mac2 = outs[2]
	return keys, nil
}

// Cryptogram computes AES_ECB_Enc(encKey, first || second) -- the
// shared shape behind both the CP and PD mutual-authentication
// cryptograms, which only differ in the order pd_random/cp_random are
// concatenated.
func Cryptogram(provider crypto.Provider, encKey [16]byte, first, second [8]byte) ([16]byte, error) {
	var block [16]byte
	copy(block[0:8], first[:])
	copy(block[8:16], second[:])
	out, err := provider.ECBEncrypt(encKey[:], block[:])
	if err != nil {
		return [16]byte{}, err
	}
	var result [16]byte
	copy(result[:], out)
	return result, nil
}

// CPCryptogram = AES_ECB_Enc(s_enc, pd_random || cp_random).
func CPCryptogram(provider crypto.Provider, sEnc [16]byte, pdRandom, cpRandom [8]byte) ([16]byte, error) {
	return Cryptogram(provider, sEnc, pdRandom, cpRandom)
}

// PDCryptogram = AES_ECB_Enc(s_enc, cp_random || pd_random).
func PDCryptogram(provider crypto.Provider, sEnc [16]byte, cpRandom, pdRandom [8]byte) ([16]byte, error) {
	return Cryptogram(provider, sEnc, cpRandom, pdRandom)
}

// SeedRMAC computes the PD's initial r_mac from the verified CP
// cryptogram: AES_ECB_Enc(s_mac2, AES_ECB_Enc(s_mac1, cp_cryptogram)).
func SeedRMAC(provider crypto.Provider, sMac1, sMac2, cpCryptogram [16]byte) ([16]byte, error) {
	inner, err := provider.ECBEncrypt(sMac1[:], cpCryptogram[:])
	if err != nil {
		return [16]byte{}, err
	}
	outer, err := provider.ECBEncrypt(sMac2[:], inner)
	if err != nil {
		return [16]byte{}, err
	}
	var result [16]byte
	copy(result[:], outer)
	return result, nil
}
