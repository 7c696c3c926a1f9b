package securechannel

import (
	"errors"

	"github.com/go-osdp/osdp/crypto"
)

// ErrBadPadding is returned when a decrypted data block doesn't end in
// the expected 0x80 end marker.
var ErrBadPadding = errors.New("securechannel: invalid padding in encrypted data block")

// ErrEmptyBlock is returned decoding a zero-length encrypted data
// block unless the caller has opted into tolerating it.
var ErrEmptyBlock = errors.New("securechannel: zero-length encrypted data block")

func complement(mac [16]byte) [16]byte {
	var out [16]byte
	for i, b := range mac {
		out[i] = ^b
	}
	return out
}

// padForEncryption always appends a 0x80 end marker, then zero-fills
// to the next 16-byte boundary -- even when the input is already block
// aligned, a full extra block is added. This is the data-encryption
// padding rule and is deliberately different from padForMAC.
func padForEncryption(data []byte) []byte {
	padLen := ((len(data) + 16) / 16) * 16
	out := make([]byte, padLen)
	copy(out, data)
	out[len(data)] = 0x80
	return out
}

// EncryptData encrypts the post-ID payload of a 0x17/0x18 packet.
// isCommand selects which MAC register (from before this packet's own
// ComputeMAC call) seeds the IV: the complement of the own-side MAC
// register, per spec: the side building a packet uses its own
// not-yet-updated MAC as IV.
func EncryptData(provider crypto.Provider, keys SessionKeys, state MACState, isCommand bool, plaintext []byte) ([]byte, error) {
	iv := complement(*state.own(isCommand))
	padded := padForEncryption(plaintext)
	return provider.CBCEncrypt(keys.Enc[:], iv[:], padded)
}

// DecryptData reverses EncryptData and strips the padding, validating
// the 0x80 end marker. allowEmpty tolerates a block that decrypts to
// zero-length plaintext, matching the ALLOW_EMPTY_ENCRYPTED_DATA_BLOCK
// opt-in flag.
func DecryptData(provider crypto.Provider, keys SessionKeys, state MACState, isCommand bool, ciphertext []byte, allowEmpty bool) ([]byte, error) {
	if len(ciphertext) == 0 {
		if allowEmpty {
			return nil, nil
		}
		return nil, ErrEmptyBlock
	}
	if len(ciphertext)%16 != 0 {
		return nil, errors.New("securechannel: encrypted data block is not block aligned")
	}
	iv := complement(*state.own(isCommand))
	plain, err := provider.CBCDecrypt(keys.Enc[:], iv[:], ciphertext)
	if err != nil {
		return nil, err
	}
	end := len(plain)
	for end > 0 && plain[end-1] == 0x00 {
		end--
	}
	if end == 0 {
		if allowEmpty {
			return nil, nil
		}
		return nil, ErrEmptyBlock
	}
	if plain[end-1] != 0x80 {
		return nil, ErrBadPadding
	}
	if end == 1 && !allowEmpty {
		return nil, ErrEmptyBlock
	}
	return plain[:end-1], nil
}
