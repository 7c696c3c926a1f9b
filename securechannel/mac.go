package securechannel

import "github.com/go-osdp/osdp/crypto"

// MACState holds the two chained MAC registers every context tracks:
// c_mac is the MAC of the last CP->PD (command) packet, r_mac of the
// last PD->CP (reply) packet. Both sides maintain identical copies of
// each once SC is active -- that symmetry is what lets the receiver
// recompute and compare.
type MACState struct {
	CMAC [16]byte
	RMAC [16]byte
}

// own returns a pointer to the register that the given packet
// direction produces: CMAC for a command, RMAC for a reply.
func (m *MACState) own(isCommand bool) *[16]byte {
	if isCommand {
		return &m.CMAC
	}
	return &m.RMAC
}

// padForMAC mirrors the reference padding rule used only for MAC
// computation: if the plaintext is already block aligned no marker is
// added (the chain folds the data in as whole blocks); otherwise a
// single 0x80 end marker is appended and the rest zero-filled up to
// the next 16-byte boundary. This differs deliberately from
// padForEncryption, which always adds a marker byte.
func padForMAC(data []byte) []byte {
	if len(data)%16 == 0 {
		return data
	}
	padLen := ((len(data) + 16) / 16) * 16
	out := make([]byte, padLen)
	copy(out, data)
	out[len(data)] = 0x80
	return out
}

// ComputeMAC folds data (typically the cleartext header plus any
// ciphertext already in the packet) into the MAC chain, updates the
// appropriate own-side register in state and returns the full 16-byte
// MAC value (callers truncate to the low 4 bytes for the wire).
//
// Blocks B[1..N-1] are chained under Mac1 in CBC starting from the
// peer's previous MAC as IV; the final block B[N] is then encrypted
// alone under Mac2, using the last CBC ciphertext block as its IV. The
// result becomes the new own-side MAC.
func ComputeMAC(provider crypto.Provider, keys SessionKeys, state *MACState, isCommand bool, data []byte) ([16]byte, error) {
	buf := padForMAC(data)
	iv := *state.own(!isCommand) // seeded from the *other* role's last MAC
	if len(buf) > 16 {
		head := buf[:len(buf)-16]
		enc, err := provider.CBCEncrypt(keys.Mac1[:], iv[:], head)
		if err != nil {
			return [16]byte{}, err
		}
		copy(iv[:], enc[len(enc)-16:])
	}
	last := buf[len(buf)-16:]
	mac, err := provider.CBCEncrypt(keys.Mac2[:], iv[:], last)
	if err != nil {
		return [16]byte{}, err
	}
	var result [16]byte
	copy(result[:], mac)
	*state.own(isCommand) = result
	return result, nil
}

// VerifyMAC recomputes the MAC the same way ComputeMAC does and
// compares its low 4 bytes against the ones carried on the wire,
// without mutating state.CMAC/RMAC until the caller decides the packet
// is genuine (callers should only persist the recomputed MAC into
// state once verification succeeds, by calling ComputeMAC again or by
// copying the returned value).
func VerifyMAC(provider crypto.Provider, keys SessionKeys, state MACState, isCommand bool, data []byte, wireMAC4 [4]byte) (full [16]byte, ok bool, err error) {
	full, err = ComputeMAC(provider, keys, &state, isCommand, data)
	if err != nil {
		return [16]byte{}, false, err
	}
	for i := 0; i < 4; i++ {
		if full[i] != wireMAC4[i] {
			return full, false, nil
		}
	}
	return full, true, nil
}
