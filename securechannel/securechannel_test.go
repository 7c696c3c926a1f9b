package securechannel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-osdp/osdp/crypto"
)

func TestClientUIDMatchesSpecExample(t *testing.T) {
	id := Identity{
		Vendor:  [3]byte{0x37, 0x13, 0x03}, // OUI 0x031337, little-endian
		Model:   153,
		Version: 1,
		Serial:  [4]byte{0x04, 0x03, 0x02, 0x01}, // serial 0x01020304, little-endian
	}
	got := ClientUID(id)
	want := [8]byte{0x37, 0x13, 0x99, 0x01, 0x04, 0x03, 0x02, 0x01}
	require.Equal(t, want, got)
}

func TestHandshakeMutualCryptogramsAgree(t *testing.T) {
	provider := crypto.Default()
	scbk := DefaultSCBK

	cpRandom := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	pdRandom := [8]byte{8, 7, 6, 5, 4, 3, 2, 1}

	cpKeys, err := DeriveSessionKeys(provider, scbk, cpRandom)
	require.NoError(t, err)
	pdKeys, err := DeriveSessionKeys(provider, scbk, cpRandom)
	require.NoError(t, err)
	require.Equal(t, cpKeys, pdKeys, "both sides must derive identical session keys")

	cpCryptogram, err := CPCryptogram(provider, cpKeys.Enc, pdRandom, cpRandom)
	require.NoError(t, err)
	pdCryptogram, err := PDCryptogram(provider, cpKeys.Enc, cpRandom, pdRandom)
	require.NoError(t, err)

	// PD independently recomputes the CP cryptogram to verify CHLNG.
	pdSideCPCryptogram, err := CPCryptogram(provider, pdKeys.Enc, pdRandom, cpRandom)
	require.NoError(t, err)
	require.Equal(t, cpCryptogram, pdSideCPCryptogram, "PD's recomputed CP cryptogram must match CP's")

	// CP independently recomputes the PD cryptogram to verify CCRYPT.
	cpSidePDCryptogram, err := PDCryptogram(provider, cpKeys.Enc, cpRandom, pdRandom)
	require.NoError(t, err)
	require.Equal(t, pdCryptogram, cpSidePDCryptogram, "CP's recomputed PD cryptogram must match PD's")

	rmac, err := SeedRMAC(provider, cpKeys.Mac1, cpKeys.Mac2, cpCryptogram)
	require.NoError(t, err)
	require.NotEqual(t, [16]byte{}, rmac, "seeded r_mac should not be all zero")
}

func TestMACChainAlternatesRolesAndDetectsTampering(t *testing.T) {
	provider := crypto.Default()
	keys, err := DeriveSessionKeys(provider, DefaultSCBK, [8]byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)

	var cpState, pdState MACState

	cmdPayload := []byte{0x60} // a bare POLL command byte
	fullMAC, err := ComputeMAC(provider, keys, &cpState, true, cmdPayload)
	require.NoError(t, err)
	var wire [4]byte
	copy(wire[:], fullMAC[:4])

	// PD verifies against its own (still-zero) mirrored state.
	_, ok, err := VerifyMAC(provider, keys, pdState, true, cmdPayload, wire)
	require.NoError(t, err)
	require.True(t, ok, "PD should accept a genuine command MAC")
	// Persist as PD would after acceptance.
	pdState.CMAC = cpState.CMAC

	// Tampering with a single byte of the signed payload must break
	// verification on the peer.
	tampered := append([]byte{}, cmdPayload...)
	tampered[0] ^= 0x01
	_, ok, err = VerifyMAC(provider, keys, pdState, true, tampered, wire)
	require.NoError(t, err)
	require.False(t, ok, "tampered payload must not validate")

	// PD now replies; its reply MAC chains from the command MAC just
	// accepted, not from its own previous reply MAC.
	replyMAC, err := ComputeMAC(provider, keys, &pdState, false, []byte{0x40})
	require.NoError(t, err)
	require.NotEqual(t, fullMAC, replyMAC, "reply MAC must differ from the command MAC it chains from")
}

func TestEncryptDecryptDataRoundTrip(t *testing.T) {
	provider := crypto.Default()
	keys, err := DeriveSessionKeys(provider, DefaultSCBK, [8]byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	var state MACState
	plaintext := []byte("card-read-event!")

	cipher, err := EncryptData(provider, keys, state, false, plaintext)
	require.NoError(t, err)
	decoded, err := DecryptData(provider, keys, state, false, cipher, false)
	require.NoError(t, err)
	require.Equal(t, plaintext, decoded)
}

func TestDecryptEmptyBlockRequiresOptIn(t *testing.T) {
	provider := crypto.Default()
	keys, err := DeriveSessionKeys(provider, DefaultSCBK, [8]byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	var state MACState
	_, err = DecryptData(provider, keys, state, false, nil, false)
	require.ErrorIs(t, err, ErrEmptyBlock)

	out, err := DecryptData(provider, keys, state, false, nil, true)
	require.NoError(t, err)
	require.Nil(t, out)
}
