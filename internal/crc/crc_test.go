package crc

import "testing"

func TestComputeMatchesIncrementalSingle(t *testing.T) {
	buf := []byte{0x53, 0x65, 0x08, 0x00, 0x05, 0x60}
	want := Compute(buf)

	c := Init
	for _, b := range buf {
		c.Single(b)
	}
	if uint16(c) != want {
		t.Fatalf("incremental CRC %#04x does not match Compute %#04x", c, want)
	}
}

func TestComputeEmpty(t *testing.T) {
	if Compute(nil) != uint16(Init) {
		t.Fatalf("CRC of empty buffer should be the seed value")
	}
}

func TestChecksumRoundTrip(t *testing.T) {
	buf := []byte{0x53, 0x65, 0x08, 0x00, 0x05, 0x60}
	trailer := Checksum(buf)
	full := append(append([]byte{}, buf...), trailer)
	if !CheckChecksum(full) {
		t.Fatalf("checksum-appended buffer should sum to zero mod 256")
	}
}

func TestChecksumDetectsCorruption(t *testing.T) {
	buf := []byte{0x53, 0x65, 0x08, 0x00, 0x05, 0x60}
	trailer := Checksum(buf)
	full := append(append([]byte{}, buf...), trailer)
	full[2] ^= 0x01
	if CheckChecksum(full) {
		t.Fatalf("corrupted buffer should not validate")
	}
}
