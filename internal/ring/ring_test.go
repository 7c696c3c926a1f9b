package ring

import "testing"

func TestWriteReadRoundTrip(t *testing.T) {
	b := New(8)
	n := b.Write([]byte{1, 2, 3, 4})
	if n != 4 {
		t.Fatalf("expected 4 bytes written, got %d", n)
	}
	if b.Len() != 4 {
		t.Fatalf("expected length 4, got %d", b.Len())
	}
	out := make([]byte, 4)
	got := b.Read(out)
	if got != 4 || out[0] != 1 || out[3] != 4 {
		t.Fatalf("unexpected read result %v (n=%d)", out, got)
	}
	if b.Len() != 0 {
		t.Fatalf("expected empty buffer after read, got len %d", b.Len())
	}
}

func TestWriteDropsWhenFull(t *testing.T) {
	b := New(4) // usable capacity is 3
	n := b.Write([]byte{1, 2, 3, 4, 5})
	if n != 3 {
		t.Fatalf("expected 3 bytes written before buffer fills, got %d", n)
	}
}

func TestPeekAndDiscard(t *testing.T) {
	b := New(8)
	b.Write([]byte{0xAA, 0x53, 0xFF})
	v, ok := b.PeekByte(1)
	if !ok || v != 0x53 {
		t.Fatalf("expected peek at offset 1 to be 0x53, got %x ok=%v", v, ok)
	}
	discarded := b.Discard(1)
	if discarded != 1 {
		t.Fatalf("expected to discard 1 byte, got %d", discarded)
	}
	v, ok = b.PeekByte(0)
	if !ok || v != 0x53 {
		t.Fatalf("expected first byte after discard to be 0x53, got %x", v)
	}
}

func TestWraparound(t *testing.T) {
	b := New(4)
	b.Write([]byte{1, 2, 3})
	out := make([]byte, 2)
	b.Read(out)
	b.Write([]byte{4, 5})
	rest := make([]byte, 3)
	n := b.Read(rest)
	if n != 3 {
		t.Fatalf("expected to read remaining 3 bytes, got %d", n)
	}
	if rest[0] != 3 || rest[1] != 4 || rest[2] != 5 {
		t.Fatalf("unexpected wraparound content: %v", rest)
	}
}
