package phy

import (
	"github.com/go-osdp/osdp/internal/crc"
	"github.com/go-osdp/osdp/internal/ring"
)

// Framer accumulates bytes arriving from a channel and extracts
// whole, structurally valid packets one at a time. It owns no
// semantic knowledge of addresses, sequence numbers, or security
// blocks: that validation happens in Decode, once a Framer has
// handed back a candidate packet.
type Framer struct {
	buf       *ring.Buffer
	skipCount int
}

// NewFramer allocates a Framer with the given ring buffer capacity,
// raised to MaxPacketSize+1 when bufSize is smaller.
func NewFramer(bufSize int) *Framer {
	if bufSize < MaxPacketSize+1 {
		bufSize = MaxPacketSize + 1
	}
	return &Framer{buf: ring.New(bufSize)}
}

// Feed appends freshly read channel bytes, returning how many were
// accepted (fewer than len(data) if the ring buffer is saturated).
func (f *Framer) Feed(data []byte) int {
	return f.buf.Write(data)
}

// ScanSkipCount reports how many stray bytes have been discarded
// while hunting for the next SOM, for diagnostics.
func (f *Framer) ScanSkipCount() int {
	return f.skipCount
}

// FrameResult is the outcome of one NextFrame call.
type FrameResult struct {
	Status Status
	Raw    []byte // valid only when Status == StatusNone
}

// NextFrame attempts to extract one complete, trailer-valid packet
// from the accumulated bytes. It discards leading noise (anything
// before a SOM byte) and malformed or trailer-invalid candidates as
// it goes, per the spec's scan-path steps 1-4.
func (f *Framer) NextFrame() FrameResult {
	for {
		// Step 1: hunt for SOM, discarding everything before it
		// (MARK bytes and noise alike).
		for {
			b, ok := f.buf.PeekByte(0)
			if !ok {
				return FrameResult{Status: StatusWait}
			}
			if b == SOM {
				break
			}
			f.buf.Discard(1)
			f.skipCount++
		}

		// Step 2: header collection. Need SOM+addr+len(2)+control = 5 bytes.
		if f.buf.Len() < 5 {
			return FrameResult{Status: StatusWait}
		}
		lenLo, _ := f.buf.PeekByte(2)
		lenHi, _ := f.buf.PeekByte(3)
		length := int(lenLo) | int(lenHi)<<8

		if length < MinPacketSize || length > MaxPacketSize {
			// Malformed header: drop just the SOM and rescan: the
			// next byte may itself be a valid SOM.
			f.buf.Discard(1)
			f.skipCount++
			continue
		}

		// Step 3: wait for the full packet body.
		if f.buf.Len() < length {
			return FrameResult{Status: StatusWait}
		}

		raw := make([]byte, length)
		f.buf.Read(raw)

		// Step 4: trailer validation.
		control := raw[4]
		var trailerOK bool
		if control&ControlCRC != 0 {
			if length < 2 {
				trailerOK = false
			} else {
				want := uint16(raw[length-2]) | uint16(raw[length-1])<<8
				trailerOK = crc.Compute(raw[:length-2]) == want
			}
		} else {
			trailerOK = crc.CheckChecksum(raw[:length])
		}

		if !trailerOK {
			f.skipCount++
			return FrameResult{Status: StatusCheck}
		}

		return FrameResult{Status: StatusNone, Raw: raw}
	}
}
