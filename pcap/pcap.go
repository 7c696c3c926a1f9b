// Package pcap writes raw OSDP frames to a classic pcap capture file:
// one global header, then one record header + payload per captured
// frame. The frame itself already carries its direction in the PD
// address byte's reply bit, so no extra per-record metadata is added.
package pcap

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"time"
)

const (
	magicNumber   = 0xa1b2c3d4
	versionMajor  = 2
	versionMinor  = 4
	defaultSnap   = 65535
	linkTypeUser0 = 147 // DLT_USER0: no registered OSDP linktype exists
)

var ErrFrameTooLarge = errors.New("pcap: frame exceeds snaplen")

// Writer appends captured frames to an underlying stream in pcap
// format. It is safe for concurrent use; callers on different
// goroutines (e.g. a CP and a PD sharing one capture file) may call
// Capture without external synchronization.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	snaplen uint32
	now     func() time.Time
}

// NewWriter wraps w, writing the pcap global header immediately.
func NewWriter(w io.Writer) (*Writer, error) {
	return newWriter(w, time.Now)
}

func newWriter(w io.Writer, now func() time.Time) (*Writer, error) {
	pw := &Writer{w: w, snaplen: defaultSnap, now: now}
	hdr := make([]byte, 24)
	binary.LittleEndian.PutUint32(hdr[0:4], magicNumber)
	binary.LittleEndian.PutUint16(hdr[4:6], versionMajor)
	binary.LittleEndian.PutUint16(hdr[6:8], versionMinor)
	// thiszone, sigfigs left zero
	binary.LittleEndian.PutUint32(hdr[16:20], pw.snaplen)
	binary.LittleEndian.PutUint32(hdr[20:24], linkTypeUser0)
	if _, err := w.Write(hdr); err != nil {
		return nil, err
	}
	return pw, nil
}

// Capture appends one frame, stamped with the current time. It
// matches the signature cp.Controller.SetCapture and pd.Context.
// SetCapture expect, so a *Writer can be wired in directly.
func (pw *Writer) Capture(raw []byte) {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	inclLen := uint32(len(raw))
	if inclLen > pw.snaplen {
		inclLen = pw.snaplen
	}

	now := pw.now()
	rec := make([]byte, 16)
	binary.LittleEndian.PutUint32(rec[0:4], uint32(now.Unix()))
	binary.LittleEndian.PutUint32(rec[4:8], uint32(now.Nanosecond()/1000))
	binary.LittleEndian.PutUint32(rec[8:12], inclLen)
	binary.LittleEndian.PutUint32(rec[12:16], uint32(len(raw)))

	if _, err := pw.w.Write(rec); err != nil {
		return
	}
	_, _ = pw.w.Write(raw[:inclLen])
}

// Close closes the underlying writer if it implements io.Closer.
func (pw *Writer) Close() error {
	if c, ok := pw.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
