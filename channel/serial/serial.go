// Package serial implements channel.Channel over a real RS-485 UART
// using github.com/daedaluz/goserial, registering itself under the
// "serial" transport name.
package serial

import (
	"time"

	goserial "github.com/daedaluz/goserial"

	"github.com/go-osdp/osdp/channel"
)

func init() {
	channel.Register("serial", Open)
}

// pollTimeout bounds how long a single Recv call may block waiting
// for the first byte; OSDP's cooperative scheduling needs Recv to
// return quickly with whatever is available, not to wait for a full
// buffer.
const pollTimeout = 5 * time.Millisecond

// Port adapts a goserial.Port to channel.Channel.
type Port struct {
	p *goserial.Port
}

// Open opens the named TTY device (e.g. "/dev/ttyUSB0") for OSDP use.
func Open(name string) (channel.Channel, error) {
	opts := goserial.NewOptions().SetReadTimeout(pollTimeout)
	p, err := goserial.Open(name, opts)
	if err != nil {
		return nil, err
	}
	return &Port{p: p}, nil
}

func (s *Port) Send(buf []byte) (int, error) {
	return s.p.Write(buf)
}

func (s *Port) Recv(buf []byte) (int, error) {
	n, err := s.p.ReadTimeout(buf, pollTimeout)
	if err != nil {
		// A read timeout with nothing available is the normal
		// non-blocking "nothing to read" case, not a channel error.
		if n == 0 {
			return 0, nil
		}
	}
	return n, err
}

func (s *Port) Flush() {
	// drain whatever is pending without blocking
	var scratch [256]byte
	for {
		n, err := s.p.ReadTimeout(scratch[:], time.Millisecond)
		if err != nil || n == 0 {
			return
		}
	}
}
