// Package virtual implements an in-process duplex byte pipe used to
// run a CP and a PD against each other without real serial hardware,
// the way the teacher's virtual CAN bus lets two nodes exchange
// frames over a loopback instead of a physical wire.
package virtual

import "sync"

// Pair is a pair of connected Channel endpoints: bytes sent on one
// arrive on the other. An Endpoint's Corrupt, when non-nil, is
// applied to every byte slice that endpoint sends just before it
// becomes visible to the peer, letting tests inject bit errors.
type Pair struct {
	aToB *pipe
	bToA *pipe
}

// Corruptor mutates a packet in place before delivery, for fault
// injection in tests.
type Corruptor func(buf []byte)

// NewPair builds two connected endpoints.
func NewPair() (a, b *Endpoint) {
	p := &Pair{aToB: newPipe(), bToA: newPipe()}
	return &Endpoint{out: p.aToB, in: p.bToA}, &Endpoint{out: p.bToA, in: p.aToB}
}

// Endpoint is one side of a Pair, implementing channel.Channel.
type Endpoint struct {
	out, in *pipe
	Corrupt Corruptor
}

func (e *Endpoint) Send(buf []byte) (int, error) {
	cp := append([]byte{}, buf...)
	if e.Corrupt != nil {
		e.Corrupt(cp)
	}
	e.out.write(cp)
	return len(buf), nil
}

func (e *Endpoint) Recv(buf []byte) (int, error) {
	return e.in.read(buf), nil
}

func (e *Endpoint) Flush() {
	e.in.drain()
}

type pipe struct {
	mu  sync.Mutex
	buf []byte
}

func newPipe() *pipe { return &pipe{} }

func (p *pipe) write(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = append(p.buf, data...)
}

func (p *pipe) read(dst []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := copy(dst, p.buf)
	p.buf = p.buf[n:]
	return n
}

func (p *pipe) drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = p.buf[:0]
}
