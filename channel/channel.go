// Package channel defines the byte-transport abstraction OSDP runs
// over (RS-485 UART in production, an in-process pipe in tests) and
// the small registry concrete transports register themselves into.
package channel

import "sync"

// Channel is the non-blocking byte transport a CP or PD peer is
// driven over. Send and Recv never block: Recv returns 0 when
// nothing is available, and Send may write fewer bytes than given.
// The cp and pd packages hand each packet to a single Send call and
// do not resend a remainder that was not written.
type Channel interface {
	Send(buf []byte) (int, error)
	Recv(buf []byte) (int, error)
	Flush()
}

// Factory constructs a Channel from a connection string, e.g. a
// serial device path or a virtual bus name.
type Factory func(target string) (Channel, error)

var (
	mu        sync.Mutex
	factories = map[string]Factory{}
)

// Register installs a named transport factory. Concrete
// implementations call this from an init() func, mirroring how the
// rest of the ecosystem registers pluggable transports.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// Open looks up a registered transport by name and constructs it.
func Open(name, target string) (Channel, error) {
	mu.Lock()
	f, ok := factories[name]
	mu.Unlock()
	if !ok {
		return nil, ErrUnknownTransport
	}
	return f(target)
}
