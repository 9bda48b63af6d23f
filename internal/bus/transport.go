package bus

import (
	"sync"

	"github.com/Nihal-Srivastava05/Operative-sub000/internal/protocol"
)

// Transport fans published messages out to every attached bus. Any
// mechanism capable of same-profile broadcast delivery satisfies the
// contract; cross-machine delivery is not required.
type Transport interface {
	// Attach registers a bus endpoint with the transport.
	Attach(b *Bus)
	// Detach removes a bus endpoint.
	Detach(b *Bus)
	// Publish delivers the message to every attached endpoint. Delivery
	// order across one publisher's successive calls is preserved.
	Publish(channel string, msg protocol.Message) error
}

// LocalTransport is an in-process hub connecting multiple buses. Fan-out
// is synchronous in attach order, which preserves per-publisher
// ordering as observed by any single subscriber.
type LocalTransport struct {
	mu    sync.RWMutex
	buses []*Bus
}

// NewLocalTransport creates an empty in-process transport hub.
func NewLocalTransport() *LocalTransport {
	return &LocalTransport{}
}

// Attach registers a bus with the hub.
func (t *LocalTransport) Attach(b *Bus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.buses {
		if existing == b {
			return
		}
	}
	t.buses = append(t.buses, b)
}

// Detach removes a bus from the hub.
func (t *LocalTransport) Detach(b *Bus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, existing := range t.buses {
		if existing == b {
			t.buses = append(t.buses[:i], t.buses[i+1:]...)
			return
		}
	}
}

// Publish delivers the message to every attached bus. Each bus applies
// its own expiry, self-suppression, target, and filter checks.
func (t *LocalTransport) Publish(channel string, msg protocol.Message) error {
	t.mu.RLock()
	buses := make([]*Bus, len(t.buses))
	copy(buses, t.buses)
	t.mu.RUnlock()

	for _, b := range buses {
		b.deliver(channel, msg)
	}
	return nil
}

// Compile-time verification that LocalTransport implements Transport.
var _ Transport = (*LocalTransport)(nil)
