// Package registry tracks the live consumers of a subscription: their
// transport handle, flow-control permits, and unacked/blocked state. It is
// a plain mutex-guarded map, the same shape the teacher uses for its own
// peer/session bookkeeping (consumer.go's per-partition cursor maps) —
// a registry of scalar-field structs keyed by name needs no third-party
// container.
package registry

import (
	"sync"

	"github.com/cognitree/pulsar/pkg/dispatch/transport"
)

// Consumer is the registry's view of one subscribed consumer.
type Consumer struct {
	Name             string
	Transport        transport.ConsumerTransport
	AvailablePermits int32
	UnackedMessages  int32
	MaxUnacked       int32
	Blocked          bool
}

// EffectivePermits is the number of additional entries this consumer may
// receive right now: bounded both by its own advertised flow-control
// credit and by how much headroom remains before its unacked ceiling.
func (c *Consumer) EffectivePermits() int32 {
	headroom := c.MaxUnacked - c.UnackedMessages
	permits := c.AvailablePermits
	if headroom < permits {
		permits = headroom
	}
	if permits < 0 {
		return 0
	}
	return permits
}

// Registry is the set of consumers currently registered for a
// subscription.
type Registry struct {
	mu        sync.Mutex
	consumers map[string]*Consumer
	order     []string
}

func New() *Registry {
	return &Registry{consumers: make(map[string]*Consumer)}
}

// Add registers a consumer. Re-adding an already-registered name replaces
// its entry.
func (r *Registry) Add(c *Consumer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.consumers[c.Name]; !exists {
		r.order = append(r.order, c.Name)
	}
	r.consumers[c.Name] = c
}

// Remove drops a consumer from the registry.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.consumers[name]; !exists {
		return
	}
	delete(r.consumers, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns the named consumer, or nil if not registered.
func (r *Registry) Get(name string) *Consumer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.consumers[name]
}

// Len returns the number of registered consumers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.consumers)
}

// Names returns registered consumer names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// UpdatePermits reconciles a consumer's flow-control state after a send
// completes or a permit/ack notification arrives from the transport.
func (r *Registry) UpdatePermits(name string, availablePermits, unackedMessages, maxUnacked int32, blocked bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.consumers[name]
	if !ok {
		return
	}
	c.AvailablePermits = availablePermits
	c.UnackedMessages = unackedMessages
	c.MaxUnacked = maxUnacked
	c.Blocked = blocked
}
