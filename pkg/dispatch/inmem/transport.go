package inmem

import (
	"context"
	"sync"

	"github.com/cognitree/pulsar/pkg/dispatch/transport"
)

// ConsumerTransport is an in-memory stand-in for a live consumer
// connection: it records every batch it receives and tracks flow-control
// state the way a real transport would report it back to the registry.
type ConsumerTransport struct {
	mu sync.Mutex

	availablePermits int32
	unacked          int32
	maxUnacked       int32
	blocked          bool
	sendErr          error

	received []transport.Batch
}

// NewConsumerTransport returns a ConsumerTransport with the given initial
// permits and unacked ceiling.
func NewConsumerTransport(availablePermits, maxUnacked int32) *ConsumerTransport {
	return &ConsumerTransport{availablePermits: availablePermits, maxUnacked: maxUnacked}
}

func (t *ConsumerTransport) SendMessages(ctx context.Context, batch transport.Batch) <-chan error {
	t.mu.Lock()
	n := int32(len(batch.Entries))
	if t.sendErr == nil {
		t.received = append(t.received, batch)
		t.availablePermits -= n
		if t.availablePermits < 0 {
			t.availablePermits = 0
		}
		t.unacked += n
	}
	err := t.sendErr
	t.mu.Unlock()

	errc := make(chan error, 1)
	errc <- err
	return errc
}

func (t *ConsumerTransport) AvailablePermits() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.availablePermits
}

func (t *ConsumerTransport) UnackedMessages() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unacked
}

func (t *ConsumerTransport) MaxUnackedMessages() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxUnacked
}

func (t *ConsumerTransport) Blocked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blocked
}

// Ack simulates the consumer acknowledging n messages: it returns permits
// and lowers the unacked count.
func (t *ConsumerTransport) Ack(n int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unacked -= n
	if t.unacked < 0 {
		t.unacked = 0
	}
	t.availablePermits += n
}

// SetSendError makes future SendMessages calls fail with err.
func (t *ConsumerTransport) SetSendError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErr = err
}

// ReceivedBatches returns every batch SendMessages has recorded so far.
func (t *ConsumerTransport) ReceivedBatches() []transport.Batch {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]transport.Batch, len(t.received))
	copy(out, t.received)
	return out
}
