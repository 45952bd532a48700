// Package transport defines the collaborator interfaces the dispatcher
// consumes: the cursor it reads from and the consumer transports it sends
// to. They live in their own package, separate from pkg/dispatch, so that
// pkg/registry can depend on ConsumerTransport without an import cycle back
// to the dispatcher that depends on the registry.
package transport

import (
	"context"

	"github.com/cognitree/pulsar/pkg/position"
)

// Entry is one log entry read from a cursor.
type Entry struct {
	Position position.Position
	KeyHash  uint32
	Key      []byte
	Payload  []byte
}

// Batch is the set of entries sent to one consumer in a single call.
type Batch struct {
	Entries []Entry
}

// Cursor advances through the log on behalf of one subscription.
type Cursor interface {
	// ReadEntries reads up to max entries starting after the cursor's
	// current read position.
	ReadEntries(ctx context.Context, max int) ([]Entry, error)
	// MarkDeletedPosition returns the highest position below which every
	// entry has been acknowledged, or false if no entry has been
	// acknowledged yet.
	MarkDeletedPosition() (position.Position, bool)
	// Rewind resets the read position back to just after mark-delete.
	Rewind()
	// AsyncReplay requests redelivery of positions and returns the subset
	// that could not be scheduled for replay (e.g. already trimmed).
	AsyncReplay(ctx context.Context, positions []position.Position) ([]position.Position, error)
	// IndividuallyDeletedIntervals visits every acknowledged gap above the
	// mark-delete position, in ascending order, stopping early if visit
	// returns false. It returns the mark-delete position itself.
	IndividuallyDeletedIntervals(visit func(position.Interval) bool) position.Position
}

// ConsumerTransport is the dispatcher's view of one consumer connection.
type ConsumerTransport interface {
	// SendMessages delivers batch to the consumer. The returned channel
	// receives exactly one value (nil on success) once the send
	// completes or the context is done.
	SendMessages(ctx context.Context, batch Batch) <-chan error
	AvailablePermits() int32
	UnackedMessages() int32
	MaxUnackedMessages() int32
	Blocked() bool
}
