// Package inmem provides minimal in-memory reference implementations of
// transport.Cursor and transport.ConsumerTransport, for tests and examples
// — adapted from the teacher's promisedReq/promisedResp future plumbing in
// broker.go, here collapsed to a channel that is already resolved by the
// time SendMessages returns, since there is no real network round-trip to
// simulate.
package inmem

import (
	"context"
	"sync"

	"github.com/cognitree/pulsar/pkg/dispatch/transport"
	"github.com/cognitree/pulsar/pkg/position"
)

// Cursor is a fixed in-memory log with a movable read position and
// mark-delete pointer, enough to exercise the dispatcher's cursor
// contract without a real ledger store.
type Cursor struct {
	mu sync.Mutex

	log     []transport.Entry
	readPos int

	hasMarkDeleted bool
	markDeleted    position.Position
	acked          *position.RangeSet // individually acked gaps above markDeleted

	replayRequests [][]position.Position
}

// NewCursor returns a Cursor reading log in order from the start.
func NewCursor(log []transport.Entry) *Cursor {
	return &Cursor{log: log, acked: position.New()}
}

func (c *Cursor) ReadEntries(ctx context.Context, max int) ([]transport.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if max <= 0 {
		max = len(c.log) - c.readPos
	}
	end := c.readPos + max
	if end > len(c.log) {
		end = len(c.log)
	}
	if c.readPos >= end {
		return nil, nil
	}
	out := make([]transport.Entry, end-c.readPos)
	copy(out, c.log[c.readPos:end])
	c.readPos = end
	return out, nil
}

// SeedMarkDeleted sets the cursor's mark-delete position directly, for
// test setup that needs a recovered baseline without replaying a sequence
// of Ack calls.
func (c *Cursor) SeedMarkDeleted(p position.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markDeleted = p
	c.hasMarkDeleted = true
}

func (c *Cursor) MarkDeletedPosition() (position.Position, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.markDeleted, c.hasMarkDeleted
}

func (c *Cursor) Rewind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasMarkDeleted {
		c.readPos = 0
		return
	}
	for i, e := range c.log {
		if position.Compare(e.Position, c.markDeleted) > 0 {
			c.readPos = i
			return
		}
	}
	c.readPos = len(c.log)
}

func (c *Cursor) AsyncReplay(ctx context.Context, positions []position.Position) ([]position.Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replayRequests = append(c.replayRequests, positions)
	return nil, nil
}

func (c *Cursor) IndividuallyDeletedIntervals(visit func(position.Interval) bool) position.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, iv := range c.acked.AsRanges() {
		if !visit(iv) {
			break
		}
	}
	return c.markDeleted
}

// Ack marks p acknowledged and advances markDeleted through any
// contiguous prefix now covered, draining those gaps out of acked — the
// in-memory stand-in for a real cursor's own mark-delete bookkeeping.
func (c *Cursor) Ack(p position.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hasMarkDeleted && position.Compare(p, c.markDeleted) <= 0 {
		return
	}
	prev := p.Before()
	_ = c.acked.AddOpenClosed(prev.LedgerID, prev.EntryID, p.LedgerID, p.EntryID)

	for {
		first, ok := c.acked.FirstRange()
		if !ok {
			break
		}
		boundary := c.markDeleted
		if !c.hasMarkDeleted {
			boundary = position.Position{LedgerID: first.Lo.LedgerID, EntryID: position.NoEntry}
		}
		if position.Compare(first.Lo, boundary) > 0 {
			break
		}
		c.markDeleted = first.Hi
		c.hasMarkDeleted = true
		c.acked.RemoveAtMost(first.Hi)
	}
}

// ReplayRequests returns every AsyncReplay call's argument, for test
// assertions.
func (c *Cursor) ReplayRequests() [][]position.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]position.Position, len(c.replayRequests))
	copy(out, c.replayRequests)
	return out
}
