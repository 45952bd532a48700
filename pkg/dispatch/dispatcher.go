// Package dispatch implements the Sticky-Key Dispatcher: the control core
// of spec.md §4.5. It reads entries from a Cursor, routes them through a
// keyshared.Selector, enforces the recently-joined fence and replay
// precedence, records delivered positions, and advances lastSentPosition.
//
// Concurrency follows spec.md §5: a single-goroutine ordered executor
// keyed by topic. Every mutation of lastSentPosition,
// individuallySentPositions and recentlyJoinedConsumers happens on that
// one goroutine; external callers (AddConsumer, RemoveConsumer, dispatch
// batches) submit closures onto a task channel the goroutine drains in
// order, the same shape as the teacher's per-session goroutine fed by
// sourcesReadyCond in consumer.go, generalized from a condvar wakeup to an
// explicit channel since here the "work items" are arbitrary closures
// rather than a fixed set of source reads.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/cognitree/pulsar/internal/config"
	"github.com/cognitree/pulsar/pkg/dispatch/transport"
	"github.com/cognitree/pulsar/pkg/dispatcherr"
	"github.com/cognitree/pulsar/pkg/keyshared"
	"github.com/cognitree/pulsar/pkg/logging"
	"github.com/cognitree/pulsar/pkg/position"
	"github.com/cognitree/pulsar/pkg/redelivery"
	"github.com/cognitree/pulsar/pkg/registry"
)

// ReadType distinguishes a normal cursor read from a replay read, per
// spec.md §4.5's dispatch inputs.
type ReadType uint8

const (
	ReadNormal ReadType = iota
	ReadReplay
)

// lastSentBox lets lastSentPosition live in an atomic.Value: atomic.Value
// cannot hold a bare nil, the same reason the teacher boxes its consumer
// session (see noConsumerSession in consumer.go) instead of storing *Session
// directly.
type lastSentBox struct {
	pos position.Position
	ok  bool
}

// Dispatcher is one subscription's Sticky-Key Dispatcher.
type Dispatcher struct {
	cursor   transport.Cursor
	selector keyshared.Selector
	cfg      config.Options
	logger   logging.Logger

	registry         *registry.Registry
	tracker          *redelivery.Tracker
	recentlyJoined   *recentlyJoinedTable
	individuallySent *position.RangeSet

	lastSent atomic.Value // lastSentBox

	tasks chan func()
	wake  chan struct{}
	closed atomic.Bool

	stuckOnReplays bool
}

// New constructs a Dispatcher over cursor, routing through selector
// according to cfg, and starts its single ordered-executor goroutine.
func New(cursor transport.Cursor, selector keyshared.Selector, cfg config.Options) *Dispatcher {
	d := &Dispatcher{
		cursor:           cursor,
		selector:         selector,
		cfg:              cfg,
		logger:           cfg.Logger,
		registry:         registry.New(),
		tracker:          redelivery.New(),
		recentlyJoined:   newRecentlyJoinedTable(),
		individuallySent: position.New(),
		tasks:            make(chan func(), 256),
		wake:             make(chan struct{}, 1),
	}
	if d.logger == nil {
		d.logger = logging.Nop{}
	}
	d.lastSent.Store(lastSentBox{})
	go d.loop()
	return d
}

// NewWithConfig builds the StickyKeySelector variant cfg names (spec.md §6:
// KeySharedMode, and for Sticky mode UseConsistentHashing/
// ConsistentHashingReplicaPoints) and constructs a Dispatcher over it, for
// callers that don't need to hand-pick a keyshared.Selector themselves.
func NewWithConfig(cursor transport.Cursor, cfg config.Options) (*Dispatcher, error) {
	selector, err := keyshared.NewFromConfig(cfg)
	if err != nil {
		return nil, dispatcherr.New(dispatcherr.InvalidArgument, "NewWithConfig", err)
	}
	return New(cursor, selector, cfg), nil
}

func (d *Dispatcher) loop() {
	for task := range d.tasks {
		task()
	}
}

// submit runs fn on the dispatcher's ordered-executor goroutine and blocks
// until it completes.
func (d *Dispatcher) submit(fn func()) {
	done := make(chan struct{})
	d.tasks <- func() {
		fn()
		close(done)
	}
	<-done
}

// Close terminates the dispatcher cleanly (spec.md §5 "Cancellation":
// closed is set before any other change takes effect).
func (d *Dispatcher) Close() {
	d.closed.Store(true)
}

func (d *Dispatcher) currentLastSent() position.Position {
	box := d.lastSent.Load().(lastSentBox)
	if box.ok {
		return box.pos
	}
	if md, ok := d.cursor.MarkDeletedPosition(); ok {
		return md
	}
	return position.Position{LedgerID: 0, EntryID: position.NoEntry}
}

// entriesSinceFirstNotAcked approximates spec.md §9's
// entriesSinceFirstNotAckedMessage heuristic input as the count of
// positions already delivered strictly ahead of lastSentPosition —
// individuallySentPositions exists exactly to track that set.
func (d *Dispatcher) entriesSinceFirstNotAcked() int {
	return int(d.individuallySent.Size())
}

// AddConsumer implements spec.md §4.5 "Consumer join". A selector failure
// rolls back (nothing is registered) and surfaces to the caller.
func (d *Dispatcher) AddConsumer(name string, t transport.ConsumerTransport) error {
	if d.closed.Load() {
		return dispatcherr.New(dispatcherr.CursorClosed, "AddConsumer", errors.New("dispatcher is closed"))
	}
	var result error
	d.submit(func() {
		if err := d.selector.AddConsumer(name); err != nil {
			result = dispatcherr.New(dispatcherr.InvalidArgument, "AddConsumer", err)
			return
		}
		d.registerJoinedConsumer(name, t)
	})
	return result
}

// AddConsumerWithRanges is the join path for the Exclusive key-shared
// variant (spec.md §4.2): the caller claims explicit hash ranges instead of
// having them derived from membership. It only works when the configured
// selector accepts range claims (keyshared.Exclusive); any other selector
// rejects it as InvalidArgument, the same way AddConsumer rejects a name
// Exclusive itself would refuse.
func (d *Dispatcher) AddConsumerWithRanges(name string, t transport.ConsumerTransport, ranges []keyshared.HashRange) error {
	if d.closed.Load() {
		return dispatcherr.New(dispatcherr.CursorClosed, "AddConsumerWithRanges", errors.New("dispatcher is closed"))
	}
	claimer, ok := d.selector.(keyshared.RangeClaimer)
	if !ok {
		return dispatcherr.New(dispatcherr.InvalidArgument, "AddConsumerWithRanges",
			fmt.Errorf("selector %T does not accept explicit hash ranges", d.selector))
	}
	var result error
	d.submit(func() {
		if err := claimer.AddConsumerWithRanges(name, ranges); err != nil {
			result = dispatcherr.New(dispatcherr.InvalidArgument, "AddConsumerWithRanges", err)
			return
		}
		d.registerJoinedConsumer(name, t)
	})
	return result
}

// registerJoinedConsumer is the join bookkeeping shared by AddConsumer and
// AddConsumerWithRanges, run once the selector has already accepted the new
// member: register it in the registry, then decide whether it needs a
// recently-joined fence.
func (d *Dispatcher) registerJoinedConsumer(name string, t transport.ConsumerTransport) {
	fence := d.currentLastSent()
	d.registry.Add(&registry.Consumer{
		Name:             name,
		Transport:        t,
		AvailablePermits: t.AvailablePermits(),
		UnackedMessages:  t.UnackedMessages(),
		MaxUnacked:       t.MaxUnackedMessages(),
		Blocked:          t.Blocked(),
	})

	snapshot := config.JoinSnapshot{
		ConsumerCount:                    d.registry.Len(),
		EntriesSinceFirstNotAckedMessage: d.entriesSinceFirstNotAcked(),
	}
	if d.cfg.JoinAdmissionPredicate(snapshot) {
		d.recentlyJoined.put(name, fence)
		d.logger.Log(logging.LevelInfo, "consumer joined behind fence", "consumer", name, "fence", fence.String())
	} else {
		d.logger.Log(logging.LevelInfo, "consumer joined", "consumer", name)
	}
}

// RemoveConsumer implements spec.md §4.5 "Consumer leave": selector first,
// registry second, to avoid ghost routing (spec.md §9 "Cyclic references").
func (d *Dispatcher) RemoveConsumer(name string) {
	d.submit(func() {
		d.selector.RemoveConsumer(name)
		d.registry.Remove(name)
		d.recentlyJoined.remove(name)
		if d.registry.Len() == 1 {
			d.recentlyJoined.clear()
		}
		if d.registry.Len() == 0 {
			d.lastSent.Store(lastSentBox{})
			d.individuallySent = position.New()
		}
		d.logger.Log(logging.LevelInfo, "consumer left", "consumer", name)
	})
}

// OnMarkDeleteAdvanced is the mark-delete advance callback: it retires
// every recently joined entry whose fence is now covered, then asks for
// more reads.
func (d *Dispatcher) OnMarkDeleteAdvanced(newMarkDelete position.Position) {
	d.submit(func() {
		d.recentlyJoined.retireUpTo(newMarkDelete)
		d.requestMore()
	})
}

func (d *Dispatcher) requestMore() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Dispatch runs the 9-step algorithm of spec.md §4.5 over one batch of
// entries, on the dispatcher's ordered-executor goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, entries []transport.Entry, rt ReadType) {
	d.submit(func() {
		d.dispatchBatch(ctx, entries, rt)
	})
}

func (d *Dispatcher) dispatchBatch(ctx context.Context, entries []transport.Entry, rt ReadType) {
	// Step 1 — guardrails.
	if len(entries) == 0 {
		d.requestMore()
		return
	}
	if d.registry.Len() == 0 {
		for _, e := range entries {
			d.tracker.Add(e.Position, e.KeyHash)
		}
		d.cursor.Rewind()
		return
	}

	// Step 2 — out-of-order mode skips steps 3-5 and 7.
	if d.cfg.AllowOutOfOrderDelivery {
		d.dispatchOutOfOrder(ctx, entries)
		return
	}

	// Step 3 — replay-precedence check (Normal reads only).
	if rt == ReadNormal {
		if replayPos, ok := d.peekFirstReplayReady(); ok {
			batchMin := entries[0].Position
			for _, e := range entries[1:] {
				if position.Less(e.Position, batchMin) {
					batchMin = e.Position
				}
			}
			if position.Less(replayPos, batchMin) {
				for _, e := range entries {
					d.tracker.Add(e.Position, e.KeyHash)
				}
				d.requestReplay(ctx)
				return
			}
		}
	}

	// Step 4 — seed lastSentPosition from mark-delete.
	d.seedLastSentIfNeeded()

	// Step 5 — grouping.
	groups := make(map[string][]transport.Entry)
	groupHashes := make(map[string]map[uint32]struct{})
	for _, e := range entries {
		owner, ok := d.selector.Select(e.KeyHash)
		if !ok {
			d.tracker.Add(e.Position, e.KeyHash)
			continue
		}
		groups[owner] = append(groups[owner], e)
		hs := groupHashes[owner]
		if hs == nil {
			hs = make(map[uint32]struct{})
			groupHashes[owner] = hs
		}
		hs[e.KeyHash] = struct{}{}
	}

	// Step 6 — admission per consumer, step 7 — send & record.
	var futures []sendFuture
	anySent := false
	for consumerName, groupEntries := range groups {
		c := d.registry.Get(consumerName)
		if c == nil {
			for _, e := range groupEntries {
				d.tracker.Add(e.Position, e.KeyHash)
			}
			continue
		}

		m := len(groupEntries)
		if permits := int(c.EffectivePermits()); m > permits {
			m = permits
		}

		if m > 0 && rt == ReadNormal {
			for h := range groupHashes[consumerName] {
				if d.tracker.ContainsAnyHash(h) {
					m = 0
					break
				}
			}
		}

		if m > 0 {
			if fence, ok := d.recentlyJoined.fence(consumerName); ok {
				effectiveFence := fence
				if rt == ReadReplay {
					if minF, hasMin := d.recentlyJoined.minFence(); hasMin && position.Less(minF, fence) {
						effectiveFence = minF
					}
				}
				admitted := 0
				for admitted < m && position.Compare(groupEntries[admitted].Position, effectiveFence) <= 0 {
					admitted++
				}
				m = admitted
			}
		}

		if m == 0 {
			for _, e := range groupEntries {
				d.tracker.Add(e.Position, e.KeyHash)
			}
			continue
		}

		admit := groupEntries[:m]
		for _, e := range groupEntries[m:] {
			d.tracker.Add(e.Position, e.KeyHash)
		}

		f := newSendFuture(consumerName, ctx, c.Transport, transport.Batch{Entries: admit})
		futures = append(futures, f)
		anySent = true

		for _, e := range admit {
			if rt == ReadReplay {
				d.tracker.Remove(e.Position)
			}
			d.recordSent(e.Position)
		}
	}

	d.joinFutures(ctx, futures)

	// Step 8 — advance lastSentPosition.
	d.advanceLastSent()

	// Step 9 — termination.
	if !anySent && d.recentlyJoined.isEmpty() {
		d.stuckOnReplays = true
		d.logger.Log(logging.LevelDebug, "stuck on replays")
	} else {
		d.stuckOnReplays = false
		d.requestMore()
	}
}

func (d *Dispatcher) dispatchOutOfOrder(ctx context.Context, entries []transport.Entry) {
	groups := make(map[string][]transport.Entry)
	for _, e := range entries {
		owner, ok := d.selector.Select(e.KeyHash)
		if !ok {
			d.tracker.Add(e.Position, e.KeyHash)
			continue
		}
		groups[owner] = append(groups[owner], e)
	}
	var futures []sendFuture
	for name, es := range groups {
		c := d.registry.Get(name)
		if c == nil {
			for _, e := range es {
				d.tracker.Add(e.Position, e.KeyHash)
			}
			continue
		}
		m := len(es)
		if permits := int(c.EffectivePermits()); m > permits {
			m = permits
		}
		if m == 0 {
			for _, e := range es {
				d.tracker.Add(e.Position, e.KeyHash)
			}
			continue
		}
		admit := es[:m]
		for _, e := range es[m:] {
			d.tracker.Add(e.Position, e.KeyHash)
		}
		futures = append(futures, newSendFuture(name, ctx, c.Transport, transport.Batch{Entries: admit}))
	}
	d.joinFutures(ctx, futures)
	d.requestMore()
}

// joinFutures reconciles every in-flight send's outcome into the registry
// once it completes, without making dispatchBatch wait for it: a
// SendMessages call is a network round-trip, and spec.md §5 requires that
// "dispatch never blocks" and "must not hold any lock across the send
// boundary" — here, the ordered-executor goroutine itself is that lock, so
// the join runs on its own goroutine and only the permit/error bookkeeping
// (not lastSentPosition/individuallySentPositions, which recordSent updates
// on the executor goroutine right after the send is issued) happens after
// the wait.
// registry.UpdatePermits is safe to call off the ordered-executor goroutine
// because Registry guards its own state with a mutex. Uses an errgroup to
// fan the joins out the way erigontech/erigon's own concurrent-fetch joins
// do.
func (d *Dispatcher) joinFutures(ctx context.Context, futures []sendFuture) {
	if len(futures) == 0 {
		return
	}
	go func() {
		g, gctx := errgroup.WithContext(ctx)
		for _, f := range futures {
			f := f
			g.Go(func() error {
				err := f.wait(gctx)
				if c := d.registry.Get(f.consumer); c != nil && c.Transport != nil {
					d.registry.UpdatePermits(f.consumer,
						c.Transport.AvailablePermits(),
						c.Transport.UnackedMessages(),
						c.Transport.MaxUnackedMessages(),
						c.Transport.Blocked())
				}
				if err != nil {
					return dispatcherr.New(dispatcherr.Transport, "SendMessages", err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			d.logger.Log(logging.LevelWarn, "send batch failed", "err", err)
		}
	}()
}

func (d *Dispatcher) recordSent(p position.Position) {
	box := d.lastSent.Load().(lastSentBox)
	if box.ok && position.Compare(p, box.pos) <= 0 {
		return
	}
	prev := p.Before()
	if err := d.individuallySent.AddOpenClosed(prev.LedgerID, prev.EntryID, p.LedgerID, p.EntryID); err != nil {
		d.terminateOnInvariantViolation("recordSent", err)
	}
}

// terminateOnInvariantViolation reports err as an InvariantViolation and
// closes the dispatcher: spec.md §7 states invariant violations terminate
// the dispatcher, rather than being logged and swallowed like the
// recoverable NotReady/Transport kinds.
func (d *Dispatcher) terminateOnInvariantViolation(op string, err error) {
	ierr := dispatcherr.Invariant(op, err)
	d.logger.Log(logging.LevelError, "invariant violation, terminating dispatcher", "op", op, "err", ierr)
	d.closed.Store(true)
}

func (d *Dispatcher) advanceLastSent() {
	for {
		first, ok := d.individuallySent.FirstRange()
		if !ok {
			return
		}
		box := d.lastSent.Load().(lastSentBox)
		if !box.ok {
			return
		}
		if position.Compare(first.Lo, box.pos) > 0 {
			return
		}
		d.lastSent.Store(lastSentBox{pos: first.Hi, ok: true})
		d.individuallySent.RemoveAtMost(first.Hi)
	}
}

func (d *Dispatcher) seedLastSentIfNeeded() {
	box := d.lastSent.Load().(lastSentBox)
	if box.ok {
		return
	}
	md, ok := d.cursor.MarkDeletedPosition()
	if !ok {
		// NotReady per spec.md §7: not fatal, proceed with lastSentPosition
		// nil and rely on recently-joined fences alone.
		return
	}
	d.lastSent.Store(lastSentBox{pos: md, ok: true})
	d.individuallySent = position.New()
	d.cursor.IndividuallyDeletedIntervals(func(iv position.Interval) bool {
		_ = d.individuallySent.AddOpenClosed(iv.Lo.LedgerID, iv.Lo.EntryID, iv.Hi.LedgerID, iv.Hi.EntryID)
		return true
	})
}

func (d *Dispatcher) peekFirstReplayReady() (position.Position, bool) {
	peek := d.tracker.Drain(1)
	if len(peek) == 0 {
		return position.Position{}, false
	}
	return peek[0], true
}

func (d *Dispatcher) requestReplay(ctx context.Context) {
	positions := d.tracker.Drain(d.cfg.ReadBatchSize)
	if len(positions) == 0 {
		return
	}
	if _, err := d.cursor.AsyncReplay(ctx, positions); err != nil {
		d.logger.Log(logging.LevelWarn, "replay request failed", "err", err)
	}
}

// StuckOnReplays reports whether the last dispatch cycle sent nothing and
// found no recently-joined consumers to account for it (spec.md §4.5 step
// 9), a signal the driving read loop can use to skip replay-first on its
// next cycle.
func (d *Dispatcher) StuckOnReplays() bool {
	var stuck bool
	d.submit(func() { stuck = d.stuckOnReplays })
	return stuck
}

// LastSentPosition returns the dispatcher's current lastSentPosition, read
// lock-free off the atomic.Value the way the teacher's session is read by
// external inspectors without blocking the ordered-executor goroutine.
func (d *Dispatcher) LastSentPosition() (position.Position, bool) {
	box := d.lastSent.Load().(lastSentBox)
	return box.pos, box.ok
}

// PendingRedeliveryCount returns the number of positions currently
// awaiting redelivery.
func (d *Dispatcher) PendingRedeliveryCount() int {
	var n int
	d.submit(func() { n = d.tracker.Len() })
	return n
}
