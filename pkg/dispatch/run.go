package dispatch

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cognitree/pulsar/pkg/logging"
)

// Run drives the dispatcher against a live cursor: read, dispatch, repeat,
// until ctx is done or Close is called. When a cycle reports
// StuckOnReplays, the next read is rescheduled through an exponential
// backoff (SPEC_FULL.md §10) instead of busy-looping — the same dependency
// erigontech/erigon and stellar/stellar-cli already carry in the pack for
// retry scheduling.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.Close()

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if d.closed.Load() {
			return
		}

		entries, err := d.cursor.ReadEntries(ctx, d.cfg.ReadBatchSize)
		if err != nil {
			d.logger.Log(logging.LevelWarn, "cursor read failed", "err", err)
			if ctx.Err() != nil {
				return
			}
			continue
		}

		rt := ReadNormal
		if d.StuckOnReplays() {
			rt = ReadReplay
		}
		d.Dispatch(ctx, entries, rt)

		if len(entries) > 0 && !d.StuckOnReplays() {
			b.Reset()
			continue
		}

		wait := b.NextBackOff()
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		case <-time.After(wait):
		}
	}
}
