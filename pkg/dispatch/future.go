package dispatch

import (
	"context"

	"github.com/cognitree/pulsar/pkg/dispatch/transport"
)

// sendFuture waits for one consumer's SendMessages call to complete without
// blocking the dispatcher's ordered executor across the send boundary
// (spec.md §5: "must not hold any lock across the send boundary"). It is
// the same promise-over-a-channel shape as the teacher's
// promisedReq/promisedResp pair in broker.go — there a request is enqueued
// with a promise callback and waitResp blocks a throwaway goroutine on a
// done channel until the callback fires; here the consumer transport
// already hands back a channel directly, so sendFuture only needs to race
// it against ctx cancellation and tag the result with which consumer it
// belongs to.
type sendFuture struct {
	consumer string
	errc     <-chan error
}

func newSendFuture(consumer string, ctx context.Context, t transport.ConsumerTransport, batch transport.Batch) sendFuture {
	return sendFuture{consumer: consumer, errc: t.SendMessages(ctx, batch)}
}

// wait blocks until the send completes or ctx is done, whichever is first.
func (f sendFuture) wait(ctx context.Context) error {
	select {
	case err := <-f.errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
