package keyshared

import (
	"fmt"

	"github.com/cognitree/pulsar/pkg/dispatcherr"
)

// Exclusive assigns each consumer a caller-claimed, non-overlapping set of
// hash ranges rather than deriving them from membership. It has no
// membership-only AddConsumer: a consumer joins with AddConsumerWithRanges,
// carrying the ranges it claims.
type Exclusive struct {
	order  []string
	ranges map[string][]HashRange
}

func NewExclusive() *Exclusive {
	return &Exclusive{ranges: make(map[string][]HashRange)}
}

// AddConsumer always fails for Exclusive: there is no membership-derived
// range to hand out. Callers must use AddConsumerWithRanges.
func (e *Exclusive) AddConsumer(name string) error {
	return dispatcherr.New(dispatcherr.InvalidArgument, "Exclusive.AddConsumer",
		fmt.Errorf("exclusive key-shared mode requires explicit hash ranges; use AddConsumerWithRanges"))
}

// AddConsumerWithRanges registers name as the owner of ranges. Overlap with
// any other consumer's claimed ranges is rejected as InvalidArgument; the
// registry is left unchanged in that case.
func (e *Exclusive) AddConsumerWithRanges(name string, ranges []HashRange) error {
	for _, r := range ranges {
		for other, otherRanges := range e.ranges {
			if other == name {
				continue
			}
			for _, or := range otherRanges {
				if r.overlaps(or) {
					return dispatcherr.New(dispatcherr.InvalidArgument, "Exclusive.AddConsumerWithRanges",
						fmt.Errorf("range %+v overlaps consumer %q range %+v", r, other, or))
				}
			}
		}
	}
	if _, exists := e.ranges[name]; !exists {
		e.order = append(e.order, name)
	}
	claimed := make([]HashRange, len(ranges))
	copy(claimed, ranges)
	e.ranges[name] = claimed
	return nil
}

func (e *Exclusive) RemoveConsumer(name string) {
	if _, exists := e.ranges[name]; !exists {
		return
	}
	delete(e.ranges, name)
	for i, n := range e.order {
		if n == name {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

func (e *Exclusive) Select(hash uint32) (string, bool) {
	for _, name := range e.order {
		for _, r := range e.ranges[name] {
			if r.contains(hash) {
				return name, true
			}
		}
	}
	return "", false
}

func (e *Exclusive) ConsumerKeyHashRanges() map[string][]HashRange {
	out := make(map[string][]HashRange, len(e.ranges))
	for name, ranges := range e.ranges {
		cp := make([]HashRange, len(ranges))
		copy(cp, ranges)
		out[name] = cp
	}
	return out
}
