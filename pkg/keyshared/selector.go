// Package keyshared implements the sticky-key selector capability: given a
// 32-bit hash, return the consumer currently owning that hash slot. Three
// variants are provided (ConsistentHash, AutoSplitRange, Exclusive), a
// closed tagged-variant set per spec.md §9 ("no open-ended plugin surface is
// required") grounded on the teacher's own tagged-enum dispatch style
// (consumer.go's assignHow/assignPartitions).
package keyshared

import "github.com/spaolacci/murmur3"

// HashKey hashes an application sticky key to the 32-bit space the
// selectors operate over. All selector variants must be deterministic pure
// functions of membership for identical inputs across replicas, so the hash
// itself must also be deterministic: Murmur3/32 has no seed randomization
// here.
func HashKey(key []byte) uint32 {
	return murmur3.Sum32(key)
}

// HashRange is an inclusive [Lo, Hi] slice of the 32-bit hash space.
type HashRange struct {
	Lo uint32
	Hi uint32
}

func (r HashRange) contains(h uint32) bool { return h >= r.Lo && h <= r.Hi }

func (r HashRange) overlaps(o HashRange) bool { return r.Lo <= o.Hi && o.Lo <= r.Hi }

// Selector is the capability every key-shared mode implements: map a hash to
// its owning consumer, track consumer membership, and report the hash
// ranges currently owned by each consumer.
type Selector interface {
	// Select returns the consumer owning hash, or ("", false) if no
	// consumer currently claims it.
	Select(hash uint32) (string, bool)
	// AddConsumer registers a new consumer. ConsistentHash and
	// AutoSplitRange accept any name; Exclusive always rejects this in
	// favor of AddConsumerWithRanges, since it has no membership-derived
	// range to assign.
	AddConsumer(name string) error
	RemoveConsumer(name string)
	// ConsumerKeyHashRanges reports the hash ranges owned by each
	// consumer as of the current membership.
	ConsumerKeyHashRanges() map[string][]HashRange
}

// RangeClaimer is implemented by selector variants — Exclusive is the only
// one today — that accept caller-claimed hash ranges at join time instead
// of deriving them from membership alone.
type RangeClaimer interface {
	AddConsumerWithRanges(name string, ranges []HashRange) error
}
