// Package redelivery tracks entries the dispatcher read but did not deliver
// (no owning consumer, no permits, a replay or recently-joined fence), and
// that must be replayed — either to their original sticky owner or, after a
// recently-joined consumer's fence lifts, to whichever consumer now owns
// that entry's key hash.
//
// The tracker is a map-of-maps in spirit (entries owed, keyed first by
// recoverability, same shape as the teacher's offsetLoadMap/listOrEpochLoads
// in consumer.go), but keyed here by Position with btree.BTree giving
// ascending iteration for Drain and a secondary hash index giving
// ContainsAnyHash its O(1) lookup.
package redelivery

import (
	"github.com/google/btree"

	"github.com/cognitree/pulsar/pkg/position"
)

type entry struct {
	pos  position.Position
	hash uint32
}

func (e *entry) Less(than btree.Item) bool {
	return position.Less(e.pos, than.(*entry).pos)
}

// Tracker is the set of positions currently awaiting redelivery, indexed
// both by position (for ordered draining) and by sticky-key hash (for
// "does any pending redelivery belong to this hash" queries raised when a
// consumer's ownership of a hash range changes).
type Tracker struct {
	byPosition *btree.BTree
	byHash     map[uint32]map[position.Position]struct{}
}

func New() *Tracker {
	return &Tracker{
		byPosition: btree.New(32),
		byHash:     make(map[uint32]map[position.Position]struct{}),
	}
}

// Add records pos, sent under sticky-key hash, as awaiting redelivery. Add
// is idempotent: re-adding an already-tracked position is a no-op.
func (t *Tracker) Add(pos position.Position, hash uint32) {
	key := &entry{pos: pos}
	if t.byPosition.Get(key) != nil {
		return
	}
	t.byPosition.ReplaceOrInsert(&entry{pos: pos, hash: hash})
	byHash, ok := t.byHash[hash]
	if !ok {
		byHash = make(map[position.Position]struct{})
		t.byHash[hash] = byHash
	}
	byHash[pos] = struct{}{}
}

// Remove clears pos from the tracker, typically once a replay read has
// sent it to a consumer.
func (t *Tracker) Remove(pos position.Position) {
	removed := t.byPosition.Delete(&entry{pos: pos})
	if removed == nil {
		return
	}
	e := removed.(*entry)
	byHash := t.byHash[e.hash]
	delete(byHash, pos)
	if len(byHash) == 0 {
		delete(t.byHash, e.hash)
	}
}

// Contains reports whether pos is currently awaiting redelivery.
func (t *Tracker) Contains(pos position.Position) bool {
	return t.byPosition.Get(&entry{pos: pos}) != nil
}

// ContainsAnyHash reports whether any position awaiting redelivery was sent
// under the given sticky-key hash. The dispatcher uses this to decide
// whether a hash range's new owner must wait for outstanding redeliveries
// before receiving fresh entries for that hash.
func (t *Tracker) ContainsAnyHash(hash uint32) bool {
	return len(t.byHash[hash]) > 0
}

// IsEmpty reports whether no positions are awaiting redelivery.
func (t *Tracker) IsEmpty() bool {
	return t.byPosition.Len() == 0
}

// Len returns the number of positions awaiting redelivery.
func (t *Tracker) Len() int {
	return t.byPosition.Len()
}

// Drain returns up to limit positions awaiting redelivery, in ascending
// order, without removing them: callers remove each position individually
// once it has actually been redelivered. A non-positive
// limit returns every tracked position.
func (t *Tracker) Drain(limit int) []position.Position {
	var out []position.Position
	t.byPosition.Ascend(func(i btree.Item) bool {
		if limit > 0 && len(out) >= limit {
			return false
		}
		out = append(out, i.(*entry).pos)
		return true
	})
	return out
}
