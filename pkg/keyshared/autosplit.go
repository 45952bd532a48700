package keyshared

import (
	"math"
	"sort"
)

// AutoSplitRange divides the full 32-bit hash space into N contiguous,
// equal-width ranges, one per consumer, recomputed whenever membership
// changes. Consumer order is insertion order, so existing consumers keep
// their relative position on the line as others join or leave (their exact
// boundaries still shift, since every range is recomputed).
type AutoSplitRange struct {
	order  []string
	index  map[string]int
	ranges []HashRange // cached, rebuilt lazily after a membership change
	dirty  bool
}

func NewAutoSplitRange() *AutoSplitRange {
	return &AutoSplitRange{index: make(map[string]int)}
}

func (a *AutoSplitRange) AddConsumer(name string) error {
	if _, exists := a.index[name]; exists {
		return nil
	}
	a.index[name] = len(a.order)
	a.order = append(a.order, name)
	a.dirty = true
	return nil
}

func (a *AutoSplitRange) RemoveConsumer(name string) {
	pos, exists := a.index[name]
	if !exists {
		return
	}
	a.order = append(a.order[:pos], a.order[pos+1:]...)
	delete(a.index, name)
	for i := pos; i < len(a.order); i++ {
		a.index[a.order[i]] = i
	}
	a.dirty = true
}

func (a *AutoSplitRange) rebuild() {
	n := len(a.order)
	a.ranges = make([]HashRange, n)
	if n == 0 {
		a.dirty = false
		return
	}
	width := (uint64(math.MaxUint32) + 1) / uint64(n)
	var lo uint64
	for i := 0; i < n; i++ {
		hi := lo + width - 1
		if i == n-1 {
			hi = math.MaxUint32
		}
		a.ranges[i] = HashRange{Lo: uint32(lo), Hi: uint32(hi)}
		lo = hi + 1
	}
	a.dirty = false
}

func (a *AutoSplitRange) Select(hash uint32) (string, bool) {
	if len(a.order) == 0 {
		return "", false
	}
	if a.dirty {
		a.rebuild()
	}
	idx := sort.Search(len(a.ranges), func(i int) bool { return a.ranges[i].Hi >= hash })
	if idx >= len(a.ranges) {
		idx = len(a.ranges) - 1
	}
	return a.order[idx], true
}

func (a *AutoSplitRange) ConsumerKeyHashRanges() map[string][]HashRange {
	if a.dirty {
		a.rebuild()
	}
	out := make(map[string][]HashRange, len(a.order))
	for i, name := range a.order {
		out[name] = []HashRange{a.ranges[i]}
	}
	return out
}
