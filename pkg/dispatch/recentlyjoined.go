package dispatch

import "github.com/cognitree/pulsar/pkg/position"

// recentlyJoinedTable is the insertion-ordered consumer→fencePosition map
// of spec.md §3: (R1) order of insertion is join order, (R2) a consumer
// present here must never receive, via a Normal read, an entry beyond its
// fence, (R3) entries are retired once mark-delete reaches the fence.
type recentlyJoinedTable struct {
	order  []string
	fences map[string]position.Position
}

func newRecentlyJoinedTable() *recentlyJoinedTable {
	return &recentlyJoinedTable{fences: make(map[string]position.Position)}
}

func (t *recentlyJoinedTable) put(consumer string, fence position.Position) {
	if _, exists := t.fences[consumer]; !exists {
		t.order = append(t.order, consumer)
	}
	t.fences[consumer] = fence
}

func (t *recentlyJoinedTable) remove(consumer string) {
	if _, exists := t.fences[consumer]; !exists {
		return
	}
	delete(t.fences, consumer)
	for i, n := range t.order {
		if n == consumer {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *recentlyJoinedTable) fence(consumer string) (position.Position, bool) {
	f, ok := t.fences[consumer]
	return f, ok
}

func (t *recentlyJoinedTable) isEmpty() bool {
	return len(t.fences) == 0
}

func (t *recentlyJoinedTable) clear() {
	t.order = nil
	t.fences = make(map[string]position.Position)
}

// minFence returns the smallest fence currently held by any recently
// joined consumer, used by replay admission (step 6d: "on replay, use
// min(f, minFenceOfAllRecentlyJoined)").
func (t *recentlyJoinedTable) minFence() (position.Position, bool) {
	if len(t.fences) == 0 {
		return position.Position{}, false
	}
	first := true
	var min position.Position
	for _, c := range t.order {
		f := t.fences[c]
		if first || position.Less(f, min) {
			min = f
			first = false
		}
	}
	return min, true
}

// retireUpTo removes every recently joined entry whose fence is at or
// below markDelete (R3), called from the mark-delete advance callback.
func (t *recentlyJoinedTable) retireUpTo(markDelete position.Position) {
	for _, c := range append([]string(nil), t.order...) {
		f := t.fences[c]
		if position.Compare(f, markDelete) <= 0 {
			t.remove(c)
		}
	}
}
