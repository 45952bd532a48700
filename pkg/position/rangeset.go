package position

import (
	"errors"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/btree"
)

// ErrInvalidRange is returned by AddOpenClosed when the caller's lower
// ledger is greater than its upper ledger.
var ErrInvalidRange = errors.New("position: lower ledger is greater than upper ledger")

// RangeSet is a sparse set of half-open intervals over (ledgerId, entryId),
// the Go-native LongPairRangeSet of the original design: an ordered
// directory of non-empty ledgers (a google/btree.BTree keyed by ledgerId),
// each holding a RoaringBitmap/roaring bitmap of the entryIds present in
// that ledger. A RangeSet is not safe for concurrent use; callers (the
// dispatcher) own it exclusively, per the single-owner discipline described
// alongside it.
type RangeSet struct {
	dir *btree.BTree
}

// New returns an empty RangeSet.
func New() *RangeSet {
	return &RangeSet{dir: btree.New(32)}
}

type ledgerEntry struct {
	ledgerID uint64
	bitmap   *roaring.Bitmap
}

func (l *ledgerEntry) Less(than btree.Item) bool {
	return l.ledgerID < than.(*ledgerEntry).ledgerID
}

func (rs *RangeSet) getLedger(id uint64) *ledgerEntry {
	item := rs.dir.Get(&ledgerEntry{ledgerID: id})
	if item == nil {
		return nil
	}
	return item.(*ledgerEntry)
}

func (rs *RangeSet) getOrCreateLedger(id uint64) *ledgerEntry {
	if le := rs.getLedger(id); le != nil {
		return le
	}
	le := &ledgerEntry{ledgerID: id, bitmap: roaring.NewBitmap()}
	rs.dir.ReplaceOrInsert(le)
	return le
}

// pruneIfEmpty enforces invariant I3: empty ledgers must not appear in the
// directory.
func (rs *RangeSet) pruneIfEmpty(le *ledgerEntry) {
	if le.bitmap.IsEmpty() {
		rs.dir.Delete(le)
	}
}

func (rs *RangeSet) addSingleLedger(l uint64, loE, hiE int64) {
	if loE >= hiE {
		return
	}
	le := rs.getOrCreateLedger(l)
	le.bitmap.AddRange(uint64(entryToBit(loE))+1, uint64(entryToBit(hiE))+1)
}

// AddOpenClosed adds the half-open range ((loL,loE),(hiL,hiE)]. When the
// range straddles ledgers, only the final ledger's (-1, hiE] segment is
// materialized: the starting ledger's open-ended upper portion and any
// ledgers strictly between loL and hiL are conceptually "owned" by the
// range but are never finite, so — consistent with invariant I3, which
// forbids empty-looking ledgers from appearing in the directory at all —
// this call does not fabricate entries for them. A caller that needs those
// ledgers populated must add a separately bounded range for them.
func (rs *RangeSet) AddOpenClosed(loL uint64, loE int64, hiL uint64, hiE int64) error {
	if loL == hiL {
		rs.addSingleLedger(loL, loE, hiE)
		return nil
	}
	if loL > hiL {
		return ErrInvalidRange
	}
	rs.addSingleLedger(hiL, NoEntry, hiE)
	return nil
}

func (rs *RangeSet) removeClosedWithinLedger(l uint64, loE, hiE int64) {
	if loE > hiE {
		return
	}
	le := rs.getLedger(l)
	if le == nil {
		return
	}
	start := uint64(entryToBit(loE))
	end := uint64(entryToBit(hiE)) + 1
	le.bitmap.RemoveRange(start, end)
	rs.pruneIfEmpty(le)
}

func (rs *RangeSet) deleteLedgerRange(fromL, toL uint64) {
	if fromL > toL {
		return
	}
	var ids []uint64
	rs.dir.AscendRange(&ledgerEntry{ledgerID: fromL}, &ledgerEntry{ledgerID: toL + 1}, func(i btree.Item) bool {
		ids = append(ids, i.(*ledgerEntry).ledgerID)
		return true
	})
	for _, id := range ids {
		rs.dir.Delete(&ledgerEntry{ledgerID: id})
	}
}

// deleteLedgerRangeFrom deletes every ledger >= fromL, unbounded above.
// Unlike deleteLedgerRange, it takes no upper bound, so it has no
// fromL/toL+1 overflow case to guard against when the caller wants
// everything above a point up to the top of the uint64 space.
func (rs *RangeSet) deleteLedgerRangeFrom(fromL uint64) {
	var ids []uint64
	rs.dir.AscendGreaterOrEqual(&ledgerEntry{ledgerID: fromL}, func(i btree.Item) bool {
		ids = append(ids, i.(*ledgerEntry).ledgerID)
		return true
	})
	for _, id := range ids {
		rs.dir.Delete(&ledgerEntry{ledgerID: id})
	}
}

// RemoveRange removes the closed range [lo, hi] from the set. Partial
// overlap truncates the affected interval(s); full containment removes
// them outright.
func (rs *RangeSet) RemoveRange(lo, hi Position) {
	if Compare(lo, hi) > 0 {
		return
	}
	if lo.LedgerID == hi.LedgerID {
		rs.removeClosedWithinLedger(lo.LedgerID, lo.EntryID, hi.EntryID)
		return
	}
	rs.removeClosedWithinLedger(lo.LedgerID, lo.EntryID, maxEntryID)
	if hi.LedgerID > 0 {
		rs.deleteLedgerRange(lo.LedgerID+1, hi.LedgerID-1)
	}
	rs.removeClosedWithinLedger(hi.LedgerID, NoEntry, hi.EntryID)
}

// RemoveAtMost removes every position p with p <= bound.
func (rs *RangeSet) RemoveAtMost(bound Position) {
	if bound.LedgerID > 0 {
		rs.deleteLedgerRange(0, bound.LedgerID-1)
	}
	rs.removeClosedWithinLedger(bound.LedgerID, NoEntry, bound.EntryID)
}

// RemoveAtLeast removes every position p with p >= bound.
func (rs *RangeSet) RemoveAtLeast(bound Position) {
	if bound.LedgerID < math.MaxUint64 {
		rs.deleteLedgerRangeFrom(bound.LedgerID + 1)
	}
	rs.removeClosedWithinLedger(bound.LedgerID, bound.EntryID, maxEntryID)
}

// Contains reports whether (l, e) lies within some interval of the set.
func (rs *RangeSet) Contains(l uint64, e int64) bool {
	le := rs.getLedger(l)
	if le == nil {
		return false
	}
	return le.bitmap.Contains(entryToBit(e))
}

// runBounds expands the maximal run of set bits containing bit and returns
// the (open-lower, closed-upper) entryId bounds of that run.
func runBounds(bm *roaring.Bitmap, bit uint32) (loEntry, hiEntry int64) {
	lo := bit
	for lo > 0 && bm.Contains(lo-1) {
		lo--
	}
	hi := bit
	for hi < math.MaxUint32 && bm.Contains(hi+1) {
		hi++
	}
	return bitToEntry(lo) - 1, bitToEntry(hi)
}

// RangeContaining returns the unique interval containing (l, e), if any.
func (rs *RangeSet) RangeContaining(l uint64, e int64) (Interval, bool) {
	le := rs.getLedger(l)
	if le == nil {
		return Interval{}, false
	}
	bit := entryToBit(e)
	if !le.bitmap.Contains(bit) {
		return Interval{}, false
	}
	loEntry, hiEntry := runBounds(le.bitmap, bit)
	return Interval{Lo: Position{LedgerID: l, EntryID: loEntry}, Hi: Position{LedgerID: l, EntryID: hiEntry}}, true
}

// FirstRange returns the lowest interval in the set.
func (rs *RangeSet) FirstRange() (Interval, bool) {
	item := rs.dir.Min()
	if item == nil {
		return Interval{}, false
	}
	le := item.(*ledgerEntry)
	loEntry, hiEntry := runBounds(le.bitmap, le.bitmap.Minimum())
	return Interval{Lo: Position{LedgerID: le.ledgerID, EntryID: loEntry}, Hi: Position{LedgerID: le.ledgerID, EntryID: hiEntry}}, true
}

// LastRange returns the highest interval in the set.
func (rs *RangeSet) LastRange() (Interval, bool) {
	item := rs.dir.Max()
	if item == nil {
		return Interval{}, false
	}
	le := item.(*ledgerEntry)
	loEntry, hiEntry := runBounds(le.bitmap, le.bitmap.Maximum())
	return Interval{Lo: Position{LedgerID: le.ledgerID, EntryID: loEntry}, Hi: Position{LedgerID: le.ledgerID, EntryID: hiEntry}}, true
}

// Span returns (firstLowerBound, lastUpperBound] of the union, or false
// when the set is empty.
func (rs *RangeSet) Span() (Interval, bool) {
	first, ok := rs.FirstRange()
	if !ok {
		return Interval{}, false
	}
	last, _ := rs.LastRange()
	return Interval{Lo: first.Lo, Hi: last.Hi}, true
}

// Size returns the total number of present entries across all ledgers.
func (rs *RangeSet) Size() uint64 {
	var total uint64
	rs.dir.Ascend(func(i btree.Item) bool {
		total += i.(*ledgerEntry).bitmap.GetCardinality()
		return true
	})
	return total
}

// ForEachRawRange invokes visitor(loL, loE, hiL, hiE) for every interval in
// ascending order, stopping early when visitor returns false.
func (rs *RangeSet) ForEachRawRange(visitor func(loL uint64, loE int64, hiL uint64, hiE int64) bool) {
	rs.dir.Ascend(func(i btree.Item) bool {
		le := i.(*ledgerEntry)
		it := le.bitmap.Iterator()
		for it.HasNext() {
			start := it.Next()
			end := start
			for it.HasNext() {
				peek := it.PeekNext()
				if peek != end+1 {
					break
				}
				end = it.Next()
			}
			loEntry := bitToEntry(start) - 1
			hiEntry := bitToEntry(end)
			if !visitor(le.ledgerID, loEntry, le.ledgerID, hiEntry) {
				return false
			}
		}
		return true
	})
}

// AsRanges returns every interval in the set in ascending order.
func (rs *RangeSet) AsRanges() []Interval {
	var out []Interval
	rs.ForEachRawRange(func(loL uint64, loE int64, hiL uint64, hiE int64) bool {
		out = append(out, Interval{Lo: Position{LedgerID: loL, EntryID: loE}, Hi: Position{LedgerID: hiL, EntryID: hiE}})
		return true
	})
	return out
}

func (rs *RangeSet) ledgerWindowCardinality(l uint64, loE, hiE int64) uint64 {
	if loE >= hiE {
		return 0
	}
	le := rs.getLedger(l)
	if le == nil {
		return 0
	}
	clone := le.bitmap.Clone()
	startBit := uint64(entryToBit(loE)) + 1
	endBit := uint64(entryToBit(hiE)) + 1
	clone.RemoveRange(0, startBit)
	clone.RemoveRange(endBit, uint64(math.MaxUint32)+1)
	return clone.GetCardinality()
}

// Cardinality counts the present entries within the half-open window
// ((loL,loE),(hiL,hiE)].
func (rs *RangeSet) Cardinality(loL uint64, loE int64, hiL uint64, hiE int64) uint64 {
	if loL == hiL {
		return rs.ledgerWindowCardinality(loL, loE, hiE)
	}
	if loL > hiL {
		return 0
	}
	total := rs.ledgerWindowCardinality(loL, loE, maxEntryID)
	if hiL > loL+1 {
		rs.dir.AscendRange(&ledgerEntry{ledgerID: loL + 1}, &ledgerEntry{ledgerID: hiL}, func(i btree.Item) bool {
			total += i.(*ledgerEntry).bitmap.GetCardinality()
			return true
		})
	}
	total += rs.ledgerWindowCardinality(hiL, NoEntry, hiE)
	return total
}
