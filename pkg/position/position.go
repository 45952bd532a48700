// Package position implements a sparse set of half-open intervals over an
// ordered (ledgerId, entryId) key pair, as used by a cursor-backed dispatch
// loop to track which log positions have already been delivered.
package position

import "fmt"

// NoEntry is the sentinel entryId denoting "the position immediately before
// entry 0 in a ledger". It is only ever used as an open lower bound; it is
// never itself a present entry.
const NoEntry int64 = -1

// Position is a single point in the log, addressed by an owning ledger and
// an entry offset within it. Positions are immutable values and order
// lexicographically by (LedgerID, EntryID).
type Position struct {
	LedgerID uint64
	EntryID  int64
}

// Before returns the position immediately before p within the same ledger.
// It is only meaningful when p.EntryID > NoEntry.
func (p Position) Before() Position {
	return Position{LedgerID: p.LedgerID, EntryID: p.EntryID - 1}
}

// Next returns the position immediately after p within the same ledger.
func (p Position) Next() Position {
	return Position{LedgerID: p.LedgerID, EntryID: p.EntryID + 1}
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.LedgerID, p.EntryID)
}

// Compare returns -1, 0 or 1 as a is less than, equal to, or greater than b,
// lexicographically over (LedgerID, EntryID).
func Compare(a, b Position) int {
	if a.LedgerID != b.LedgerID {
		if a.LedgerID < b.LedgerID {
			return -1
		}
		return 1
	}
	if a.EntryID != b.EntryID {
		if a.EntryID < b.EntryID {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether a sorts strictly before b.
func Less(a, b Position) bool { return Compare(a, b) < 0 }
