package position_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cognitree/pulsar/pkg/position"
)

func iv(loL uint64, loE int64, hiL uint64, hiE int64) position.Interval {
	return position.Interval{
		Lo: position.Position{LedgerID: loL, EntryID: loE},
		Hi: position.Position{LedgerID: hiL, EntryID: hiE},
	}
}

// Scenario 1: single ledger, four disjoint intervals.
func TestScenario1SingleLedgerFourRanges(t *testing.T) {
	rs := position.New()
	require.NoError(t, rs.AddOpenClosed(0, -1, 0, 5))
	require.NoError(t, rs.AddOpenClosed(0, 7, 0, 10))
	require.NoError(t, rs.AddOpenClosed(0, 97, 0, 99))
	require.NoError(t, rs.AddOpenClosed(0, 101, 0, 106))

	want := []position.Interval{
		iv(0, -1, 0, 5),
		iv(0, 7, 0, 10),
		iv(0, 97, 0, 99),
		iv(0, 101, 0, 106),
	}
	assertRanges(t, rs.AsRanges(), want)
	require.EqualValues(t, 6+3+2+5, rs.Size())

	first, ok := rs.FirstRange()
	require.True(t, ok)
	require.Equal(t, want[0], first)

	last, ok := rs.LastRange()
	require.True(t, ok)
	require.Equal(t, want[3], last)

	span, ok := rs.Span()
	require.True(t, ok)
	require.Equal(t, iv(0, -1, 0, 106), span)
}

// Scenario 2: cross-ledger adds normalize as the final ledger's (-1,hi]
// segment; the open-ended starting/intermediate ledgers are not
// materialized.
func TestScenario2CrossLedgerNormalization(t *testing.T) {
	rs := position.New()
	require.NoError(t, rs.AddOpenClosed(0, 98, 0, 99))
	require.NoError(t, rs.AddOpenClosed(0, 100, 1, 5))
	require.NoError(t, rs.AddOpenClosed(1, 10, 1, 15))
	require.NoError(t, rs.AddOpenClosed(1, 20, 2, 10))

	want := []position.Interval{
		iv(0, 98, 0, 99),
		iv(1, -1, 1, 5),
		iv(1, 10, 1, 15),
		iv(2, -1, 2, 10),
	}
	assertRanges(t, rs.AsRanges(), want)
}

// Scenario 5: cardinality over a half-open window spanning two stored
// intervals within one ledger.
func TestScenario5Cardinality(t *testing.T) {
	rs := position.New()
	require.NoError(t, rs.AddOpenClosed(1, 0, 1, 20))
	require.NoError(t, rs.AddOpenClosed(1, 30, 1, 90))

	require.EqualValues(t, 80, rs.Cardinality(1, 0, 1, 100))
}

// Scenario 6: removeAtMost truncates a straddled interval and drops whole
// ledgers below the bound.
func TestScenario6RemoveAtMost(t *testing.T) {
	rs := position.New()
	require.NoError(t, rs.AddOpenClosed(0, 1, 0, 50))
	require.NoError(t, rs.AddOpenClosed(1, 9, 1, 15))
	require.NoError(t, rs.AddOpenClosed(2, 24, 2, 28))
	require.NoError(t, rs.AddOpenClosed(3, 11, 3, 20))

	rs.RemoveAtMost(position.Position{LedgerID: 2, EntryID: 27})

	want := []position.Interval{
		iv(2, 27, 2, 28),
		iv(3, 11, 3, 20),
	}
	assertRanges(t, rs.AsRanges(), want)
}

func TestEmptyIntervalIsNoOp(t *testing.T) {
	rs := position.New()
	require.NoError(t, rs.AddOpenClosed(0, 5, 0, 5))
	require.Empty(t, rs.AsRanges())
	require.EqualValues(t, 0, rs.Size())
}

func TestSentinelRoundTrip(t *testing.T) {
	rs := position.New()
	require.NoError(t, rs.AddOpenClosed(3, -1, 3, 4))
	first, ok := rs.FirstRange()
	require.True(t, ok)
	require.Equal(t, iv(3, -1, 3, 4), first)
}

func TestContainsAndRangeContaining(t *testing.T) {
	rs := position.New()
	require.NoError(t, rs.AddOpenClosed(0, -1, 0, 5))

	require.True(t, rs.Contains(0, 0))
	require.True(t, rs.Contains(0, 5))
	require.False(t, rs.Contains(0, 6))
	require.False(t, rs.Contains(1, 0))

	got, ok := rs.RangeContaining(0, 3)
	require.True(t, ok)
	require.Equal(t, iv(0, -1, 0, 5), got)

	_, ok = rs.RangeContaining(0, 6)
	require.False(t, ok)
}

func TestTouchingIntervalsCoalesce(t *testing.T) {
	rs := position.New()
	require.NoError(t, rs.AddOpenClosed(0, 0, 0, 5))
	require.NoError(t, rs.AddOpenClosed(0, 5, 0, 10))

	want := []position.Interval{iv(0, 0, 0, 10)}
	assertRanges(t, rs.AsRanges(), want)
}

func TestAddThenRemoveExactBoundsYieldsEmpty(t *testing.T) {
	rs := position.New()
	require.NoError(t, rs.AddOpenClosed(4, 10, 4, 20))
	rs.RemoveRange(position.Position{LedgerID: 4, EntryID: 11}, position.Position{LedgerID: 4, EntryID: 20})
	require.Empty(t, rs.AsRanges())
	require.EqualValues(t, 0, rs.Size())
}

func TestOverlappingAddsThenUnionRemoveYieldsEmpty(t *testing.T) {
	rs := position.New()
	require.NoError(t, rs.AddOpenClosed(0, 0, 0, 10))
	require.NoError(t, rs.AddOpenClosed(0, 5, 0, 15))
	rs.RemoveRange(position.Position{LedgerID: 0, EntryID: 1}, position.Position{LedgerID: 0, EntryID: 15})
	require.Empty(t, rs.AsRanges())
}

func TestRemoveRangeAcrossLedgers(t *testing.T) {
	rs := position.New()
	require.NoError(t, rs.AddOpenClosed(0, 0, 0, 10))
	require.NoError(t, rs.AddOpenClosed(1, 0, 1, 10))
	require.NoError(t, rs.AddOpenClosed(2, 0, 2, 10))

	rs.RemoveRange(position.Position{LedgerID: 0, EntryID: 5}, position.Position{LedgerID: 2, EntryID: 5})

	want := []position.Interval{
		iv(0, 0, 0, 4),
		iv(2, 5, 2, 10),
	}
	assertRanges(t, rs.AsRanges(), want)
}

func TestRemoveAtLeast(t *testing.T) {
	rs := position.New()
	require.NoError(t, rs.AddOpenClosed(0, 0, 0, 10))
	require.NoError(t, rs.AddOpenClosed(1, 0, 1, 10))

	rs.RemoveAtLeast(position.Position{LedgerID: 0, EntryID: 5})

	want := []position.Interval{iv(0, 0, 0, 4)}
	assertRanges(t, rs.AsRanges(), want)
}

// TestRemoveAtLeastDropsEntireHigherLedgers guards against the off-by-one
// ledger directory bound regressing: the bound ledger is trimmed in place,
// but every ledger strictly above it must be dropped outright, not merely
// left untouched.
func TestRemoveAtLeastDropsEntireHigherLedgers(t *testing.T) {
	rs := position.New()
	require.NoError(t, rs.AddOpenClosed(0, -1, 0, 10))
	require.NoError(t, rs.AddOpenClosed(1, -1, 1, 10))
	require.NoError(t, rs.AddOpenClosed(2, -1, 2, 10))

	rs.RemoveAtLeast(position.Position{LedgerID: 0, EntryID: 5})

	want := []position.Interval{iv(0, -1, 0, 4)}
	assertRanges(t, rs.AsRanges(), want)
}

func TestForEachRawRangeStopsEarly(t *testing.T) {
	rs := position.New()
	require.NoError(t, rs.AddOpenClosed(0, -1, 0, 5))
	require.NoError(t, rs.AddOpenClosed(1, -1, 1, 5))

	count := 0
	rs.ForEachRawRange(func(loL uint64, loE int64, hiL uint64, hiE int64) bool {
		count++
		return false
	})
	require.Equal(t, 1, count)
}

func TestInvalidRangeRejected(t *testing.T) {
	rs := position.New()
	err := rs.AddOpenClosed(5, 0, 2, 0)
	require.ErrorIs(t, err, position.ErrInvalidRange)
}
