package position_test

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"

	"github.com/cognitree/pulsar/pkg/position"
)

// assertRanges fails the test with a readable diff (and a full spew dump
// for anything cmp can't render nicely) when got != want.
func assertRanges(t *testing.T, got, want []position.Interval) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ranges mismatch (-want +got):\n%s\ngot dump:\n%s", diff, spew.Sdump(got))
	}
}
