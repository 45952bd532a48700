package dispatcherr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cognitree/pulsar/pkg/dispatcherr"
)

func TestIsMatchesKind(t *testing.T) {
	err := dispatcherr.New(dispatcherr.Transport, "SendMessages", errors.New("boom"))
	require.True(t, dispatcherr.Is(err, dispatcherr.Transport))
	require.False(t, dispatcherr.Is(err, dispatcherr.NotReady))
}

func TestInvariantCarriesStack(t *testing.T) {
	err := dispatcherr.Invariant("RangeSet.AddOpenClosed", errors.New("overlap"))
	require.True(t, dispatcherr.Is(err, dispatcherr.InvariantViolation))
	require.Contains(t, err.Error(), "overlap")
	// %+v on a github.com/pkg/errors stack-carrying error prints its frames
	// as file:line; a plain error prints only its message.
	require.Contains(t, fmt.Sprintf("%+v", err.Err), ".go:")
}
