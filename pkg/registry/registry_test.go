package registry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cognitree/pulsar/pkg/registry"
)

func TestEffectivePermitsBoundedByBoth(t *testing.T) {
	c := &registry.Consumer{AvailablePermits: 10, UnackedMessages: 8, MaxUnacked: 10}
	require.Equal(t, int32(2), c.EffectivePermits())

	c2 := &registry.Consumer{AvailablePermits: 3, UnackedMessages: 0, MaxUnacked: 10}
	require.Equal(t, int32(3), c2.EffectivePermits())
}

func TestEffectivePermitsNeverNegative(t *testing.T) {
	c := &registry.Consumer{AvailablePermits: 5, UnackedMessages: 20, MaxUnacked: 10}
	require.Equal(t, int32(0), c.EffectivePermits())
}

func TestAddRemoveGet(t *testing.T) {
	r := registry.New()
	require.Nil(t, r.Get("c1"))

	r.Add(&registry.Consumer{Name: "c1", MaxUnacked: 100})
	require.Equal(t, 1, r.Len())
	require.NotNil(t, r.Get("c1"))
	require.Equal(t, []string{"c1"}, r.Names())

	r.Remove("c1")
	require.Equal(t, 0, r.Len())
	require.Nil(t, r.Get("c1"))
}

func TestAddPreservesOrderOnReplace(t *testing.T) {
	r := registry.New()
	r.Add(&registry.Consumer{Name: "c1"})
	r.Add(&registry.Consumer{Name: "c2"})
	r.Add(&registry.Consumer{Name: "c1", MaxUnacked: 50})

	require.Equal(t, []string{"c1", "c2"}, r.Names())
	require.Equal(t, int32(50), r.Get("c1").MaxUnacked)
}

func TestUpdatePermits(t *testing.T) {
	r := registry.New()
	r.Add(&registry.Consumer{Name: "c1"})
	r.UpdatePermits("c1", 5, 2, 10, true)

	c := r.Get("c1")
	require.Equal(t, int32(5), c.AvailablePermits)
	require.Equal(t, int32(2), c.UnackedMessages)
	require.Equal(t, int32(10), c.MaxUnacked)
	require.True(t, c.Blocked)
}
