package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockPartition(t *testing.T) {
	// GIVEN 8 components over 2 ranks x 2 threads
	p := BlockPartition(8, 2, 2)

	// THEN each worker gets a contiguous block of 2
	want := []Placement{
		{0, 0}, {0, 0}, {0, 1}, {0, 1},
		{1, 0}, {1, 0}, {1, 1}, {1, 1},
	}
	for i, w := range want {
		got, ok := p.Lookup(ComponentID(i))
		require.True(t, ok, "component %d", i)
		assert.Equal(t, w, got, "component %d", i)
	}
	assert.Equal(t, []ComponentID{4, 5, 6, 7}, p.Local(1))
	assert.Equal(t, 2, p.NProc())
	assert.Equal(t, 2, p.NThread())
}

func TestBlockPartition_MoreWorkersThanComponents(t *testing.T) {
	p := BlockPartition(2, 2, 2)
	a, _ := p.Lookup(0)
	b, _ := p.Lookup(1)
	assert.Equal(t, Placement{0, 0}, a)
	assert.Equal(t, Placement{1, 0}, b)
}

func TestPartition_Assign(t *testing.T) {
	p := NewPartition(2, 3)
	require.NoError(t, p.Assign(10, 1, 2))
	pl, ok := p.Lookup(10)
	assert.True(t, ok)
	assert.Equal(t, Placement{Rank: 1, Thread: 2}, pl)

	assert.Error(t, p.Assign(11, 2, 0), "rank out of range")
	assert.Error(t, p.Assign(11, 0, 3), "thread out of range")
	assert.Error(t, p.Assign(11, -1, 0), "negative rank")
	_, ok = p.Lookup(11)
	assert.False(t, ok)
}

func TestNewPartition_PanicsOnEmpty(t *testing.T) {
	assert.Panics(t, func() { NewPartition(0, 1) })
	assert.Panics(t, func() { NewPartition(1, 0) })
}
