package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLimit = ^uint64(0) - 16

func TestFilter_AcceptsFreshCounters(t *testing.T) {
	f := New(DefaultWindow)
	for c := uint64(1); c <= 100; c++ {
		assert.True(t, f.Check(c, testLimit), "counter %d should pass check", c)
		assert.True(t, f.Update(c, testLimit), "counter %d should be accepted", c)
	}
	assert.Equal(t, uint64(100), f.Last())
}

func TestFilter_RejectsDuplicates(t *testing.T) {
	f := New(DefaultWindow)
	require.True(t, f.Update(5, testLimit))
	assert.False(t, f.Check(5, testLimit))
	assert.False(t, f.Update(5, testLimit))
}

func TestFilter_RejectsDuplicateAfterManyAccepts(t *testing.T) {
	f := New(DefaultWindow)
	require.True(t, f.Update(10, testLimit))
	for c := uint64(11); c < 500; c++ {
		require.True(t, f.Update(c, testLimit))
	}
	// still inside the window, still a duplicate
	assert.False(t, f.Update(10, testLimit))
}

func TestFilter_ToleratesReordering(t *testing.T) {
	f := New(DefaultWindow)
	for _, c := range []uint64{3, 1, 2} {
		assert.True(t, f.Update(c, testLimit), "reordered counter %d", c)
	}
	// each accepted exactly once
	for _, c := range []uint64{1, 2, 3} {
		assert.False(t, f.Update(c, testLimit), "second delivery of %d", c)
	}
}

func TestFilter_RejectsBelowWindow(t *testing.T) {
	f := New(DefaultWindow)
	top := f.Window() + 1000
	require.True(t, f.Update(top, testLimit))
	assert.False(t, f.Check(top-f.Window()-1, testLimit), "counter below window lower bound")
	assert.False(t, f.Update(top-f.Window()-1, testLimit))
	// lower edge of the window is still acceptable
	assert.True(t, f.Update(top-f.Window(), testLimit))
}

func TestFilter_WindowShiftClearsOldBits(t *testing.T) {
	f := New(DefaultWindow)
	require.True(t, f.Update(1, testLimit))
	// jump far beyond the ring so every block is cleared
	jump := uint64(len(f.ring))*64*3 + 7
	require.True(t, f.Update(jump, testLimit))
	assert.Equal(t, jump, f.Last())
	// counters just behind the new top occupy cleared blocks
	assert.True(t, f.Update(jump-1, testLimit))
	assert.True(t, f.Update(jump-63, testLimit))
}

func TestFilter_RejectsAtLimit(t *testing.T) {
	f := New(DefaultWindow)
	assert.False(t, f.Check(testLimit, testLimit))
	assert.False(t, f.Update(testLimit, testLimit))
	assert.True(t, f.Update(testLimit-1, testLimit))
}

func TestFilter_CheckDoesNotMutate(t *testing.T) {
	f := New(DefaultWindow)
	require.True(t, f.Check(42, testLimit))
	require.True(t, f.Check(42, testLimit), "check must not consume the slot")
	assert.Equal(t, uint64(0), f.Last(), "check must not advance top")
	require.True(t, f.Update(42, testLimit))
	assert.Equal(t, uint64(42), f.Last())
}

func TestFilter_Reset(t *testing.T) {
	f := New(DefaultWindow)
	for c := uint64(1); c <= 64; c++ {
		require.True(t, f.Update(c, testLimit))
	}
	f.Reset()
	assert.Equal(t, uint64(0), f.Last())
	for c := uint64(1); c <= 64; c++ {
		assert.True(t, f.Update(c, testLimit), "counter %d after reset", c)
	}
}

func TestNew_WindowSizing(t *testing.T) {
	tests := []struct {
		name      string
		requested uint64
		minWindow uint64
	}{
		{"tiny", 1, 64},
		{"default", DefaultWindow, DefaultWindow},
		{"odd", 1000, 1000},
		{"large", 100000, 100000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.requested)
			assert.GreaterOrEqual(t, f.Window(), tt.minWindow)
			// power-of-two ring
			n := len(f.ring)
			assert.Zero(t, n&(n-1), "ring size %d not a power of two", n)
		})
	}
}
