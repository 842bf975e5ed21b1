package parallel

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRanges(t *testing.T) {
	tests := []struct {
		name    string
		items   int
		workers int
		want    [][2]int
	}{
		{"empty", 0, 4, nil},
		{"fewer items than workers", 2, 4, [][2]int{{0, 1}, {1, 2}}},
		{"even", 6, 3, [][2]int{{0, 2}, {2, 4}, {4, 6}}},
		{"uneven", 7, 3, [][2]int{{0, 3}, {3, 6}, {6, 7}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ranges(tt.items, tt.workers))
		})
	}
}

func TestParallelizeCoversAllItems(t *testing.T) {
	const n = 1000
	seen := make([]int32, n)
	Parallelize(n, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
	})
	for i, c := range seen {
		require.Equal(t, int32(1), c, "item %d", i)
	}
}

func TestParallelizeWithThreshold(t *testing.T) {
	var calls atomic.Int32
	ParallelizeWithThreshold(10, 100, func(start, end int) {
		calls.Add(1)
		assert.Equal(t, 0, start)
		assert.Equal(t, 10, end)
	})
	assert.Equal(t, int32(1), calls.Load())

	calls.Store(0)
	ParallelizeWithThreshold(0, 100, func(int, int) { calls.Add(1) })
	assert.Zero(t, calls.Load())
}

func TestParallelizeErr(t *testing.T) {
	err := ParallelizeErr(100, func(start, end int) error {
		if start == 0 {
			return errors.New("first range failed")
		}
		return nil
	})
	assert.EqualError(t, err, "first range failed")

	err = ParallelizeErr(10, func(int, int) error { panic("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
