package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClock_StartsAtZero(t *testing.T) {
	clock := NewDeterministicClock(1000, 10)
	assert.Equal(t, int64(0), clock.Current())
}

func TestDeterministicClock_NextIncrementsMonotonically(t *testing.T) {
	clock := NewDeterministicClock(1000, 10)

	seq, ts := clock.Next()
	assert.Equal(t, int64(1), seq)
	assert.Equal(t, 1010.0, ts)

	seq, ts = clock.Next()
	assert.Equal(t, int64(2), seq)
	assert.Equal(t, 1020.0, ts)
	assert.Equal(t, int64(2), clock.Current())
}

func TestDeterministicClock_DefaultStep(t *testing.T) {
	clock := NewDeterministicClock(0, 0)
	_, ts := clock.Next()
	assert.Equal(t, 1.0, ts)
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock(0, 1)
	clock.Next()
	clock.Next()
	clock.Next()
	assert.Equal(t, int64(3), clock.Current())

	clock.Reset()
	assert.Equal(t, int64(0), clock.Current())

	seq, ts := clock.Next()
	assert.Equal(t, int64(1), seq)
	assert.Equal(t, 1.0, ts)
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock(0, 1)
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make([][]int64, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		results[i] = make([]int64, callsPerGoroutine)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				results[idx][j], _ = clock.Next()
			}
		}(i)
	}
	wg.Wait()

	all := make(map[int64]bool)
	for i := range results {
		for _, v := range results[i] {
			require.False(t, all[v], "duplicate value %d", v)
			all[v] = true
		}
	}
	assert.Len(t, all, numGoroutines*callsPerGoroutine)
	assert.Equal(t, int64(numGoroutines*callsPerGoroutine), clock.Current())
}
