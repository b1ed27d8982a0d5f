package testutil

import "sync"

// DeterministicClock hands out the ordering values of hand-written records:
// creation indices counting from 1, and timestamps step seconds apart
// starting one step after start.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	seq   int64
	start float64
	step  float64
}

// NewDeterministicClock creates a clock at index 0. A non-positive step
// uses one second.
func NewDeterministicClock(start, step float64) *DeterministicClock {
	if step <= 0 {
		step = 1
	}
	return &DeterministicClock{start: start, step: step}
}

// Next advances the clock and returns the new creation index and its
// timestamp.
func (c *DeterministicClock) Next() (int64, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq, c.start + float64(c.seq)*c.step
}

// Current returns the last index handed out without advancing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock so the next call to Next returns index 1 again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
