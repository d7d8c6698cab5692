package trace

import "sync/atomic"

// Sequencer hands out strictly increasing sequence numbers.
// Implemented by Clock and testutil.DeterministicClock.
type Sequencer interface {
	Next() int64
}

// Clock is a monotonic logical clock.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after start, e.g. after reading the
// last recorded seq from a store.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number. Each call returns a unique,
// increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
