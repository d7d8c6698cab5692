// Package testutil holds deterministic stand-ins for the clock and ID
// generator used by trace.Recorder, so scenario runs and golden snapshots
// are byte-identical across executions.
package testutil

import "sync/atomic"

// DeterministicClock is a logical clock that can be rewound, so the same
// scenario replays with identical seq values. It implements trace.Sequencer.
type DeterministicClock struct {
	last atomic.Int64
}

// NewDeterministicClock creates a clock whose first Next returns 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next advances the clock and returns the new seq.
func (d *DeterministicClock) Next() int64 {
	return d.last.Add(1)
}

// Current returns the last seq handed out, 0 before the first Next.
func (d *DeterministicClock) Current() int64 {
	return d.last.Load()
}

// Rewind makes the next call to Next return to+1.
func (d *DeterministicClock) Rewind(to int64) {
	d.last.Store(to)
}

// Reset is Rewind(0).
func (d *DeterministicClock) Reset() {
	d.Rewind(0)
}
