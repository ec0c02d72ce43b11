package instant

import "sync/atomic"

// Clock implements CP-1: monotonic logical clock for trace ordering.
//
// All trace events are stamped with a strictly increasing seq number from
// this clock. This ensures:
// - Deterministic ordering (no wall-clock race conditions)
// - Re-execution produces identical order
// - Causal relationships are explicit
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// However, the Runtime's single-writer design means only one goroutine
// typically calls Next().
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
// Used to continue a trace from the last recorded position.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
// Useful for querying the clock's position (e.g., for checkpointing).
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
