package engine

import "sync/atomic"

// SeqSource issues the logical sequence numbers stamped on fact rows and
// KPI snapshots. Implemented by Clock (production) and
// testutil.DeterministicClock (tests).
type SeqSource interface {
	Next() int64
	Current() int64
}

// Clock is a monotonic logical clock. Ordering never uses wall time.
//
// Thread-safety: Clock is safe for concurrent use, though the engine's
// single-writer design means only one goroutine calls Next at a time.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming from a known sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// advanceTo moves clock forward so its next value exceeds seq.
func advanceTo(clock SeqSource, seq int64) {
	if c, ok := clock.(*Clock); ok {
		for {
			cur := c.seq.Load()
			if cur >= seq || c.seq.CompareAndSwap(cur, seq) {
				return
			}
		}
	}
	for clock.Current() < seq {
		clock.Next()
	}
}
