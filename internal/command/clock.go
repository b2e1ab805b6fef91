package command

import "sync/atomic"

// Clock is the monotonic logical clock stamping command submissions.
//
// Every submitted command receives a strictly increasing seq, which is the
// deterministic tie-break between equal-priority commands in a tick and
// the order key of the persisted log. Never order by wall-clock time.
//
// Thread-safety: atomic, so AI workers and input handlers may submit from
// elsewhere and hand off to the simulation goroutine.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0; the first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming from a known sequence number, used
// when replaying a persisted log.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// AdvanceTo moves the clock forward to seq if it is behind, so sequence
// numbers issued after loading a save never collide with persisted ones.
// Moving backward is not possible.
func (c *Clock) AdvanceTo(seq int64) {
	for {
		cur := c.seq.Load()
		if cur >= seq || c.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}

// Next returns the next sequence number and advances the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the latest issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
