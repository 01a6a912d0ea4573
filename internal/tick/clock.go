// Package tick holds the client's simulation step counter.
package tick

import (
	"sync/atomic"
	"time"
)

// Clock counts physics steps. It advances exactly once per step and never
// goes backwards.
type Clock struct {
	n    atomic.Int64
	step time.Duration
}

// NewClock returns a clock at tick 0 with the given fixed timestep.
func NewClock(step time.Duration) *Clock {
	if step <= 0 {
		step = time.Second / 60
	}
	return &Clock{step: step}
}

// FromRate returns a clock stepping at hz ticks per second.
func FromRate(hz int) *Clock {
	if hz <= 0 {
		hz = 60
	}
	return NewClock(time.Second / time.Duration(hz))
}

func (c *Clock) Now() int64 { return c.n.Load() }

// Advance moves to the next tick and returns it.
func (c *Clock) Advance() int64 { return c.n.Add(1) }

// Step is the fixed simulation timestep.
func (c *Clock) Step() time.Duration { return c.step }

// StepSeconds is Step in seconds, for integrators.
func (c *Clock) StepSeconds() float64 { return c.step.Seconds() }

// SimTime is the simulation timestamp of tick t. Replayed ticks use it to
// back-date physics hooks to when the step would have run.
func (c *Clock) SimTime(t int64) time.Duration {
	return time.Duration(t) * c.step
}

// Behind reports how many ticks lie between a server-observed client tick and
// now. Unknown (negative) or future ticks yield 0.
func (c *Clock) Behind(observed int64) int64 {
	if observed < 0 {
		return 0
	}
	now := c.Now()
	if observed >= now {
		return 0
	}
	return now - observed
}
