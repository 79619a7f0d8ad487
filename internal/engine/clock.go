package engine

import (
	"sync/atomic"
	"time"
)

// TimeSource stamps cache accesses. Access times feed the cleanup
// collaborator only; they never influence a resolution result.
type TimeSource interface {
	Now() time.Time
}

// SystemTime reads the wall clock in UTC.
type SystemTime struct{}

// Now implements TimeSource.
func (SystemTime) Now() time.Time {
	return time.Now().UTC()
}

// SteppingClock is a deterministic TimeSource for tests and scenarios.
// The n-th call to Now returns start + n*step, counting from zero.
//
// Thread-safety: SteppingClock is safe for concurrent use (atomic operations).
type SteppingClock struct {
	start time.Time
	step  time.Duration
	calls atomic.Int64
}

// NewSteppingClock creates a clock starting at start.
func NewSteppingClock(start time.Time, step time.Duration) *SteppingClock {
	return &SteppingClock{start: start.UTC(), step: step}
}

// Now returns the next timestamp and advances the clock.
func (c *SteppingClock) Now() time.Time {
	n := c.calls.Add(1) - 1
	return c.start.Add(time.Duration(n) * c.step)
}

// Calls returns how many times Now has been called.
func (c *SteppingClock) Calls() int64 {
	return c.calls.Load()
}
