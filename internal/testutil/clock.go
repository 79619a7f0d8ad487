package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start of a FixedClock.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// FixedClock is a manually advanced time source for tests.
//
// Unlike engine.SteppingClock, FixedClock does not move on its own and can
// be reset for test reuse.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a clock reading start. A zero start reads Epoch.
func NewFixedClock(start time.Time) *FixedClock {
	if start.IsZero() {
		start = Epoch
	}
	return &FixedClock{now: start.UTC()}
}

// Now returns the current time without advancing.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *FixedClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Reset puts the clock back to Epoch.
func (c *FixedClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = Epoch
}
