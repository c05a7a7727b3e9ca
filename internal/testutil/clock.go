// Package testutil provides deterministic clocks and id generators for tests.
package testutil

import (
	"sync"
	"time"
)

// Clock is a manually advanced wall clock for tests.
//
// Timers and windows driven by Clock.Now behave identically across runs,
// which keeps rate-limit and timeout tests free of real sleeps.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock pinned to a fixed, arbitrary epoch.
func NewClock() *Clock {
	return &Clock{now: time.UnixMilli(1700000000000)}
}

// NewClockAt creates a clock pinned to the given time.
func NewClockAt(at time.Time) *Clock {
	return &Clock{now: at}
}

// Now returns the current pinned time. Pass the method value as a bus or
// client time source: bus.WithNow(clk.Now).
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
