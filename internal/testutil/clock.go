package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time of a FakeClock.
var Epoch = time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC)

// FakeClock is a manually advanced clock for scheduler tests.
//
// Unlike the system clock it only moves when Advance or Set is called, so a
// test can place timers exactly on, before or after their fire time.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock reading Epoch.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: Epoch}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set moves the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
