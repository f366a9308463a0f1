package testutil

import "sync"

// WallClock provides a thread-safe, manually advanced wall clock for tests.
//
// Events carry unix-second timestamps; tests need those to be stable across
// runs, so the clock only moves when the test says so.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type WallClock struct {
	mu  sync.Mutex
	now int64
}

// NewWallClock creates a clock frozen at the given unix time.
func NewWallClock(start int64) *WallClock {
	return &WallClock{now: start}
}

// Now returns the current unix time without advancing.
func (c *WallClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by delta seconds and returns the new time.
func (c *WallClock) Advance(delta int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += delta
	return c.now
}

// Tick advances by one second and returns the new time.
//
// Convenient for tests that need strictly increasing timestamps.
func (c *WallClock) Tick() int64 {
	return c.Advance(1)
}

// Set jumps the clock to an absolute unix time.
//
// Used for test reuse; Set does not have to move forward.
func (c *WallClock) Set(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
