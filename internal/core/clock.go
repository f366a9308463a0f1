package core

import "sync/atomic"

// LamportClock is the author-local monotonically increasing counter stamped
// on every locally authored envelope.
//
// It orders one author's own history; it is never the cross-device conflict
// tie-break (that is the payload's application timestamp). Observing peer
// values keeps local stamps ahead of everything this device has seen.
//
// Thread-safety: safe for concurrent use (atomic operations), though the
// core's serialized mutation boundary means one goroutine typically drives
// it.
type LamportClock struct {
	counter atomic.Uint64
}

// NewLamportClock creates a clock starting at 0; the first Next returns 1.
func NewLamportClock() *LamportClock {
	return &LamportClock{}
}

// NewLamportClockAt creates a clock resumed at a specific value.
// Used on startup to continue from the highest stamp in the envelope log.
func NewLamportClockAt(start uint64) *LamportClock {
	c := &LamportClock{}
	c.counter.Store(start)
	return c
}

// Next returns the next stamp and advances the clock.
func (c *LamportClock) Next() uint64 {
	return c.counter.Add(1)
}

// Observe folds a peer's stamp into the clock: the counter never falls
// behind any value seen on the network.
func (c *LamportClock) Observe(peer uint64) {
	for {
		cur := c.counter.Load()
		if peer <= cur {
			return
		}
		if c.counter.CompareAndSwap(cur, peer) {
			return
		}
	}
}

// Current returns the current stamp without advancing.
func (c *LamportClock) Current() uint64 {
	return c.counter.Load()
}
