// Package prc implements the physical reference counter: a
// mutex-guarded map from physical frame to a positive reference count,
// held in a Counter value rather than a package-level global (memory
// spaces share one by being given the same *Counter in memspace.Config),
// in the spirit of a Refaddr/Refup/Refdown family, narrowed to exactly
// the small contract a memory space needs — per-CPU free lists and pmap
// refcounts belong to the physical allocator, which this subsystem takes
// only as a contract.
package prc

import (
	"sync"

	"memspace/physalloc"
)

// Counter is a physical reference counter. Its zero value is ready to
// use. A Counter is safe for concurrent use.
type Counter struct {
	mu     sync.Mutex
	counts map[physalloc.Frame]uint32
}

// NewCounter returns an empty Counter.
func NewCounter() *Counter {
	return &Counter{counts: make(map[physalloc.Frame]uint32)}
}

// Increment records one more reference to f. The error return exists to
// match call sites that already handle an allocation failure here
// (residence.allocFresh); in Go terms this can never actually fail (map
// growth panics rather than erroring), so Increment always succeeds.
func (c *Counter) Increment(f physalloc.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[physalloc.Frame]uint32)
	}
	c.counts[f]++
	return nil
}

// Decrement removes one reference to f. It has no effect if f has no
// outstanding reference; the entry is removed once the count reaches
// zero.
func (c *Counter) Decrement(f physalloc.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.counts[f]
	if !ok {
		return
	}
	if n <= 1 {
		delete(c.counts, f)
		return
	}
	c.counts[f] = n - 1
}

// CanFree reports whether f has no outstanding reference remaining.
func (c *Counter) CanFree(f physalloc.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.counts[f]
	return !ok
}

// Count returns the current reference count of f, for tests asserting on
// copy-on-write fork behavior. It returns 0 for a frame with no
// outstanding reference.
func (c *Counter) Count(f physalloc.Frame) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[f]
}
