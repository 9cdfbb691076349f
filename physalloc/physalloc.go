// Package physalloc describes the contract this memory space needs from
// the physical-frame allocator. The allocator itself — a buddy-style
// free list over physical frames — is explicitly out of scope; only the
// contract and a fake useful for tests live here.
package physalloc

import (
	"fmt"
	"sync"

	"memspace/kerr"
)

// PageSize is the size in bytes of one physical frame. Production kernels
// fix this at the architecture's page size (4096 on x86-64); tests may
// use a smaller layout via memspace.Config.
const PageSize = 4096

// Frame is an opaque handle to one page-sized physical region: a memory
// space never performs arithmetic on a Frame, only compares and copies
// it.
type Frame uintptr

// Zero is the sentinel "no frame" value.
const Zero Frame = 0

// Zone selects which physical memory zone an allocation should come
// from.
type Zone int

const (
	// ZoneUser is ordinary user-reachable memory.
	ZoneUser Zone = iota
	// ZoneKernel is reserved for kernel-private allocations.
	ZoneKernel
)

// Allocator is the contract this package needs from the physical-frame
// allocator: allocate and free order-0 (single page) frames.
type Allocator interface {
	// Alloc reserves one frame of 2^order contiguous pages from zone.
	Alloc(order int, zone Zone) (Frame, error)
	// Free releases a frame previously returned by Alloc.
	Free(f Frame, order int)
}

// FakeAllocator is a bump/free-list allocator sufficient for tests and
// for the cmd/memspacedemo walkthrough. It is not a production
// allocator — a real one is out of scope here.
type FakeAllocator struct {
	mu       sync.Mutex
	next     Frame
	free     []Frame
	failNext bool
}

// NewFakeAllocator returns an allocator that hands out frames starting at
// base, one PageSize apart.
func NewFakeAllocator(base Frame) *FakeAllocator {
	if base == Zero {
		base = Frame(PageSize)
	}
	return &FakeAllocator{next: base}
}

// Alloc implements Allocator.
func (a *FakeAllocator) Alloc(order int, _ Zone) (Frame, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if order != 0 {
		panic(fmt.Sprintf("physalloc: unsupported order %d", order))
	}
	if a.failNext {
		a.failNext = false
		return Zero, kerr.ErrAlloc
	}
	if n := len(a.free); n > 0 {
		f := a.free[n-1]
		a.free = a.free[:n-1]
		return f, nil
	}
	f := a.next
	a.next += PageSize
	return f, nil
}

// Free implements Allocator.
func (a *FakeAllocator) Free(f Frame, order int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if order != 0 {
		panic(fmt.Sprintf("physalloc: unsupported order %d", order))
	}
	a.free = append(a.free, f)
}

// InjectFailure makes the next Alloc call return kerr.ErrAlloc, for
// exercising frame-allocation failure paths deterministically.
func (a *FakeAllocator) InjectFailure() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failNext = true
}
