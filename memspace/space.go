// Package memspace is the public façade a process uses to map, unmap,
// fork, re-protect and fault-resolve its virtual address space. Its
// locking and binding idiom follows an embedded mutex guarding a
// page-table context plus a region descriptor.
package memspace

import (
	"fmt"
	"strings"
	"sync"

	"memspace/kerr"
	"memspace/pagetable"
	"memspace/physalloc"
	"memspace/prc"
	"memspace/region"
	"memspace/vmstate"
)

// Config is the per-space layout and backing wiring. Exposing it as a
// value rather than hard-coded constants lets tests run a whole address
// space against a much smaller layout than a real one.
type Config struct {
	// AllocBegin is the lowest address New's initial gap starts at.
	AllocBegin region.Addr
	// ProcessEnd is the address one past the highest address a Fixed
	// constraint or brk growth may ever reach.
	ProcessEnd region.Addr
	// Alloc is the physical frame allocator backing every Anonymous
	// residence this space creates internally (brk growth, MapStack).
	Alloc physalloc.Allocator
	// Refs is the physical reference counter shared across every memory
	// space in the same process tree, so fork's copy-on-write accounting
	// stays correct across parent and child.
	Refs *prc.Counter
}

// Space is a process's virtual memory space: the indexed gaps and
// mappings of vmstate.State, the heap-top bookkeeping for brk, and the
// page-table context translations are installed into. A Space is safe
// for concurrent use; every operation is serialized behind a single
// mutex. A real process layer would already hold an outer lock around
// these calls; nothing upstream of this package provides one here, so
// the lock lives in Space itself.
type Space struct {
	mu sync.Mutex

	cfg   Config
	state *vmstate.State
	vmem  pagetable.Handle

	brkInit region.Addr
	brkPtr  region.Addr
}

// New returns a Space with a single gap spanning the whole configured
// layout.
func New(cfg Config) (*Space, error) {
	if cfg.ProcessEnd <= cfg.AllocBegin {
		return nil, kerr.ErrInvalidArgument
	}
	size := region.PageCount(uintptr(cfg.ProcessEnd-cfg.AllocBegin) / physalloc.PageSize)
	sp := &Space{
		cfg:   cfg,
		state: vmstate.New(),
		vmem:  pagetable.New(),
	}
	if err := sp.state.InsertGap(region.Gap{Begin: cfg.AllocBegin, Size: size}); err != nil {
		return nil, err
	}
	return sp, nil
}

// VMemUsage returns the number of pages currently mapped.
func (sp *Space) VMemUsage() region.PageCount {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.state.VMemUsage()
}

// Bind installs this space's page-table context as active on the
// calling core.
func (sp *Space) Bind() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.vmem.Bind()
}

// IsBound reports whether this space's page-table context is currently
// active on any core.
func (sp *Space) IsBound() bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.vmem.IsBound()
}

// Mappings calls fn for every mapping in address order, stopping early
// if fn returns false. Exported for introspection tools such as
// memprofile.
func (sp *Space) Mappings(fn func(region.Mapping) bool) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.state.Mappings(fn)
}

// Gaps calls fn for every gap in address order, stopping early if fn
// returns false.
func (sp *Space) Gaps(fn func(region.Gap) bool) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.state.Gaps(fn)
}

// Close releases a memory space that is no longer needed. It panics with
// kerr.Fatal if the space is still bound, treating that as a kernel
// invariant violation rather than a recoverable error.
func (sp *Space) Close() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.vmem.IsBound() {
		panic(kerr.Fatal("memspace: closed while still bound"))
	}
}

// String renders the gaps and mappings in address order, for debugging
// and test failure output.
func (sp *Space) String() string {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	var b strings.Builder
	b.WriteString("{mappings: [")
	first := true
	sp.state.Mappings(func(m region.Mapping) bool {
		if !first {
			b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&b, "%#x+%d(flags=%#x)", uintptr(m.Begin), m.Size, m.Flags)
		return true
	})
	b.WriteString("], gaps: [")
	first = true
	sp.state.Gaps(func(g region.Gap) bool {
		if !first {
			b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&b, "%#x+%d", uintptr(g.Begin), g.Size)
		return true
	})
	b.WriteString("]}")
	return b.String()
}

func alignUp(addr region.Addr, pageSize int) region.Addr {
	rem := uintptr(addr) % uintptr(pageSize)
	if rem == 0 {
		return addr
	}
	return addr + region.Addr(uintptr(pageSize)-rem)
}

func downAlign(addr region.Addr, pageSize int) region.Addr {
	return addr - region.Addr(uintptr(addr)%uintptr(pageSize))
}
