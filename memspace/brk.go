package memspace

import (
	"memspace/abi"
	"memspace/kerr"
	"memspace/physalloc"
	"memspace/region"
	"memspace/residence"
)

// GetBrkPtr returns the current top-of-heap pointer.
func (sp *Space) GetBrkPtr() region.Addr {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.brkPtr
}

// SetBrkInit records the initial top-of-heap pointer. It must be called
// exactly once, before the process runs, with a page-aligned ptr.
func (sp *Space) SetBrkInit(ptr region.Addr) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if uintptr(ptr)%physalloc.PageSize != 0 {
		panic(kerr.Fatal("memspace: SetBrkInit requires a page-aligned pointer"))
	}
	sp.brkInit = ptr
	sp.brkPtr = ptr
}

// SetBrkPtr moves the top-of-heap pointer to ptr, mapping or unmapping
// whole pages as needed. Growing maps Anonymous|WRITE|USER pages from the
// page after the current (possibly sub-page) top up to ptr; shrinking
// unmaps whole pages from the page after the new top up to the old one,
// with brk's gap-suppressing semantics so the heap area never
// fragments into a gap while still in use.
func (sp *Space) SetBrkPtr(ptr region.Addr) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if ptr >= sp.brkPtr {
		if ptr > sp.cfg.ProcessEnd {
			return kerr.ErrInvalidArgument
		}
		begin := alignUp(sp.brkPtr, physalloc.PageSize)
		var pages region.PageCount
		if begin < ptr {
			pages = region.PageCount(ceilDiv(uintptr(ptr)-uintptr(begin), physalloc.PageSize))
		}
		if pages > 0 {
			flags := abi.WRITE | abi.USER
			res := residence.NewAnonymous(sp.cfg.Alloc, sp.cfg.Refs)
			if _, err := sp.mapLocked(FixedAt(begin), pages, flags, res); err != nil {
				return err
			}
		}
	} else {
		if ptr < sp.brkInit {
			return kerr.ErrInvalidArgument
		}
		// The range that must be freed is [align_up(ptr), old brk_ptr):
		// computing it from the new pointer alone would degenerate to
		// zero pages whenever ptr is already page-aligned and never
		// actually free anything, so the old top is used instead.
		begin := alignUp(ptr, physalloc.PageSize)
		var pages region.PageCount
		if begin < sp.brkPtr {
			pages = region.PageCount(ceilDiv(uintptr(sp.brkPtr)-uintptr(begin), physalloc.PageSize))
		}
		if pages > 0 {
			if err := sp.unmapLocked(begin, pages, true); err != nil {
				return err
			}
		}
	}
	sp.brkPtr = ptr
	return nil
}

func ceilDiv(n uintptr, d int) uintptr {
	return (n + uintptr(d) - 1) / uintptr(d)
}
