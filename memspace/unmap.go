package memspace

import (
	"memspace/abi"
	"memspace/kerr"
	"memspace/physalloc"
	"memspace/region"
	"memspace/residence"
	"memspace/vmstate"
)

// Unmap releases size pages beginning at ptr, freeing their backing
// frames unless shared by another mapping, and returns the freed range
// to the gap indices.
func (sp *Space) Unmap(ptr region.Addr, size region.PageCount) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.unmapLocked(ptr, size, false)
}

func (sp *Space) unmapLocked(ptr region.Addr, size region.PageCount, brk bool) error {
	if uintptr(ptr)%physalloc.PageSize != 0 {
		return kerr.ErrInvalidArgument
	}
	txn := vmstate.Begin(sp.state)
	freed, err := sp.unmapImpl(txn, ptr, size, brk)
	if err != nil {
		return err
	}
	txn.AddVMemUsage(-int(freed))
	txn.Commit()
	return nil
}

// MapStack is Map specialized for a stack: the caller supplies no
// residence or constraint, and the returned address is the top (high
// end) of the mapping rather than its base, matching how a stack pointer
// is initialized.
func (sp *Space) MapStack(size region.PageCount, flags abi.Flag) (region.Addr, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	begin, err := sp.mapLocked(AnyAddress(), size, flags, residence.NewAnonymous(sp.cfg.Alloc, sp.cfg.Refs))
	if err != nil {
		return 0, err
	}
	return begin.Add(size, physalloc.PageSize), nil
}

// UnmapStack is Unmap specialized for a stack mapping: ptr is the top of
// the mapping, as returned by MapStack.
func (sp *Space) UnmapStack(ptr region.Addr, size region.PageCount) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	begin := region.Addr(uintptr(ptr) - uintptr(size)*physalloc.PageSize)
	return sp.unmapLocked(begin, size, false)
}
