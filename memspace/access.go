package memspace

import (
	"memspace/abi"
	"memspace/kerr"
	"memspace/oom"
	"memspace/physalloc"
	"memspace/region"
)

// CanAccess reports whether the size-byte range beginning at ptr is
// entirely covered by mappings satisfying the user/write requirements.
// It walks mapping by mapping rather than page by page.
func (sp *Space) CanAccess(ptr region.Addr, size uint, user, write bool) bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	i := uint(0)
	for i < size {
		p := region.Addr(uintptr(ptr) + uintptr(i))
		m, ok := sp.state.GetMappingForAddr(p)
		if !ok {
			return false
		}
		if write && !m.Flags.Has(abi.WRITE) {
			return false
		}
		if user && !m.Flags.Has(abi.USER) {
			return false
		}
		i = uint(uintptr(m.End()) - uintptr(ptr))
	}
	return true
}

// ByteReader reads one byte of process memory at addr once the caller
// has already established that the address is mapped and authorized.
// This package has no physical memory content of its own to read — the
// physical-frame allocator is a contract only — so CanAccessString takes
// the read as a callback rather than dereferencing a pointer directly.
type ByteReader func(addr region.Addr) (byte, error)

// CanAccessString walks the NUL-terminated string beginning at ptr,
// re-authorizing the covering mapping every time the walk crosses a page
// boundary, and returns its length (not including the terminator). It
// fails with kerr.ErrNoMapping if an unmapped page is reached before a
// NUL byte, kerr.ErrPermission if a page's mapping does not grant the
// requested user/write access, or kerr.ErrNameTooLong if maxLen bytes
// are read without finding one.
func (sp *Space) CanAccessString(ptr region.Addr, user, write bool, maxLen int, read ByteReader) (int, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	n := 0
	for {
		curr := region.Addr(uintptr(ptr) + uintptr(n))
		m, ok := sp.state.GetMappingForAddr(curr)
		if !ok {
			return 0, kerr.ErrNoMapping
		}
		if write && !m.Flags.Has(abi.WRITE) {
			return 0, kerr.ErrPermission
		}
		if user && !m.Flags.Has(abi.USER) {
			return 0, kerr.ErrPermission
		}
		pageBegin := downAlign(curr, physalloc.PageSize)
		checkSize := physalloc.PageSize - int(uintptr(curr)-uintptr(pageBegin))
		for j := 0; j < checkSize; j++ {
			if maxLen >= 0 && n >= maxLen {
				return 0, kerr.ErrNameTooLong
			}
			b, err := read(region.Addr(uintptr(ptr) + uintptr(n)))
			if err != nil {
				return 0, err
			}
			if b == 0 {
				return n, nil
			}
			n++
		}
	}
}

// Alloc eagerly materializes the backing frames for every page a
// [ptr, ptr+nbytes) write would touch, for callers about to copy into
// user memory outside of the normal fault path. Bytes outside of any
// mapping are silently skipped.
func (sp *Space) Alloc(ptr region.Addr, nbytes int) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if nbytes <= 0 {
		return nil
	}
	end := uintptr(ptr) + uintptr(nbytes)
	for a := uintptr(downAlign(ptr, physalloc.PageSize)); a < end; a += physalloc.PageSize {
		addr := region.Addr(a)
		if m, ok := sp.state.GetMappingForAddr(addr); ok {
			idx := m.PageOffsetFor(addr)
			if err := oom.Wrap(func() error { return m.EnsurePage(idx) }); err != nil {
				return err
			}
		}
	}
	return nil
}
