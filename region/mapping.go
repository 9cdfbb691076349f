package region

import (
	"memspace/abi"
	"memspace/kerr"
	"memspace/pagetable"
	"memspace/physalloc"
	"memspace/prc"
	"memspace/residence"
)

// Mapping is a contiguous, page-aligned used range: a begin address, a
// page count, permission flags, and the Residence describing where its
// frames come from and how they're freed.
type Mapping struct {
	Begin     Addr
	Size      PageCount
	Flags     abi.Flag
	Residence residence.Residence
	VMem      pagetable.Handle
}

// End returns the address immediately past the mapping.
func (m Mapping) End() Addr {
	return m.Begin.Add(m.Size, physalloc.PageSize)
}

// Contains reports whether addr falls within [Begin, End).
func (m Mapping) Contains(addr Addr) bool {
	return addr >= m.Begin && addr < m.End()
}

// PageOffsetFor returns the page index of addr within the mapping. The
// caller must have already established m.Contains(addr).
func (m Mapping) PageOffsetFor(addr Addr) PageIndex {
	return PageIndex((addr - m.Begin) / Addr(physalloc.PageSize))
}

func (m Mapping) addrOf(i PageIndex) pagetable.Addr {
	return pagetable.Addr(m.Begin.Add(PageCount(i), physalloc.PageSize))
}

func (m Mapping) residenceAt(i PageIndex) residence.Residence {
	return m.Residence.OffsetAdd(residence.PageSize(i))
}

// EnsurePage materializes the backing frame for page i if it is not
// already installed, then installs it in the page-table context with the
// mapping's full logical flags. It is named EnsurePage rather than Map
// because Go reserves map as a keyword.
func (m Mapping) EnsurePage(i PageIndex) error {
	if _, _, ok := m.VMem.Lookup(m.addrOf(i)); ok {
		return nil
	}
	frame, err := m.residenceAt(i).AllocPage(0)
	if err != nil {
		return err
	}
	return m.VMem.Map(m.addrOf(i), frame, m.Flags)
}

// Resync re-syncs the hardware mapping for page i from the mapping's
// current flags, leaving the installed frame untouched. It is a no-op if
// page i has no installed frame. Used after set_prot, via ResyncRange;
// Fork installs its translations directly and does not call it.
func (m Mapping) Resync(i PageIndex) error {
	frame, _, ok := m.VMem.Lookup(m.addrOf(i))
	if !ok {
		return nil
	}
	return m.VMem.Map(m.addrOf(i), frame, m.Flags)
}

// PartialUnmap cuts the window [offset, offset+count) out of the
// mapping, returning up to two surviving fragments and the gap the freed
// middle becomes. Frames inside the cut window are released via the
// residence's FreePage policy.
func (m Mapping) PartialUnmap(offset, count PageCount) (prev *Mapping, gap *Gap, next *Mapping) {
	if uintptr(offset)+uintptr(count) > uintptr(m.Size) {
		panic("region: PartialUnmap out of bounds")
	}
	if offset > 0 {
		prev = &Mapping{
			Begin:     m.Begin,
			Size:      offset,
			Flags:     m.Flags,
			Residence: m.Residence,
			VMem:      m.VMem,
		}
	}
	for i := PageCount(0); i < count; i++ {
		idx := PageIndex(offset + i)
		addr := m.addrOf(idx)
		frame, _, ok := m.VMem.Lookup(addr)
		if !ok {
			continue
		}
		_ = m.VMem.Unmap(addr)
		m.residenceAt(idx).FreePage(0, frame)
	}
	tailSize := m.Size - offset - count
	if tailSize > 0 {
		next = &Mapping{
			Begin:     m.Begin.Add(offset+count, physalloc.PageSize),
			Size:      tailSize,
			Flags:     m.Flags,
			Residence: m.Residence.OffsetAdd(residence.PageSize(offset + count)),
			VMem:      m.VMem,
		}
	}
	if count > 0 {
		gap = &Gap{Begin: m.Begin.Add(offset, physalloc.PageSize), Size: count}
	}
	return prev, gap, next
}

// ResolveFault services a page fault against page i. If the page has
// never been touched, it materializes the backing frame exactly as
// EnsurePage does. If the page is already present and the fault is a
// write against an installed translation that lost its WRITE bit during
// Fork while the mapping's logical flags still permit writing, this is
// the copy-on-write case: a sole owner (refcount 1) is upgraded to
// writable in place, otherwise a fresh private frame replaces the shared
// one and the old frame's local reference is dropped.
func (m Mapping) ResolveFault(i PageIndex, refs *prc.Counter, write bool) error {
	addr := m.addrOf(i)
	frame, flags, ok := m.VMem.Lookup(addr)
	if !ok {
		return m.EnsurePage(i)
	}
	if !write || flags.Has(abi.WRITE) {
		return nil
	}
	if !m.Flags.Has(abi.WRITE) {
		return kerr.ErrPermission
	}
	if refs.Count(frame) <= 1 {
		return m.VMem.Map(addr, frame, m.Flags)
	}
	fresh, err := m.residenceAt(i).AllocPage(0)
	if err != nil {
		return err
	}
	refs.Decrement(frame)
	return m.VMem.Map(addr, fresh, m.Flags)
}

// SplitForProt carves the window [offset, offset+count) out of the
// mapping for set_prot, returning up to two untouched fragments and a
// middle fragment with newFlags applied. Unlike PartialUnmap, no frame is
// ever freed. The middle fragment's already-installed pages still carry
// the old flags in the page-table context at this point; the caller must
// call ResyncRange on it once every mapping touched by the same set_prot
// call has been staged successfully, so a failure partway through a
// multi-mapping range never leaves some PTEs re-flagged while the
// mapping index rolls back.
func (m Mapping) SplitForProt(offset, count PageCount, newFlags abi.Flag) (prev *Mapping, mid Mapping, next *Mapping) {
	if uintptr(offset)+uintptr(count) > uintptr(m.Size) {
		panic("region: SplitForProt out of bounds")
	}
	if offset > 0 {
		prev = &Mapping{
			Begin:     m.Begin,
			Size:      offset,
			Flags:     m.Flags,
			Residence: m.Residence,
			VMem:      m.VMem,
		}
	}
	mid = Mapping{
		Begin:     m.Begin.Add(offset, physalloc.PageSize),
		Size:      count,
		Flags:     newFlags,
		Residence: m.Residence.OffsetAdd(residence.PageSize(offset)),
		VMem:      m.VMem,
	}
	tailSize := m.Size - offset - count
	if tailSize > 0 {
		next = &Mapping{
			Begin:     m.Begin.Add(offset+count, physalloc.PageSize),
			Size:      tailSize,
			Flags:     m.Flags,
			Residence: m.Residence.OffsetAdd(residence.PageSize(offset + count)),
			VMem:      m.VMem,
		}
	}
	return prev, mid, next
}

// ResyncRange re-syncs every already-installed page of the mapping's
// first count pages with its current flags, so the page-table context
// reflects a set_prot change immediately rather than waiting for the
// next fault.
func (m Mapping) ResyncRange(count PageCount) error {
	for idx := PageIndex(0); idx < PageIndex(count); idx++ {
		if err := m.Resync(idx); err != nil {
			return err
		}
	}
	return nil
}

// Fork duplicates the mapping to point at newVMem. Private mappings
// become copy-on-write: the child inherits the parent's already-present
// frames with their reference count incremented, and both the parent's
// and child's installed translations lose their WRITE bit so the next
// write fault on either side triggers the COW duplication in
// memspace.Space.HandlePageFault. Shared mappings hand the child the
// same frames, with incremented reference counts, but no write
// protection.
func (m Mapping) Fork(newVMem pagetable.Handle, refs *prc.Counter) (*Mapping, error) {
	child := &Mapping{
		Begin:     m.Begin,
		Size:      m.Size,
		Flags:     m.Flags,
		Residence: m.Residence,
		VMem:      newVMem,
	}
	shared := m.Flags.Has(abi.SHARED)
	for idx := PageIndex(0); idx < PageIndex(m.Size); idx++ {
		addr := m.addrOf(idx)
		frame, flags, ok := m.VMem.Lookup(addr)
		if !ok {
			continue
		}
		if err := refs.Increment(frame); err != nil {
			return nil, err
		}
		installFlags := flags
		if !shared {
			installFlags &^= abi.WRITE
			if err := m.VMem.Map(addr, frame, installFlags); err != nil {
				return nil, err
			}
		}
		if err := newVMem.Map(addr, frame, installFlags); err != nil {
			return nil, err
		}
	}
	return child, nil
}
