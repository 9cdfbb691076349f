package memspace

import (
	"memspace/abi"
	"memspace/kerr"
	"memspace/klog"
	"memspace/oom"
	"memspace/physalloc"
	"memspace/region"
	"memspace/residence"
	"memspace/vmstate"
)

// Map reserves size pages satisfying c, backs them with res, and returns
// the address of the new mapping. The underlying frames are not
// allocated until first touch unless flags carries abi.NOLAZY.
func (sp *Space) Map(c Constraint, size region.PageCount, flags abi.Flag, res residence.Residence) (region.Addr, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.mapLocked(c, size, flags, res)
}

func (sp *Space) mapLocked(c Constraint, size region.PageCount, flags abi.Flag, res residence.Residence) (region.Addr, error) {
	if size == 0 {
		return 0, kerr.ErrInvalidArgument
	}
	if err := validateConstraint(sp.cfg, c); err != nil {
		return 0, err
	}

	txn := vmstate.Begin(sp.state)

	var gap region.Gap
	var off region.PageCount
	gapIsReal := false

	switch c.kind {
	case constraintFixed:
		freed, err := sp.unmapImpl(txn, c.addr, size, false)
		if err != nil {
			return 0, err
		}
		txn.AddVMemUsage(-int(freed))
		if g, ok := txn.StagedGapForAddr(c.addr); ok {
			// The unmap above staged the freed range as a gap; consume
			// that staged gap so it does not overlap the new mapping.
			txn.DiscardStagedGap(g.Begin)
			gap, off = g, g.PageOffsetFor(c.addr)
		} else if g, ok := sp.state.GetGapForAddr(c.addr); ok {
			gap, off, gapIsReal = g, g.PageOffsetFor(c.addr), true
		} else {
			// Fixed is allowed to synthesize space outside any tracked
			// gap; fabricate one covering exactly the requested range
			// so the consume step below is a no-op.
			gap, off = region.Gap{Begin: c.addr, Size: size}, 0
		}
	case constraintHint:
		if g, ok := sp.state.GetGapForAddr(c.addr); ok {
			o := g.PageOffsetFor(c.addr)
			if uintptr(o)+uintptr(size) <= uintptr(g.Size) {
				gap, off, gapIsReal = g, o, true
			}
		}
		if !gapIsReal {
			g, ok := sp.state.GetGap(size)
			if !ok {
				return 0, kerr.ErrAlloc
			}
			gap, off, gapIsReal = g, 0, true
		}
	default:
		g, ok := sp.state.GetGap(size)
		if !ok {
			return 0, kerr.ErrAlloc
		}
		gap, off, gapIsReal = g, 0, true
	}

	addr := gap.Begin.Add(off, physalloc.PageSize)
	left, right, err := gap.Consume(off, size)
	if err != nil {
		return 0, kerr.ErrAlloc
	}
	if gapIsReal {
		txn.RemoveGap(gap.Begin)
	}
	if left != nil {
		if err := txn.InsertGap(*left); err != nil {
			return 0, err
		}
	}
	if right != nil {
		if err := txn.InsertGap(*right); err != nil {
			return 0, err
		}
	}

	mapping := region.Mapping{Begin: addr, Size: size, Flags: flags, Residence: res, VMem: sp.vmem}
	if err := txn.InsertMapping(mapping); err != nil {
		return 0, err
	}
	txn.AddVMemUsage(int(size))
	txn.Commit()

	if flags.Has(abi.NOLAZY) {
		for i := region.PageIndex(0); i < region.PageIndex(size); i++ {
			if err := oom.Wrap(func() error { return mapping.EnsurePage(i) }); err != nil {
				klog.Warnf("eager map at page %d of %#x: %v", i, uintptr(addr), err)
			}
		}
	}
	return addr, nil
}

// unmapImpl removes every mapping intersecting [ptr, ptr+size) from the
// live state, staging surviving fragments and (unless brk is set) the
// freed gap merged with whatever real or already-staged gaps it now
// touches. It returns the number of pages actually freed, to let the
// caller adjust vmem usage. Walks page by page, skipping pages not
// covered by any mapping (already-free territory is left untouched).
func (sp *Space) unmapImpl(txn *vmstate.Transaction, ptr region.Addr, size region.PageCount, brk bool) (region.PageCount, error) {
	var freed region.PageCount
	i := region.PageCount(0)
	for i < size {
		pagePtr := ptr.Add(i, physalloc.PageSize)
		m, ok := sp.state.GetMappingForAddr(pagePtr)
		if !ok {
			i++
			continue
		}
		begin := region.PageCount(m.PageOffsetFor(pagePtr))
		pages := size - i
		if remain := m.Size - begin; remain < pages {
			pages = remain
		}
		txn.RemoveMapping(m.Begin)
		prev, gapOut, next := m.PartialUnmap(begin, pages)
		if prev != nil {
			if err := txn.InsertMapping(*prev); err != nil {
				return freed, err
			}
		}
		if next != nil {
			if err := txn.InsertMapping(*next); err != nil {
				return freed, err
			}
		}
		i += pages
		if gapOut == nil {
			continue
		}
		freed += gapOut.Size
		if brk {
			continue
		}
		merged := *gapOut
		if merged.Begin > 0 {
			if left, ok := sp.gapAdjacent(txn, merged.Begin-1); ok {
				merged = merged.Merge(left)
			}
		}
		if right, ok := sp.gapAdjacent(txn, merged.End()); ok {
			merged = merged.Merge(right)
		}
		if err := txn.InsertGap(merged); err != nil {
			return freed, err
		}
	}
	return freed, nil
}

// gapAdjacent looks for a gap covering probe in either the live state or
// this transaction's own not-yet-committed buffer (two mappings freed in
// the same unmap call can become adjacent to each other before either
// touches live state), staging or discarding it so it is not inserted
// twice.
func (sp *Space) gapAdjacent(txn *vmstate.Transaction, probe region.Addr) (region.Gap, bool) {
	if g, ok := txn.StagedGapForAddr(probe); ok {
		txn.DiscardStagedGap(g.Begin)
		return g, true
	}
	if g, ok := sp.state.GetGapForAddr(probe); ok {
		txn.RemoveGap(g.Begin)
		return g, true
	}
	return region.Gap{}, false
}
