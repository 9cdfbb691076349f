package memspace

import (
	"memspace/abi"
	"memspace/kerr"
	"memspace/physalloc"
	"memspace/region"
	"memspace/residence"
	"memspace/vmstate"
)

// SetProt changes the permission flags of the len-byte range beginning
// at addr to prot's WRITE/EXEC bits, splitting mappings at the range's
// boundaries as needed. A shared, file-backed mapping requesting WRITE
// is rejected with kerr.ErrPermission unless profile grants it.
//
// This implements the full split-and-reprotect algorithm rather than
// leaving the range's outer mappings untouched, so a caller narrowing
// permissions on a sub-range of an existing mapping actually gets a
// mapping boundary there instead of a no-op.
func (sp *Space) SetProt(addr region.Addr, length uint, prot abi.Flag, profile abi.AccessProfile) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if uintptr(addr)%physalloc.PageSize != 0 {
		return kerr.ErrInvalidArgument
	}
	size := region.PageCount(ceilDiv(uintptr(length), physalloc.PageSize))
	if size == 0 {
		return kerr.ErrInvalidArgument
	}

	txn := vmstate.Begin(sp.state)
	var toResync []region.Mapping
	i := region.PageCount(0)
	for i < size {
		pagePtr := addr.Add(i, physalloc.PageSize)
		m, ok := sp.state.GetMappingForAddr(pagePtr)
		if !ok {
			i++
			continue
		}
		if m.Residence.Kind() == residence.File && m.Residence.Shared() &&
			prot.Has(abi.WRITE) && !profile.FileWritable {
			return kerr.ErrPermission
		}

		begin := region.PageCount(m.PageOffsetFor(pagePtr))
		pages := size - i
		if remain := m.Size - begin; remain < pages {
			pages = remain
		}
		i += pages

		newFlags := (m.Flags &^ (abi.WRITE | abi.EXEC)) | (prot & (abi.WRITE | abi.EXEC))
		txn.RemoveMapping(m.Begin)
		prev, mid, next := m.SplitForProt(begin, pages, newFlags)
		if prev != nil {
			if err := txn.InsertMapping(*prev); err != nil {
				return err
			}
		}
		if err := txn.InsertMapping(mid); err != nil {
			return err
		}
		if next != nil {
			if err := txn.InsertMapping(*next); err != nil {
				return err
			}
		}
		toResync = append(toResync, mid)
	}
	txn.Commit()

	// Only re-sync live PTEs once every mapping in the range has been
	// staged and committed: a permission failure or fallible insert
	// earlier in the loop returns before this point, leaving every PTE
	// untouched alongside the rolled-back mapping index.
	for _, mid := range toResync {
		if err := mid.ResyncRange(mid.Size); err != nil {
			return err
		}
	}
	return nil
}
