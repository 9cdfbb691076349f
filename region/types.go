// Package region defines the Gap and Mapping descriptors plus the small
// value types they share: page-aligned addresses, page counts, and page
// indices. Gap.Consume/Merge and Mapping.PartialUnmap/Fork/update the
// free-space and used-space bookkeeping an address space needs.
package region

import "memspace/abi"

// Addr is a page-aligned virtual address.
type Addr uintptr

// Add returns addr advanced by n pages of the given page size.
func (addr Addr) Add(n PageCount, pageSize int) Addr {
	return addr + Addr(uintptr(n)*uintptr(pageSize))
}

// PageCount is a non-negative count of pages.
type PageCount uint

// PageIndex is a zero-based page offset within a mapping or residence.
type PageIndex uint

// Flags re-exports abi.Flag so callers of this package do not need to
// import abi directly for the common case of reading a mapping's flags.
type Flags = abi.Flag
