// Package residence holds the tagged variant describing what backs a
// mapping, and the per-kind alloc_page/free_page policies.
//
// Modeled as a tagged variant rather than an interface: the set of kinds
// is closed, dispatch is cheap, and a switch over Kind makes the
// exhaustiveness of offset-adjustment and free-policy checkable at a
// glance.
package residence

import (
	"memspace/filebacked"
	"memspace/kerr"
	"memspace/physalloc"
	"memspace/prc"
	"memspace/swap"
)

// Kind discriminates the four residence cases.
type Kind int

const (
	// Anonymous pages are zero-initialized on first touch.
	Anonymous Kind = iota
	// Static pages come from an immutable pre-existing frame sequence
	// shared across memory spaces.
	Static
	// File pages are backed by a location in a file.
	File
	// Swap pages are backed by a slot in a swap device.
	Swap
)

// Residence is an immutable value describing the backing of one mapping.
// Splitting a mapping produces a new Residence via OffsetAdd rather than
// mutating the original, matching the copy-on-split behavior of the PTE
// fragments Mapping.PartialUnmap produces.
type Residence struct {
	kind Kind

	// Static frames, in order. Offset i beyond len(frames) falls back to
	// anonymous behavior.
	frames []physalloc.Frame

	// File backing.
	file       filebacked.Location
	fileOffset uint64
	fileShared bool
	fileStore  filebacked.Store

	// Swap backing.
	swapDevice swap.Device
	slotID     uint32
	pageOffset uint

	alloc physalloc.Allocator
	refs  *prc.Counter
}

// NewAnonymous returns a private, zero-initialized residence.
func NewAnonymous(alloc physalloc.Allocator, refs *prc.Counter) Residence {
	return Residence{kind: Anonymous, alloc: alloc, refs: refs}
}

// NewStatic returns a residence backed by a fixed, shared sequence of
// frames. Callers must never free these frames through FreePage; indices
// at or beyond len(frames) behave as Anonymous.
func NewStatic(frames []physalloc.Frame, alloc physalloc.Allocator, refs *prc.Counter) Residence {
	return Residence{kind: Static, frames: frames, alloc: alloc, refs: refs}
}

// NewFile returns a residence backed by a location in a file at the
// given byte offset. shared controls whether dirty pages are flushed
// back to the file on free.
func NewFile(store filebacked.Store, loc filebacked.Location, offset uint64, shared bool) Residence {
	return Residence{kind: File, fileStore: store, file: loc, fileOffset: offset, fileShared: shared}
}

// NewSwap returns a residence backed by a slot on a swap device.
func NewSwap(dev swap.Device, slotID uint32, pageOffset uint) Residence {
	return Residence{kind: Swap, swapDevice: dev, slotID: slotID, pageOffset: pageOffset}
}

// Kind reports which of the four cases this residence is.
func (r Residence) Kind() Kind { return r.kind }

// Shared reports whether a File residence is a shared mapping (dirty
// pages flush back to the file). It is meaningless for other kinds.
func (r Residence) Shared() bool { return r.kind == File && r.fileShared }

// OffsetAdd returns a copy of r describing the tail of a mapping that
// begins pages further in, so that splitting a mapping at a page
// boundary produces a residence correctly describing the fragment.
func (r Residence) OffsetAdd(pages PageSize) Residence {
	switch r.kind {
	case Static:
		if int(pages) >= len(r.frames) {
			r.frames = nil
		} else {
			r.frames = r.frames[pages:]
		}
	case File:
		r.fileOffset += uint64(pages) * uint64(physalloc.PageSize)
	case Swap:
		r.pageOffset += uint(pages)
	}
	return r
}

// PageSize is a page count used purely for OffsetAdd arithmetic, kept
// distinct from region.PageCount to avoid an import cycle between
// residence and region (region.Mapping embeds a Residence).
type PageSize = uint

// AllocPage materializes the backing frame for page i, per this
// residence's kind.
func (r Residence) AllocPage(i PageSize) (physalloc.Frame, error) {
	switch r.kind {
	case Anonymous:
		return r.allocFresh()
	case Static:
		if int(i) < len(r.frames) {
			return r.frames[i], nil
		}
		return r.allocFresh()
	case File:
		return r.fileStore.PageIn(r.file, r.fileOffset+uint64(i)*uint64(physalloc.PageSize))
	case Swap:
		return r.swapDevice.ReadPage(r.slotID, r.pageOffset+i)
	default:
		panic("residence: unknown kind")
	}
}

func (r Residence) allocFresh() (physalloc.Frame, error) {
	f, err := r.alloc.Alloc(0, physalloc.ZoneUser)
	if err != nil {
		return physalloc.Zero, err
	}
	if err := r.refs.Increment(f); err != nil {
		r.alloc.Free(f, 0)
		return physalloc.Zero, err
	}
	return f, nil
}

// FreePage releases the frame previously returned by AllocPage for page
// i: anonymous pages are refcounted and returned to the allocator at
// zero; static pages below len(frames) are never freed; file/swap pages
// flush or write back as appropriate.
func (r Residence) FreePage(i PageSize, f physalloc.Frame) {
	switch r.kind {
	case Anonymous:
		r.freeRefcounted(f)
	case Static:
		if int(i) >= len(r.frames) {
			r.freeRefcounted(f)
		}
		// else: shared immutable frame, never freed by this residence.
	case File:
		if r.fileShared {
			if err := r.fileStore.Flush(r.file, r.fileOffset+uint64(i)*uint64(physalloc.PageSize), f); err != nil {
				// The file store is a contract; a flush failure here is
				// not recoverable from the memory space's perspective.
				panic(kerr.Fatal("residence: flush failed: " + err.Error()))
			}
		}
	case Swap:
		if err := r.swapDevice.WritePage(r.slotID, r.pageOffset+i, f); err != nil {
			panic(kerr.Fatal("residence: swap writeback failed: " + err.Error()))
		}
	}
}

func (r Residence) freeRefcounted(f physalloc.Frame) {
	r.refs.Decrement(f)
	if r.refs.CanFree(f) {
		if r.alloc != nil {
			r.alloc.Free(f, 0)
		}
	}
}
