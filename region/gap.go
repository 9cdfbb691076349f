package region

import "memspace/physalloc"

// Gap is a contiguous, page-aligned free range. The invariant that no gap
// overlaps another gap or a mapping is maintained by vmstate.State, not
// by Gap itself.
type Gap struct {
	Begin Addr
	Size  PageCount
}

// End returns the address immediately past the gap.
func (g Gap) End() Addr {
	return g.Begin.Add(g.Size, physalloc.PageSize)
}

// Contains reports whether addr falls within [Begin, End).
func (g Gap) Contains(addr Addr) bool {
	return addr >= g.Begin && addr < g.End()
}

// PageOffsetFor returns the page index of addr within the gap. The
// caller must have already established g.Contains(addr).
func (g Gap) PageOffsetFor(addr Addr) PageCount {
	return PageCount((addr - g.Begin) / Addr(physalloc.PageSize))
}

// Consume splits the gap around the sub-range [offset, offset+size),
// returning up to two smaller gaps representing what remains free. A nil
// return for left or right means that side is empty (the sub-range
// touches that edge of the gap exactly). It fails only if the sub-range
// does not fit inside g.
func (g Gap) Consume(offset, size PageCount) (left, right *Gap, err error) {
	if uintptr(offset)+uintptr(size) > uintptr(g.Size) {
		return nil, nil, errOutOfBounds
	}
	if offset > 0 {
		left = &Gap{Begin: g.Begin, Size: offset}
	}
	tailSize := g.Size - offset - size
	if tailSize > 0 {
		right = &Gap{
			Begin: g.Begin.Add(offset+size, physalloc.PageSize),
			Size:  tailSize,
		}
	}
	return left, right, nil
}

// Merge fuses g with an address-adjacent gap, returning the fused gap. It
// requires g.End() == other.Begin or other.End() == g.Begin.
func (g Gap) Merge(other Gap) Gap {
	switch {
	case g.End() == other.Begin:
		return Gap{Begin: g.Begin, Size: g.Size + other.Size}
	case other.End() == g.Begin:
		return Gap{Begin: other.Begin, Size: g.Size + other.Size}
	default:
		panic("region: Merge requires address-adjacent gaps")
	}
}

type gapError string

func (e gapError) Error() string { return string(e) }

const errOutOfBounds = gapError("region: sub-range out of bounds")
