// Package vmstate holds the indexed store of gaps and mappings for one
// address space, and the transaction type that stages fallible index
// insertions so a commit can be infallible. The two gap indices
// (address-ordered and size-ordered) and the mapping index are all
// backed by github.com/google/btree's generic BTreeG.
package vmstate

import (
	"sync"

	"github.com/google/btree"

	"memspace/kerr"
	"memspace/region"
)

const btreeDegree = 32

type sizeKey struct {
	Size  region.PageCount
	Begin region.Addr
}

func gapByAddrLess(a, b region.Gap) bool { return a.Begin < b.Begin }

func sizeKeyLess(a, b sizeKey) bool {
	if a.Size != b.Size {
		return a.Size < b.Size
	}
	return a.Begin < b.Begin
}

func mappingByAddrLess(a, b region.Mapping) bool { return a.Begin < b.Begin }

// failpoint lets tests deterministically fail the Nth upcoming fallible
// index insertion, standing in for a runtime where map/tree insertions
// can themselves report out-of-memory rather than panicking. Shared by
// pointer between a State and every Transaction staged against it, so
// the count is continuous across staging and live state.
type failpoint struct {
	mu      sync.Mutex
	attempt int
	failAt  int
}

func (fp *failpoint) check() error {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.attempt++
	if fp.failAt != 0 && fp.attempt == fp.failAt {
		return kerr.ErrAlloc
	}
	return nil
}

// injectAt arms the failpoint so that the nth fallible index
// insert from now (1-indexed) fails with kerr.ErrAlloc. n == 0 disarms
// it. Used to exercise the S6 rollback scenario.
func (fp *failpoint) injectAt(n int) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.attempt = 0
	fp.failAt = n
}

// State is the indexed store of an address space: gapsByAddress,
// gapsBySize, mappingsByAddress, plus the running page count of mapped
// memory.
type State struct {
	gapsByAddr *btree.BTreeG[region.Gap]
	gapsBySize *btree.BTreeG[sizeKey]
	mappings   *btree.BTreeG[region.Mapping]
	vmemUsage  region.PageCount
	fp         *failpoint
}

// New returns an empty State.
func New() *State {
	return newWithFailpoint(&failpoint{})
}

func newWithFailpoint(fp *failpoint) *State {
	return &State{
		gapsByAddr: btree.NewG(btreeDegree, gapByAddrLess),
		gapsBySize: btree.NewG(btreeDegree, sizeKeyLess),
		mappings:   btree.NewG(btreeDegree, mappingByAddrLess),
		fp:         fp,
	}
}

// InjectAllocFailureAt arms the state's failpoint so that the nth
// fallible index insert performed from now on (counting across both
// direct calls and any Transaction staged against this State) fails.
// n == 0 disarms it. Exists only to make the S6 rollback scenario
// deterministic in tests.
func (s *State) InjectAllocFailureAt(n int) { s.fp.injectAt(n) }

// VMemUsage returns the total number of pages held across
// mappingsByAddress.
func (s *State) VMemUsage() region.PageCount { return s.vmemUsage }

// InsertGap inserts g into both gap indices. The first index insert
// (gapsByAddress) is treated as infallible; the second (gapsBySize) may
// fail, in which case the first is rolled back before returning.
func (s *State) InsertGap(g region.Gap) error {
	s.gapsByAddr.ReplaceOrInsert(g)
	if err := s.fp.check(); err != nil {
		s.gapsByAddr.Delete(g)
		return err
	}
	s.gapsBySize.ReplaceOrInsert(sizeKey{Size: g.Size, Begin: g.Begin})
	return nil
}

// RemoveGap removes the gap beginning at begin from both indices. It
// never fails; removing an absent gap is a no-op.
func (s *State) RemoveGap(begin region.Addr) {
	g, ok := s.gapsByAddr.Get(region.Gap{Begin: begin})
	if !ok {
		return
	}
	s.gapsByAddr.Delete(g)
	s.gapsBySize.Delete(sizeKey{Size: g.Size, Begin: begin})
}

// InsertMapping inserts m into mappingsByAddress. May fail with
// kerr.ErrAlloc.
func (s *State) InsertMapping(m region.Mapping) error {
	if err := s.fp.check(); err != nil {
		return err
	}
	s.mappings.ReplaceOrInsert(m)
	return nil
}

// RemoveMapping removes the mapping beginning at begin. It is a no-op if
// absent.
func (s *State) RemoveMapping(begin region.Addr) {
	s.mappings.Delete(region.Mapping{Begin: begin})
}

// GetGap returns the smallest gap whose size is at least size, breaking
// ties by address (first-fit by size).
func (s *State) GetGap(size region.PageCount) (region.Gap, bool) {
	var found sizeKey
	ok := false
	s.gapsBySize.AscendGreaterOrEqual(sizeKey{Size: size}, func(k sizeKey) bool {
		found = k
		ok = true
		return false
	})
	if !ok {
		return region.Gap{}, false
	}
	g, present := s.gapsByAddr.Get(region.Gap{Begin: found.Begin})
	if !present {
		panic(kerr.Fatal("vmstate: gapsBySize/gapsByAddress diverged"))
	}
	return g, true
}

// GetGapForAddr returns the gap containing ptr, if any. Gaps never
// overlap, so the gap with the greatest Begin <= ptr is the only
// candidate.
func (s *State) GetGapForAddr(ptr region.Addr) (region.Gap, bool) {
	var candidate region.Gap
	found := false
	s.gapsByAddr.DescendLessOrEqual(region.Gap{Begin: ptr}, func(g region.Gap) bool {
		candidate = g
		found = true
		return false
	})
	if !found || !candidate.Contains(ptr) {
		return region.Gap{}, false
	}
	return candidate, true
}

// GetMappingForAddr returns the mapping containing ptr, if any, by the
// same greatest-Begin-<=-ptr reasoning as GetGapForAddr.
func (s *State) GetMappingForAddr(ptr region.Addr) (region.Mapping, bool) {
	var candidate region.Mapping
	found := false
	s.mappings.DescendLessOrEqual(region.Mapping{Begin: ptr}, func(m region.Mapping) bool {
		candidate = m
		found = true
		return false
	})
	if !found || !candidate.Contains(ptr) {
		return region.Mapping{}, false
	}
	return candidate, true
}

// Gaps calls fn for every gap in address order, stopping early if fn
// returns false. Used by invariant checks and by Space.String.
func (s *State) Gaps(fn func(region.Gap) bool) {
	s.gapsByAddr.Ascend(func(g region.Gap) bool { return fn(g) })
}

// Mappings calls fn for every mapping in address order, stopping early
// if fn returns false.
func (s *State) Mappings(fn func(region.Mapping) bool) {
	s.mappings.Ascend(func(m region.Mapping) bool { return fn(m) })
}

// GapCount returns the number of gaps currently indexed.
func (s *State) GapCount() int { return s.gapsByAddr.Len() }

// GapSizeIndexCount returns the number of entries in gapsBySize, for
// testable property 3 (the two gap indices must always agree in size).
func (s *State) GapSizeIndexCount() int { return s.gapsBySize.Len() }

// MappingCount returns the number of mappings currently indexed.
func (s *State) MappingCount() int { return s.mappings.Len() }

// Clone returns a deep structural copy of s sharing the same failpoint,
// used by Space.Fork to duplicate the two gap indices directly.
func (s *State) Clone() *State {
	clone := newWithFailpoint(s.fp)
	clone.gapsByAddr = s.gapsByAddr.Clone()
	clone.gapsBySize = s.gapsBySize.Clone()
	clone.vmemUsage = s.vmemUsage
	// Mappings are never cloned directly: Space.Fork rebuilds them one
	// by one via Mapping.Fork so each can become copy-on-write against
	// the new page-table context.
	return clone
}
