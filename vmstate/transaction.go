package vmstate

import "memspace/region"

// Transaction stages insertions against a private buffer state and
// records two removal sets, so that every fallible allocation happens
// before anything touches the live State. Commit is then infallible: it
// performs the removals and moves the buffered inserts into the live
// indices.
type Transaction struct {
	host           *State
	buffer         *State
	removeGaps     map[region.Addr]struct{}
	removeMappings map[region.Addr]struct{}
	vmemDelta      int
}

// Begin starts a transaction against host. The returned Transaction
// shares host's failpoint, so InjectAllocFailureAt counts staged inserts
// the same way it counts direct ones.
func Begin(host *State) *Transaction {
	return &Transaction{
		host:           host,
		buffer:         newWithFailpoint(host.fp),
		removeGaps:     make(map[region.Addr]struct{}),
		removeMappings: make(map[region.Addr]struct{}),
	}
}

// InsertGap stages g for insertion on commit. May fail with
// kerr.ErrAlloc, in which case the transaction should be abandoned: the
// live state is untouched.
func (t *Transaction) InsertGap(g region.Gap) error {
	return t.buffer.InsertGap(g)
}

// InsertMapping stages m for insertion on commit. May fail with
// kerr.ErrAlloc.
func (t *Transaction) InsertMapping(m region.Mapping) error {
	return t.buffer.InsertMapping(m)
}

// RemoveGap stages the gap beginning at begin for removal on commit.
func (t *Transaction) RemoveGap(begin region.Addr) {
	t.removeGaps[begin] = struct{}{}
}

// RemoveMapping stages the mapping beginning at begin for removal on
// commit.
func (t *Transaction) RemoveMapping(begin region.Addr) {
	t.removeMappings[begin] = struct{}{}
}

// AddVMemUsage accumulates a change (positive or negative) to apply to
// the live state's page count on commit.
func (t *Transaction) AddVMemUsage(delta int) {
	t.vmemDelta += delta
}

// StagedGapForAddr looks up a gap already staged for insertion in this
// transaction, for callers (like unmap's merge-with-adjacent-gap step)
// that need to see their own not-yet-committed work.
func (t *Transaction) StagedGapForAddr(ptr region.Addr) (region.Gap, bool) {
	return t.buffer.GetGapForAddr(ptr)
}

// DiscardStagedGap removes a gap previously staged for insertion in this
// same transaction (one that never existed in the live host state), so
// it can be replaced by a merged shape. It is a no-op if begin was never
// staged.
func (t *Transaction) DiscardStagedGap(begin region.Addr) {
	t.buffer.RemoveGap(begin)
}

// Commit applies every staged removal, then every staged insertion, to
// the live state, and finally updates vmem usage. It never fails: every
// fallible step already happened during staging.
func (t *Transaction) Commit() {
	for begin := range t.removeMappings {
		t.host.RemoveMapping(begin)
	}
	for begin := range t.removeGaps {
		t.host.RemoveGap(begin)
	}
	t.buffer.gapsByAddr.Ascend(func(g region.Gap) bool {
		t.host.gapsByAddr.ReplaceOrInsert(g)
		return true
	})
	t.buffer.gapsBySize.Ascend(func(k sizeKey) bool {
		t.host.gapsBySize.ReplaceOrInsert(k)
		return true
	})
	t.buffer.mappings.Ascend(func(m region.Mapping) bool {
		t.host.mappings.ReplaceOrInsert(m)
		return true
	})
	t.host.vmemUsage += region.PageCount(t.vmemDelta)
}
