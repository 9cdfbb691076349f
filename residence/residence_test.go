package residence

import (
	"testing"

	"memspace/filebacked"
	"memspace/physalloc"
	"memspace/prc"
	"memspace/swap"
)

func TestFileResidencePageInAndFlush(t *testing.T) {
	alloc := physalloc.NewFakeAllocator(0)
	store := filebacked.NewFakeStore(alloc)
	loc := filebacked.Location{Device: 1, Inode: 42}
	r := NewFile(store, loc, 0, true)

	f0, err := r.AllocPage(0)
	if err != nil {
		t.Fatalf("AllocPage(0): %v", err)
	}
	f1, err := r.AllocPage(1)
	if err != nil {
		t.Fatalf("AllocPage(1): %v", err)
	}
	if f0 == f1 {
		t.Fatal("distinct pages must page in distinct frames")
	}
	if again, err := r.AllocPage(0); err != nil || again != f0 {
		t.Fatalf("re-reading page 0 should return the same frame, got %v, %v", again, err)
	}

	r.FreePage(0, f0)
	flushes := store.Flushes()
	if len(flushes) != 1 || flushes[0].Loc != loc || flushes[0].Offset != 0 || flushes[0].Frame != f0 {
		t.Fatalf("unexpected flush record: %+v", flushes)
	}

	priv := NewFile(store, loc, 0, false)
	priv.FreePage(0, f0)
	if len(store.Flushes()) != 1 {
		t.Fatal("a private (non-shared) file residence must not flush on free")
	}
}

func TestFileResidenceOffsetAdd(t *testing.T) {
	alloc := physalloc.NewFakeAllocator(0)
	store := filebacked.NewFakeStore(alloc)
	loc := filebacked.Location{Device: 1, Inode: 7}
	r := NewFile(store, loc, 0, false).OffsetAdd(3)

	if _, err := r.AllocPage(0); err != nil {
		t.Fatalf("AllocPage after offset: %v", err)
	}
	fromBase, _ := NewFile(store, loc, 0, false).AllocPage(3)
	fromOffset, _ := r.AllocPage(0)
	if fromBase != fromOffset {
		t.Fatalf("OffsetAdd(3).AllocPage(0) should resolve the same file page as AllocPage(3), got %v vs %v", fromOffset, fromBase)
	}
}

func TestSwapResidenceReadAndWriteback(t *testing.T) {
	alloc := physalloc.NewFakeAllocator(0)
	dev := swap.NewFakeDevice(alloc)
	slot, err := dev.AllocSlot()
	if err != nil {
		t.Fatalf("AllocSlot: %v", err)
	}
	r := NewSwap(dev, slot, 0)

	f, err := r.AllocPage(2)
	if err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	r.FreePage(2, f)
	writes := dev.WritesFor(slot)
	if len(writes) != 1 || writes[0].Page != 2 || writes[0].Frame != f {
		t.Fatalf("unexpected writeback record: %+v", writes)
	}
}

func TestSwapResidenceOffsetAdd(t *testing.T) {
	alloc := physalloc.NewFakeAllocator(0)
	dev := swap.NewFakeDevice(alloc)
	slot, err := dev.AllocSlot()
	if err != nil {
		t.Fatalf("AllocSlot: %v", err)
	}
	r := NewSwap(dev, slot, 5).OffsetAdd(2)
	f, err := r.AllocPage(0)
	if err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	direct, _ := NewSwap(dev, slot, 5).AllocPage(2)
	if f != direct {
		t.Fatalf("OffsetAdd(2).AllocPage(0) should resolve swap page 7, got %v vs %v", f, direct)
	}
}

func TestStaticResidenceFallsBackToAnonymousPastFrameList(t *testing.T) {
	alloc := physalloc.NewFakeAllocator(0)
	refs := prc.NewCounter()
	fixed := []physalloc.Frame{100, 200}
	r := NewStatic(fixed, alloc, refs)

	f0, err := r.AllocPage(0)
	if err != nil || f0 != 100 {
		t.Fatalf("AllocPage(0) = %v, %v, want 100, nil", f0, err)
	}
	f1, err := r.AllocPage(1)
	if err != nil || f1 != 200 {
		t.Fatalf("AllocPage(1) = %v, %v, want 200, nil", f1, err)
	}

	f2, err := r.AllocPage(2)
	if err != nil {
		t.Fatalf("AllocPage(2) beyond the fixed list: %v", err)
	}
	if f2 == 100 || f2 == 200 {
		t.Fatalf("AllocPage(2) should allocate a fresh frame, got %v", f2)
	}
	if got := refs.Count(f2); got != 1 {
		t.Fatalf("anonymous fallback frame refcount = %d, want 1", got)
	}

	// Freeing an index within the fixed list must not touch the
	// allocator or the refcounter: the frame is shared and immutable.
	r.FreePage(0, f0)
	if got := refs.Count(f0); got != 0 {
		t.Fatalf("static in-range frame must not be refcounted, got count %d", got)
	}

	// Freeing the fallback index does decrement and return it.
	r.FreePage(2, f2)
	if got := refs.Count(f2); got != 0 {
		t.Fatalf("anonymous fallback frame should be freed, got count %d", got)
	}
}
