package region

import (
	"testing"

	"memspace/abi"
	"memspace/pagetable"
	"memspace/physalloc"
	"memspace/prc"
	"memspace/residence"
)

func newTestMapping(t *testing.T, size PageCount, flags abi.Flag) (Mapping, *physalloc.FakeAllocator, *prc.Counter) {
	t.Helper()
	alloc := physalloc.NewFakeAllocator(0)
	refs := prc.NewCounter()
	vmem := pagetable.New()
	m := Mapping{
		Begin:     0x1000,
		Size:      size,
		Flags:     flags,
		Residence: residence.NewAnonymous(alloc, refs),
		VMem:      vmem,
	}
	return m, alloc, refs
}

func TestMappingEnsurePageInstallsOnce(t *testing.T) {
	m, _, _ := newTestMapping(t, 4, abi.WRITE|abi.USER)
	if err := m.EnsurePage(1); err != nil {
		t.Fatalf("EnsurePage: %v", err)
	}
	addr := m.addrOf(1)
	frame, flags, ok := m.VMem.Lookup(addr)
	if !ok {
		t.Fatal("expected installed translation")
	}
	if flags != m.Flags {
		t.Fatalf("installed flags = %v, want %v", flags, m.Flags)
	}
	// Calling again must not allocate a second frame.
	if err := m.EnsurePage(1); err != nil {
		t.Fatalf("second EnsurePage: %v", err)
	}
	frame2, _, _ := m.VMem.Lookup(addr)
	if frame2 != frame {
		t.Fatalf("EnsurePage re-allocated: %v != %v", frame2, frame)
	}
}

func TestMappingPartialUnmapMiddle(t *testing.T) {
	m, _, _ := newTestMapping(t, 6, abi.WRITE|abi.USER)
	for i := PageIndex(0); i < 6; i++ {
		if err := m.EnsurePage(i); err != nil {
			t.Fatalf("EnsurePage(%d): %v", i, err)
		}
	}
	prev, gap, next := m.PartialUnmap(2, 2)
	if prev == nil || prev.Size != 2 || prev.Begin != m.Begin {
		t.Fatalf("prev = %+v", prev)
	}
	if next == nil || next.Size != 2 {
		t.Fatalf("next = %+v", next)
	}
	if gap == nil || gap.Size != 2 {
		t.Fatalf("gap = %+v", gap)
	}
	for i := PageIndex(2); i < 4; i++ {
		if _, _, ok := m.VMem.Lookup(m.addrOf(i)); ok {
			t.Fatalf("page %d still installed after unmap", i)
		}
	}
	for i := PageIndex(0); i < 2; i++ {
		if _, _, ok := m.VMem.Lookup(m.addrOf(i)); !ok {
			t.Fatalf("page %d unexpectedly unmapped", i)
		}
	}
}

func TestMappingForkPrivateIsCOW(t *testing.T) {
	m, _, refs := newTestMapping(t, 2, abi.WRITE|abi.USER)
	if err := m.EnsurePage(0); err != nil {
		t.Fatal(err)
	}
	childVMem := pagetable.New()
	child, err := m.Fork(childVMem, refs)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	frame, parentFlags, ok := m.VMem.Lookup(m.addrOf(0))
	if !ok {
		t.Fatal("parent translation missing after fork")
	}
	if parentFlags.Has(abi.WRITE) {
		t.Fatal("parent mapping should lose WRITE after COW fork")
	}
	childFrame, childFlags, ok := child.VMem.Lookup(child.addrOf(0))
	if !ok {
		t.Fatal("child translation missing after fork")
	}
	if childFrame != frame {
		t.Fatalf("child frame = %v, want shared %v", childFrame, frame)
	}
	if childFlags.Has(abi.WRITE) {
		t.Fatal("child mapping should also be write-protected after COW fork")
	}
	if got := refs.Count(frame); got != 2 {
		t.Fatalf("refcount = %d, want 2", got)
	}
}

func TestMappingForkSharedIsNotWriteProtected(t *testing.T) {
	m, _, refs := newTestMapping(t, 1, abi.WRITE|abi.USER|abi.SHARED)
	if err := m.EnsurePage(0); err != nil {
		t.Fatal(err)
	}
	childVMem := pagetable.New()
	if _, err := m.Fork(childVMem, refs); err != nil {
		t.Fatalf("Fork: %v", err)
	}
	_, parentFlags, _ := m.VMem.Lookup(m.addrOf(0))
	if !parentFlags.Has(abi.WRITE) {
		t.Fatal("shared mapping must keep WRITE on the parent side")
	}
}

func TestMappingResolveFaultCOWDuplicatesOnWrite(t *testing.T) {
	m, _, refs := newTestMapping(t, 1, abi.WRITE|abi.USER)
	if err := m.EnsurePage(0); err != nil {
		t.Fatal(err)
	}
	childVMem := pagetable.New()
	child, err := m.Fork(childVMem, refs)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	oldFrame, _, _ := m.VMem.Lookup(m.addrOf(0))

	if err := m.ResolveFault(0, refs, true); err != nil {
		t.Fatalf("ResolveFault: %v", err)
	}
	newFrame, newFlags, ok := m.VMem.Lookup(m.addrOf(0))
	if !ok {
		t.Fatal("translation missing after COW resolution")
	}
	if newFrame == oldFrame {
		t.Fatal("expected a fresh frame on COW duplication")
	}
	if !newFlags.Has(abi.WRITE) {
		t.Fatal("resolved page must be writable")
	}
	if got := refs.Count(oldFrame); got != 1 {
		t.Fatalf("old frame refcount = %d, want 1 (still held by child)", got)
	}
	if got := refs.Count(newFrame); got != 1 {
		t.Fatalf("new frame refcount = %d, want 1", got)
	}

	childFrame, _, _ := child.VMem.Lookup(child.addrOf(0))
	if childFrame != oldFrame {
		t.Fatalf("child frame changed unexpectedly: %v", childFrame)
	}
}

func TestMappingResolveFaultSoleOwnerUpgradesInPlace(t *testing.T) {
	m, _, refs := newTestMapping(t, 1, abi.WRITE|abi.USER)
	if err := m.EnsurePage(0); err != nil {
		t.Fatal(err)
	}
	frame, _, _ := m.VMem.Lookup(m.addrOf(0))
	// Simulate a stale write-protected translation with no sibling.
	if err := m.VMem.Map(m.addrOf(0), frame, abi.USER); err != nil {
		t.Fatal(err)
	}
	if err := m.ResolveFault(0, refs, true); err != nil {
		t.Fatalf("ResolveFault: %v", err)
	}
	gotFrame, flags, _ := m.VMem.Lookup(m.addrOf(0))
	if gotFrame != frame {
		t.Fatalf("sole owner should keep its frame, got %v want %v", gotFrame, frame)
	}
	if !flags.Has(abi.WRITE) {
		t.Fatal("sole owner should regain WRITE in place")
	}
}

func TestMappingSplitForProt(t *testing.T) {
	m, _, _ := newTestMapping(t, 4, abi.WRITE|abi.USER)
	for i := PageIndex(0); i < 4; i++ {
		if err := m.EnsurePage(i); err != nil {
			t.Fatal(err)
		}
	}
	prev, mid, next := m.SplitForProt(1, 2, abi.USER)
	if prev == nil || prev.Size != 1 {
		t.Fatalf("prev = %+v", prev)
	}
	if mid.Size != 2 || mid.Flags.Has(abi.WRITE) {
		t.Fatalf("mid = %+v", mid)
	}
	if next == nil || next.Size != 1 {
		t.Fatalf("next = %+v", next)
	}
	// SplitForProt alone must not touch the live page table yet: the
	// installed PTE still carries the mapping's old WRITE flag.
	if _, flags, _ := mid.VMem.Lookup(mid.addrOf(0)); !flags.Has(abi.WRITE) {
		t.Fatalf("mid page 0 resynced before ResyncRange: flags=%v", flags)
	}
	if err := mid.ResyncRange(mid.Size); err != nil {
		t.Fatalf("ResyncRange: %v", err)
	}
	// Middle pages must now be re-synced to the new flags.
	_, flags, ok := mid.VMem.Lookup(mid.addrOf(0))
	if !ok || flags.Has(abi.WRITE) {
		t.Fatalf("mid page 0 not re-synced: flags=%v ok=%v", flags, ok)
	}
}
