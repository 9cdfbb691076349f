package region

import "testing"

func TestGapConsumeMiddle(t *testing.T) {
	g := Gap{Begin: 0x1000, Size: 10}
	left, right, err := g.Consume(3, 4)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if left == nil || left.Begin != 0x1000 || left.Size != 3 {
		t.Fatalf("left = %+v, want {0x1000 3}", left)
	}
	if right == nil || right.Begin != g.Begin.Add(7, 0x1000) || right.Size != 3 {
		t.Fatalf("right = %+v", right)
	}
}

func TestGapConsumeWhole(t *testing.T) {
	g := Gap{Begin: 0x2000, Size: 5}
	left, right, err := g.Consume(0, 5)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if left != nil || right != nil {
		t.Fatalf("expected no remainder, got left=%+v right=%+v", left, right)
	}
}

func TestGapConsumeOutOfBounds(t *testing.T) {
	g := Gap{Begin: 0x1000, Size: 4}
	if _, _, err := g.Consume(3, 4); err == nil {
		t.Fatal("expected error for out-of-bounds consume")
	}
}

func TestGapMerge(t *testing.T) {
	a := Gap{Begin: 0x1000, Size: 2} // ends at 0x1000 + 2*PageSize
	b := Gap{Begin: a.End(), Size: 3}
	merged := a.Merge(b)
	if merged.Begin != a.Begin || merged.Size != 5 {
		t.Fatalf("merged = %+v", merged)
	}
	// Order shouldn't matter.
	merged2 := b.Merge(a)
	if merged2 != merged {
		t.Fatalf("merge not commutative: %+v vs %+v", merged, merged2)
	}
}

func TestGapMergeNonAdjacentPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic merging non-adjacent gaps")
		}
	}()
	Gap{Begin: 0x1000, Size: 1}.Merge(Gap{Begin: 0x5000, Size: 1})
}

func TestGapContainsAndOffset(t *testing.T) {
	g := Gap{Begin: 0x1000, Size: 4}
	addr := g.Begin.Add(2, 0x1000)
	if !g.Contains(addr) {
		t.Fatalf("expected %#x to be contained in %+v", addr, g)
	}
	if g.PageOffsetFor(addr) != 2 {
		t.Fatalf("PageOffsetFor = %d, want 2", g.PageOffsetFor(addr))
	}
	if g.Contains(g.End()) {
		t.Fatal("End() must not be contained")
	}
}
