package vmstate

import (
	"testing"

	"memspace/region"
)

func TestStateInsertAndLookupGap(t *testing.T) {
	s := New()
	g := region.Gap{Begin: 0x1000, Size: 4}
	if err := s.InsertGap(g); err != nil {
		t.Fatalf("InsertGap: %v", err)
	}
	if s.GapCount() != 1 || s.GapSizeIndexCount() != 1 {
		t.Fatalf("gap indices diverged: %d vs %d", s.GapCount(), s.GapSizeIndexCount())
	}
	got, ok := s.GetGapForAddr(0x2000)
	if !ok || got != g {
		t.Fatalf("GetGapForAddr = %+v, %v", got, ok)
	}
	if _, ok := s.GetGapForAddr(0x9000); ok {
		t.Fatal("expected no gap at unmapped address")
	}
}

func TestStateGetGapFirstFitBySize(t *testing.T) {
	s := New()
	small := region.Gap{Begin: 0x1000, Size: 2}
	big := region.Gap{Begin: 0x5000, Size: 10}
	if err := s.InsertGap(small); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertGap(big); err != nil {
		t.Fatal(err)
	}
	got, ok := s.GetGap(5)
	if !ok || got != big {
		t.Fatalf("GetGap(5) = %+v, want %+v", got, big)
	}
	got, ok = s.GetGap(2)
	if !ok || got != small {
		t.Fatalf("GetGap(2) = %+v, want %+v", got, small)
	}
	if _, ok := s.GetGap(20); ok {
		t.Fatal("expected no gap large enough")
	}
}

func TestStateRemoveGapIsNoopIfAbsent(t *testing.T) {
	s := New()
	s.RemoveGap(0x1234) // must not panic
	if s.GapCount() != 0 {
		t.Fatal("expected no gaps")
	}
}

func TestStateInjectAllocFailureAt(t *testing.T) {
	s := New()
	s.InjectAllocFailureAt(2)
	if err := s.InsertGap(region.Gap{Begin: 0x1000, Size: 1}); err != nil {
		t.Fatalf("first insert should succeed: %v", err)
	}
	if err := s.InsertGap(region.Gap{Begin: 0x3000, Size: 1}); err == nil {
		t.Fatal("second insert should fail")
	}
	// The failed insert must not have left a dangling gapsByAddr entry.
	if s.GapCount() != 1 {
		t.Fatalf("GapCount = %d, want 1 after rollback", s.GapCount())
	}
	if s.GapSizeIndexCount() != 1 {
		t.Fatalf("GapSizeIndexCount = %d, want 1", s.GapSizeIndexCount())
	}
}

func TestStateCloneSharesNoMutableState(t *testing.T) {
	s := New()
	if err := s.InsertGap(region.Gap{Begin: 0x1000, Size: 4}); err != nil {
		t.Fatal(err)
	}
	clone := s.Clone()
	if err := clone.InsertGap(region.Gap{Begin: 0x9000, Size: 1}); err != nil {
		t.Fatal(err)
	}
	if s.GapCount() != 1 {
		t.Fatalf("original mutated by clone insert: GapCount = %d", s.GapCount())
	}
	if clone.GapCount() != 2 {
		t.Fatalf("clone GapCount = %d, want 2", clone.GapCount())
	}
}
