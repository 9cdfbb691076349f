package vmstate

import (
	"testing"

	"memspace/region"
)

func TestTransactionCommitAppliesRemovalsThenInserts(t *testing.T) {
	host := New()
	if err := host.InsertGap(region.Gap{Begin: 0x1000, Size: 4}); err != nil {
		t.Fatal(err)
	}
	txn := Begin(host)
	txn.RemoveGap(0x1000)
	if err := txn.InsertGap(region.Gap{Begin: 0x1000, Size: 2}); err != nil {
		t.Fatal(err)
	}
	if err := txn.InsertGap(region.Gap{Begin: 0x3000, Size: 2}); err != nil {
		t.Fatal(err)
	}
	txn.AddVMemUsage(5)
	txn.Commit()

	if host.GapCount() != 2 {
		t.Fatalf("GapCount = %d, want 2", host.GapCount())
	}
	if host.VMemUsage() != 5 {
		t.Fatalf("VMemUsage = %d, want 5", host.VMemUsage())
	}
}

func TestTransactionRollbackLeavesHostUntouched(t *testing.T) {
	host := New()
	if err := host.InsertGap(region.Gap{Begin: 0x1000, Size: 10}); err != nil {
		t.Fatal(err)
	}
	before := host.GapCount()

	host.InjectAllocFailureAt(1)
	txn := Begin(host)
	txn.RemoveGap(0x1000)
	if err := txn.InsertGap(region.Gap{Begin: 0x1000, Size: 3}); err == nil {
		t.Fatal("expected staged insert to fail")
	}
	// A failed staged insert must never be committed, and the
	// transaction must simply be abandoned by the caller.
	if host.GapCount() != before {
		t.Fatalf("host mutated despite failed staging: GapCount = %d, want %d", host.GapCount(), before)
	}
	got, ok := host.GetGapForAddr(0x1000)
	if !ok || got.Size != 10 {
		t.Fatalf("host gap changed: %+v, %v", got, ok)
	}
}

func TestTransactionStagedGapForAddr(t *testing.T) {
	host := New()
	txn := Begin(host)
	g := region.Gap{Begin: 0x2000, Size: 1}
	if err := txn.InsertGap(g); err != nil {
		t.Fatal(err)
	}
	got, ok := txn.StagedGapForAddr(0x2000)
	if !ok || got != g {
		t.Fatalf("StagedGapForAddr = %+v, %v", got, ok)
	}
	txn.DiscardStagedGap(g.Begin)
	if _, ok := txn.StagedGapForAddr(0x2000); ok {
		t.Fatal("expected staged gap to be discarded")
	}
}
