package softmmu_test

import (
	"testing"
	"time"

	"softmmu"
	"softmmu/internal/pagetable"
)

func TestFindVirtualFindsHoleAfterReservation(t *testing.T) {
	sys, _ := newTestSystem(t)
	key := pagetable.MakeLeaf(0, pagetable.V|pagetable.RSRV)
	if !sys.ReserveVirtual(0x1000000, 0x3000, key) {
		t.Fatal("ReserveVirtual failed")
	}

	v, err := sys.FindVirtual(0x1000000, 0x2000)
	if err != nil {
		t.Fatalf("FindVirtual: %v", err)
	}
	if v < 0x1003000 {
		t.Fatalf("FindVirtual returned %#x inside the reserved range", v)
	}
}

func TestFindVirtualEmptySystemFindsVirtBase(t *testing.T) {
	sys, _ := newTestSystem(t)
	v, err := sys.FindVirtual(0x2000000, 0x1000)
	if err != nil {
		t.Fatalf("FindVirtual: %v", err)
	}
	if v != 0x2000000 {
		t.Fatalf("FindVirtual = %#x, want 0x2000000", v)
	}
}

func TestFindVirtualCrossedGuard(t *testing.T) {
	sys, _ := newTestSystem(t)
	_, err := sys.FindVirtual(0x800000000000, 0x1000)
	if err != softmmu.ErrCrossedGuard {
		t.Fatalf("err = %v, want ErrCrossedGuard", err)
	}
}

func TestReserveVirtualOverlapCounted(t *testing.T) {
	sys, _ := newTestSystem(t)
	key := pagetable.MakeLeaf(0, pagetable.V|pagetable.RSRV)
	if !sys.ReserveVirtual(0x3000000, 0x2000, key) {
		t.Fatal("first ReserveVirtual failed")
	}
	before := sys.Stats.Snapshot()["page_overlaps"]
	if !sys.ReserveVirtual(0x3000000, 0x1000, key) {
		t.Fatal("second ReserveVirtual failed")
	}
	after := sys.Stats.Snapshot()["page_overlaps"]
	if after != before+1 {
		t.Fatalf("page_overlaps = %d, want %d", after, before+1)
	}
}

func TestFreeVirtualSkipsAbsentEntriesQuickly(t *testing.T) {
	sys, _ := newTestSystem(t)
	// Freeing an entirely unreserved range must be a safe no-op.
	sys.FreeVirtual(0x4000000, 0x40000000)
	if sys.Stats.Snapshot()["committed"] != 0 {
		t.Fatal("freeing unreserved range touched committed")
	}
}

// TestReserveVirtualDoesNotClobberCommittedPage checks that reserving
// over a range that already has a committed (faulted-in) page leaves
// that page's entry, and the committed/reserved counters, untouched:
// only the PageOverlaps counter should move, once per already-valid
// page (the committed first page and the still-reserved second one).
func TestReserveVirtualDoesNotClobberCommittedPage(t *testing.T) {
	sys, m := newTestSystem(t)
	key := pagetable.MakeLeaf(0, pagetable.V|pagetable.RSRV)
	if !sys.ReserveVirtual(0x5000000, 0x2000, key) {
		t.Fatal("ReserveVirtual failed")
	}

	p := m.LookupAddress(0x5000000)
	if p == nil {
		t.Fatal("first touch failed")
	}
	p[0] = 0x7a
	leafBefore := m.FindPageTableEntry(0x5000000)

	before := sys.Stats.Snapshot()
	if !sys.ReserveVirtual(0x5000000, 0x2000, key) {
		t.Fatal("second ReserveVirtual failed")
	}
	after := sys.Stats.Snapshot()

	if after["committed"] != before["committed"] {
		t.Fatalf("committed changed: %d -> %d", before["committed"], after["committed"])
	}
	if after["reserved"] != before["reserved"] {
		t.Fatalf("reserved changed: %d -> %d", before["reserved"], after["reserved"])
	}
	if after["page_overlaps"] != before["page_overlaps"]+2 {
		t.Fatalf("page_overlaps = %d, want %d", after["page_overlaps"], before["page_overlaps"]+2)
	}

	leafAfter := m.FindPageTableEntry(0x5000000)
	if leafAfter != leafBefore {
		t.Fatalf("committed entry rewritten: %#x -> %#x", leafBefore, leafAfter)
	}
	if got := m.LookupAddress(0x5000000); got[0] != 0x7a {
		t.Fatalf("committed page contents lost: got %#x, want 0x7a", got[0])
	}
}

// TestReserveVirtualGrowthDoesNotDeadlock forces ReserveVirtual to
// grow the arena (via the page tables it allocates) while holding the
// System's lock. A reservation this large needs dozens of leaf PT
// tables, which blows well past the arena's initial 64 KiB growth
// while still inside ReserveVirtual's locked loop. Before the
// onGrow/invalidateAll path was split onto its own lock, this call
// would hang forever; here it must return promptly.
func TestReserveVirtualGrowthDoesNotDeadlock(t *testing.T) {
	sys := softmmu.NewSystem()
	key := pagetable.MakeLeaf(0, pagetable.V|pagetable.RSRV)

	done := make(chan bool, 1)
	go func() {
		done <- sys.ReserveVirtual(0x10000000, 0x4000000, key)
	}()

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("ReserveVirtual failed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ReserveVirtual deadlocked while growing the arena")
	}
}

// TestPageFaultGrowthDoesNotDeadlock forces a demand-paging fault to
// grow the arena past its initial capacity while FindPageTableEntry
// holds the System's lock, the same hazard as above but through the
// walker/pager path instead of ReserveVirtual.
func TestPageFaultGrowthDoesNotDeadlock(t *testing.T) {
	sys := softmmu.NewSystem()
	key := pagetable.MakeLeaf(0, pagetable.V|pagetable.RSRV)
	if !sys.ReserveVirtual(0x11000000, 0x100000, key) {
		t.Fatal("ReserveVirtual failed")
	}
	m := softmmu.NewMachine(sys, panicFaults{})

	done := make(chan bool, 1)
	go func() {
		ok := true
		for off := int64(0); off < 0x100000; off += pagetable.PGSIZE {
			if m.LookupAddress(0x11000000+off) == nil {
				ok = false
				break
			}
		}
		done <- ok
	}()

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("LookupAddress failed during demand paging")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("demand-paging fault deadlocked while growing the arena")
	}
}
