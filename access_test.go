package softmmu_test

import (
	"bytes"
	"testing"

	"softmmu/internal/pagetable"
)

func TestBeginStoreEndStoreCrossPage(t *testing.T) {
	sys, m := newTestSystem(t)
	key := pagetable.MakeLeaf(0, pagetable.V|pagetable.RSRV)
	if !sys.ReserveVirtual(0xc00000, 0x2000, key) {
		t.Fatal("ReserveVirtual failed")
	}

	v := int64(0xc00000 + pagetable.PGSIZE - 3)
	direct, p, ok := m.BeginStore(v, 6)
	if !ok {
		t.Fatal("BeginStore failed")
	}
	if direct != nil {
		t.Fatal("expected a cross-page split, got a direct slice")
	}
	m.EndStore(v, 6, p, []byte("XYZABC"))

	lo := m.LookupAddress(v)
	hi := m.LookupAddress(int64(0xc00000 + pagetable.PGSIZE))
	if !bytes.Equal(lo[:3], []byte("XYZ")) {
		t.Fatalf("low half = %q, want XYZ", lo[:3])
	}
	if !bytes.Equal(hi[:3], []byte("ABC")) {
		t.Fatalf("high half = %q, want ABC", hi[:3])
	}
}

func TestBeginStoreDirectFitsOnePage(t *testing.T) {
	sys, m := newTestSystem(t)
	key := pagetable.MakeLeaf(0, pagetable.V|pagetable.RSRV)
	if !sys.ReserveVirtual(0xd00000, 0x1000, key) {
		t.Fatal("ReserveVirtual failed")
	}

	direct, _, ok := m.BeginStore(0xd00000, 8)
	if !ok || direct == nil {
		t.Fatal("expected a direct slice for a single-page store")
	}
	copy(direct, []byte("12345678"))
	if !bytes.Equal(m.LookupAddress(0xd00000)[:8], []byte("12345678")) {
		t.Fatal("direct store not visible")
	}
}

func TestLoadNpAndBeginStoreNpSkipNullPointer(t *testing.T) {
	_, m := newTestSystem(t)
	if got := m.LoadNp(0, 8); got != nil {
		t.Fatalf("LoadNp(0) = %v, want nil", got)
	}
	direct, _, ok := m.BeginStoreNp(0, 8)
	if !ok || direct != nil {
		t.Fatalf("BeginStoreNp(0) = (%v, %v), want (nil, true)", direct, ok)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	sys, m := newTestSystem(t)
	key := pagetable.MakeLeaf(0, pagetable.V|pagetable.RSRV)
	if !sys.ReserveVirtual(0xe00000, 0x2000, key) {
		t.Fatal("ReserveVirtual failed")
	}

	v := int64(0xe00000 + pagetable.PGSIZE - 2)
	if !m.CopyToUser(v, []byte("QRST"), 4) {
		t.Fatal("CopyToUser failed")
	}
	got := m.Load(v, 4)
	if !bytes.Equal(got, []byte("QRST")) {
		t.Fatalf("Load = %q, want QRST", got)
	}
}
