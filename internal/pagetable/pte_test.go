package pagetable

import "testing"

func TestMakeLeafRoundtrip(t *testing.T) {
	e := MakeLeaf(0x4000, V|RSRV)
	if e.PhysAddr() != 0x4000 {
		t.Fatalf("PhysAddr() = %#x, want 0x4000", e.PhysAddr())
	}
	if !e.IsValid() || !e.IsReserved() {
		t.Fatalf("flags lost: %#x", e)
	}
	if e.IsHostPointer() || e.IsMapped() {
		t.Fatalf("unexpected flags set: %#x", e)
	}
}

func TestWithoutReserved(t *testing.T) {
	e := MakeLeaf(0x8000, V|RSRV|HOST)
	e2 := e.WithoutReserved()
	if e2.IsReserved() {
		t.Fatalf("RSRV still set after WithoutReserved")
	}
	if !e2.IsValid() || !e2.IsHostPointer() {
		t.Fatalf("unrelated flags clobbered: %#x", e2)
	}
	if e2.PhysAddr() != e.PhysAddr() {
		t.Fatalf("address field changed")
	}
}

func TestIndexLevels(t *testing.T) {
	// Pick a virtual address whose 9-bit groups are all distinct so a
	// level/shift transposition bug shows up immediately.
	v := int64(1)<<39 | 2<<30 | 3<<21 | 4<<12
	if got := Index(v, 3); got != 1 {
		t.Fatalf("level 3 index = %d, want 1", got)
	}
	if got := Index(v, 2); got != 2 {
		t.Fatalf("level 2 index = %d, want 2", got)
	}
	if got := Index(v, 1); got != 3 {
		t.Fatalf("level 1 index = %d, want 3", got)
	}
	if got := Index(v, 0); got != 4 {
		t.Fatalf("level 0 index = %d, want 4", got)
	}
}

func TestCanonicalRange(t *testing.T) {
	cases := []struct {
		v  int64
		ok bool
	}{
		{0, true},
		{CanonicalLo, true},
		{CanonicalHi - 1, true},
		{CanonicalHi, false},
		{CanonicalLo - 1, false},
	}
	for _, c := range cases {
		if got := InCanonicalRange(c.v); got != c.ok {
			t.Errorf("InCanonicalRange(%#x) = %v, want %v", c.v, got, c.ok)
		}
	}
}
