package softmmu

import (
	"unsafe"

	"softmmu/internal/pagetable"
)

// ptrOf reinterprets a page-sized byte slice as a *Table. b must be
// exactly pagetable.PGSIZE bytes and 8-byte aligned, which every
// caller guarantees by only ever calling this on arena-allocated
// pages.
func ptrOf(b []byte) *pagetable.Table {
	if len(b) < pagetable.PGSIZE {
		panic("page slice too small")
	}
	return (*pagetable.Table)(unsafe.Pointer(&b[0]))
}
