package softmmu

import "softmmu/internal/pagetable"

// FindPageTableEntry translates a page-aligned virtual address to its
// leaf page-table entry, walking PML4 -> PDPT -> PD -> PT. It returns
// the zero PTE (IsValid() == false) on any failure: address out of
// canonical range, an absent intermediate entry, or demand-paging
// failure.
func (m *Machine) FindPageTableEntry(v int64) pagetable.PTE {
	if m.invalidated.Load() {
		m.tlb.Reset()
		m.invalidated.Store(false)
	} else if leaf, ok := m.tlb.Probe(v >> pagetable.PGSHIFT); ok {
		return leaf
	}

	if !pagetable.InCanonicalRange(v) {
		return 0
	}

	sys := m.sys
	sys.mu.Lock()
	defer sys.mu.Unlock()

	if sys.cr3 == 0 {
		return 0
	}

	tableOff := sys.cr3
	for level := uint(3); level >= 1; level-- {
		table := sys.table(tableOff)
		idx := pagetable.Index(v, level)
		entry := table[idx]
		if !entry.IsValid() {
			return 0
		}
		tableOff = entry.PhysAddr()
	}

	leafTable := sys.table(tableOff)
	leafIdx := pagetable.Index(v, 0)
	leaf := leafTable[leafIdx]
	if !leaf.IsValid() {
		return 0
	}
	if leaf.IsReserved() {
		newLeaf, ok := sys.handlePageFault(&leafTable[leafIdx])
		if !ok {
			return 0
		}
		// The fault's allocation can grow and move the arena, leaving
		// leafTable pointing at the old buffer; store through a fresh view.
		sys.table(tableOff)[leafIdx] = newLeaf
		leaf = newLeaf
	}

	m.tlb.Insert(v>>pagetable.PGSHIFT, leaf)
	return leaf
}
