package softmmu

import (
	"softmmu/internal/pagetable"
	"softmmu/internal/memutil"
)

// ReserveVirtual populates the page table with reserved (claimed,
// uncommitted) entries covering [virt, virt+size), installing any
// missing intermediate tables along the way with the V|RW|US pattern.
// key is the template leaf entry (normally pagetable.V|pagetable.RSRV)
// stamped into every page. It reports success; on an allocation
// failure mid-walk, false is returned with whatever partial progress
// was already made left in place.
func (sys *System) ReserveVirtual(virt int64, size int, key pagetable.PTE) bool {
	size = memutil.Roundup(size, pagetable.PGSIZE)
	if !sys.ensureCr3() {
		return false
	}

	sys.mu.Lock()
	defer sys.mu.Unlock()

	v := virt
	remaining := size
	for remaining > 0 {
		tableOff, ok := sys.ensureWalk(v)
		if !ok {
			return false
		}

		leafTable := sys.table(tableOff)
		ti := pagetable.Index(v, 0)
		for ; ti < pagetable.Entries && remaining > 0; ti++ {
			if leafTable[ti].IsValid() {
				sys.Stats.PageOverlaps.Inc()
			} else {
				leafTable[ti] = key
				sys.Stats.Reserved.Inc()
			}
			v += pagetable.PGSIZE
			remaining -= pagetable.PGSIZE
		}
	}
	return true
}

// ensureWalk descends the three intermediate levels for virtual
// address v, allocating and installing any missing page table with
// the V|RW|US parent pattern, and returns the arena offset of the
// innermost (leaf-holding) table.
func (sys *System) ensureWalk(v int64) (pagetable.Addr, bool) {
	tableOff := sys.cr3
	for level := uint(3); level >= 1; level-- {
		table := sys.table(tableOff)
		idx := pagetable.Index(v, level)
		entry := &table[idx]
		if !entry.IsValid() {
			newOff, ok := sys.AllocateLinearPage()
			if !ok {
				return 0, false
			}
			// The allocation can grow and move the arena; re-fetch the
			// table so the install lands in the live buffer.
			entry = &sys.table(tableOff)[idx]
			*entry = pagetable.MakeLeaf(newOff, pagetable.ParentFlags)
			sys.Stats.Pagetables.Inc()
		}
		tableOff = entry.PhysAddr()
	}
	return tableOff, true
}

// FreeVirtual tears down the mappings covering [base, base+size),
// returning any committed backing pages to the Real-Free list and
// clearing reservations. Absent entries are skipped a whole level at
// a time (to the end of the absent entry's 512^level-page range)
// rather than page by page, since an absent higher-level entry proves
// the entire sub-range below it is unmapped. It always resets every attached Machine's TLB afterward.
func (sys *System) FreeVirtual(base int64, size int) {
	size = memutil.Roundup(size, pagetable.PGSIZE)

	sys.mu.Lock()
	v := base
	end := base + int64(size)
	for v < end {
		if sys.cr3 == 0 {
			break
		}
		tableOff := sys.cr3
		skipped := false
		for level := uint(3); level >= 1; level-- {
			table := sys.table(tableOff)
			idx := pagetable.Index(v, level)
			entry := table[idx]
			if !entry.IsValid() {
				span := int64(1) << (pagetable.PGSHIFT + 9*level)
				v = (v &^ (span - 1)) + span
				skipped = true
				break
			}
			tableOff = entry.PhysAddr()
		}
		if skipped {
			continue
		}

		leafTable := sys.table(tableOff)
		leafIdx := pagetable.Index(v, 0)
		entry := &leafTable[leafIdx]
		switch {
		case !entry.IsValid():
			// nothing mapped here
		case entry.IsReserved():
			sys.Stats.Reserved.Dec()
		default:
			sys.real2free(entry.PhysAddr())
			sys.Stats.Committed.Dec()
		}
		*entry = 0
		v += pagetable.PGSIZE
	}
	sys.mu.Unlock()

	sys.invalidateAll()
}

// real2free returns a committed page to the Real-Free list.
func (sys *System) real2free(off pagetable.Addr) {
	sys.real.AppendRealFree(int(off), pagetable.PGSIZE)
}

// FindVirtual scans upward from virt for a contiguous unmapped run of
// at least size bytes and returns its start address. It fails with
// ErrCrossedGuard once the scan passes the top of canonical address
// space (the 0x800000000000 canonical ceiling).
func (sys *System) FindVirtual(virt int64, size int) (int64, error) {
	size = memutil.Roundup(size, pagetable.PGSIZE)

	sys.mu.Lock()
	defer sys.mu.Unlock()

	v := virt
	start := virt
	got := 0
	for got < size {
		if v >= 0x800000000000 {
			return 0, ErrCrossedGuard
		}
		if sys.cr3 == 0 {
			got = size
			break
		}
		tableOff := sys.cr3
		holeBits := uint(0)
		mapped := true
		for level := uint(3); level >= 1; level-- {
			table := sys.table(tableOff)
			idx := pagetable.Index(v, level)
			entry := table[idx]
			if !entry.IsValid() {
				holeBits = pagetable.PGSHIFT + 9*level
				mapped = false
				break
			}
			tableOff = entry.PhysAddr()
		}
		if mapped {
			leafTable := sys.table(tableOff)
			leafIdx := pagetable.Index(v, 0)
			if leafTable[leafIdx].IsValid() {
				got = 0
				start = v + pagetable.PGSIZE
				v += pagetable.PGSIZE
				continue
			}
			holeBits = pagetable.PGSHIFT
		}
		// The hole runs from v to the end of the absent entry's range,
		// which is shorter than the full span when v is not aligned.
		span := int64(1) << holeBits
		holeSize := (v &^ (span - 1)) + span - v
		if got == 0 {
			start = v
		}
		got += int(memutil.Min(holeSize, int64(size-got)))
		v += holeSize
	}
	return start, nil
}
