package softmmu

import "softmmu/internal/pagetable"

// handlePageFault promotes a reserved-but-uncommitted leaf entry to a
// committed one: allocate a fresh zero-filled page, build a new entry
// whose address and HOST|MAP flags come from that page and whose
// remaining flags come from the old entry minus RSRV, and store it
// back. Allocation failure leaves *entry untouched and returns false,
// so the reservation survives for a later retry.
func (sys *System) handlePageFault(entry *pagetable.PTE) (pagetable.PTE, bool) {
	old := *entry
	newOff, ok := sys.AllocateLinearPage()
	if !ok {
		return 0, false
	}
	flags := (old.Flags() &^ pagetable.RSRV) | pagetable.HOST | pagetable.MAP
	newEntry := pagetable.MakeLeaf(newOff, flags)
	*entry = newEntry
	sys.Stats.Reserved.Dec()
	return newEntry, true
}
