package softmmu

import (
	"io"
	"sync"

	"github.com/google/pprof/profile"

	"softmmu/internal/arena"
	"softmmu/internal/pagetable"
	"softmmu/internal/stats"
)

// System is shared by all Machines of one emulation: the Physical
// Arena, the root page table (cr3), the Real-Free list (folded into
// the arena), and the memstat counters. Page tables are shared address
// space for every Machine attached to this System, matching threads of
// one guest process sharing memory.
type System struct {
	mu sync.Mutex

	real *arena.Arena
	cr3  pagetable.Addr // 0 means "no page tables yet"

	Stats *stats.Memstat

	// machinesMu guards machines independently of mu: invalidateAll
	// runs as a callback from inside the arena while mu may already be
	// held (a page fault or ReserveVirtual growing the arena), and
	// sync.Mutex is not reentrant. Keeping the attached-machines list
	// under its own lock means invalidateAll never needs mu.
	machinesMu sync.Mutex
	machines   []*Machine

	linear *linearMap // non-nil when the host-mapped linear shortcut is enabled
}

// NewSystem creates a System with a plain heap-backed arena. The
// walker is always consulted; there is no linear-map shortcut.
func NewSystem() *System {
	st := &stats.Memstat{}
	sys := &System{Stats: st}
	sys.real = arena.New(st, sys.invalidateAll)
	return sys
}

// invalidateAll sets every attached Machine's invalidated flag. It is
// the callback the arena and region manager use whenever a change
// could stale another Machine's TLB or cached host pointers: an arena
// reallocation moves every offset-derived pointer, and a page-table
// edit can change translations the TLB has cached.
func (sys *System) invalidateAll() {
	sys.machinesMu.Lock()
	ms := sys.machines
	sys.machinesMu.Unlock()
	for _, m := range ms {
		m.invalidated.Store(true)
	}
}

func (sys *System) attach(m *Machine) {
	sys.machinesMu.Lock()
	sys.machines = append(sys.machines, m)
	sys.machinesMu.Unlock()
}

func (sys *System) detach(m *Machine) {
	sys.machinesMu.Lock()
	defer sys.machinesMu.Unlock()
	for i, om := range sys.machines {
		if om == m {
			sys.machines = append(sys.machines[:i], sys.machines[i+1:]...)
			return
		}
	}
}

// ReserveReal pre-grows the arena's backing capacity to at least n
// bytes, reporting success.
func (sys *System) ReserveReal(n int) bool {
	return sys.real.ReserveReal(n)
}

// AllocateLinearPageRaw allocates an uninitialized 4 KiB page from the
// arena, reusing the free list first. It reports the page's arena
// offset and whether allocation succeeded.
func (sys *System) AllocateLinearPageRaw() (pagetable.Addr, bool) {
	off, ok := sys.real.AllocateLinearPageRaw()
	return pagetable.Addr(off), ok
}

// AllocateLinearPage is AllocateLinearPageRaw plus a zero-fill.
func (sys *System) AllocateLinearPage() (pagetable.Addr, bool) {
	off, ok := sys.real.AllocateLinearPage()
	return pagetable.Addr(off), ok
}

// bytes returns the n-byte slice of guest RAM at the given arena
// offset.
func (sys *System) bytes(off pagetable.Addr, n int) []byte {
	return sys.real.Bytes(int(off), n)
}

// Cr3 returns the current root page-table pointer (0 if none).
func (sys *System) Cr3() pagetable.Addr { return sys.cr3 }

// ensureCr3 allocates the root page table on first use.
func (sys *System) ensureCr3() bool {
	if sys.cr3 != 0 {
		return true
	}
	off, ok := sys.AllocateLinearPage()
	if !ok {
		return false
	}
	sys.cr3 = off
	sys.Stats.Pagetables.Inc()
	return true
}

// table returns the Table stored at the given arena offset.
func (sys *System) table(off pagetable.Addr) *pagetable.Table {
	b := sys.bytes(off, pagetable.PGSIZE)
	return (*pagetable.Table)(ptrOf(b))
}

// Profile exports the allocator and TLB counters as a pprof profile,
// one sample per counter.
func (sys *System) Profile() *profile.Profile {
	return sys.Stats.Profile()
}

// WriteProfile serializes Profile() to w.
func (sys *System) WriteProfile(w io.Writer) error {
	return sys.Stats.WriteProfile(w)
}
