package softmmu

import (
	"softmmu/internal/arena"
	"softmmu/internal/pagetable"
	"softmmu/internal/stats"

	"golang.org/x/sys/unix"
)

// linearMap is the host-mapped linear arena: guest physical memory
// backed directly by an anonymous mmap instead of a grown []byte, so
// GetAddress can degenerate to a slice of the mapping itself instead
// of ever consulting the walker.
type linearMap struct {
	base []byte
}

// toHost returns the host slice for virtual address v when the linear
// mapping covers it: translation degenerates to host = guestBase +
// virt, with no bounds distinction between real/legacy/long mode,
// since the mapping is one flat identity map.
func (lm *linearMap) toHost(v int64) ([]byte, bool) {
	if v < 0 || int(v) >= len(lm.base) {
		return nil, false
	}
	return lm.base[v:], true
}

// NewLinearSystem creates a System whose guest RAM is a single
// anonymous mmap of size bytes rather than a grown []byte, so the
// linear-map shortcut is real instead of simulated. Everything else
// (page tables, TLB, region manager) behaves exactly as with
// NewSystem; the walker remains available as a fallback for addresses
// GetAddress's linear path doesn't cover, but an emulator enabling
// this mode is expected to size it to cover the whole guest address
// space it uses.
func NewLinearSystem(size int) (*System, error) {
	size = int(pagetable.PGSIZE) * ((size + pagetable.PGSIZE - 1) / pagetable.PGSIZE)
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}

	st := &stats.Memstat{}
	sys := &System{Stats: st}
	sys.real = arena.NewFromBuffer(buf, st, sys.invalidateAll)
	sys.linear = &linearMap{base: buf}
	return sys, nil
}

// HasLinearMapping reports whether sys was built with NewLinearSystem.
func (sys *System) HasLinearMapping() bool { return sys.linear != nil }

// Close unmaps the linear arena's backing memory. It is a no-op for a
// System built with plain NewSystem.
func (sys *System) Close() error {
	if sys.linear == nil {
		return nil
	}
	err := unix.Munmap(sys.linear.base)
	sys.linear = nil
	return err
}
