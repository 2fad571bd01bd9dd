package softmmu

import (
	"softmmu/internal/memutil"
	"softmmu/internal/pagetable"
)

// realModeLimit is the 4 GiB ceiling below which LookupAddress takes
// the flat real-mode shortcut: guest offset == arena offset, no
// paging at all.
const realModeLimit = int64(1) << 32

// LookupAddress translates a virtual address to a host-accessible
// slice running from that address to the end of its containing page
// (or, on the real-mode fast path, to the end of committed RAM). It
// returns nil on any translation failure: address out of range, an
// absent page-table entry, or demand-paging failure.
func (m *Machine) LookupAddress(v int64) []byte {
	if v >= 0 && v < realModeLimit && v < int64(m.sys.real.Len()) {
		return m.sys.bytes(pagetable.Addr(v), m.sys.real.Len()-int(v))
	}

	aligned := v &^ int64(pagetable.PGOFFSET)
	leaf := m.FindPageTableEntry(aligned)
	if !leaf.IsValid() {
		return nil
	}

	pgoff := int(v) & pagetable.PGOFFSET
	page := m.sys.bytes(leaf.PhysAddr(), pagetable.PGSIZE)
	return page[pgoff:]
}

// GetAddress is LookupAddress, except that when sys was built with
// NewLinearSystem the host-mapped linear arena answers directly and
// the walker is never consulted.
func (m *Machine) GetAddress(v int64) []byte {
	if lm := m.sys.linear; lm != nil {
		if h, ok := lm.toHost(v); ok {
			return h
		}
	}
	return m.LookupAddress(v)
}

// ResolveAddress is GetAddress, escalated to a (conceptually
// non-returning) segmentation fault on failure. A real fault handler
// is never expected to return control here; this function still returns nil afterward so the Go
// control flow stays well-defined, but callers must not make further
// use of a nil result beyond propagating the failure upward.
func (m *Machine) ResolveAddress(v int64) []byte {
	if h := m.GetAddress(v); h != nil {
		return h
	}
	m.fault.SegFault(m, v)
	return nil
}

// AccessRam is the explicit two-page access form. When the n-byte
// access at v fits within one page, it returns the direct host slice
// and p is left untouched. Otherwise it resolves both halves into p,
// optionally pre-copying their current contents into tmp (the
// read-before-write step BeginLoadStore and ReserveAddress both
// need), and reports ok=false only on a translation failure in either
// half.
func (m *Machine) AccessRam(v int64, n int, p *[2][]byte, tmp []byte, precopy bool) (direct []byte, ok bool) {
	pgoff := int(v) & pagetable.PGOFFSET
	k := int(memutil.Min(int64(pagetable.PGSIZE-pgoff), int64(n)))
	if k == n {
		h := m.ResolveAddress(v)
		if h == nil {
			return nil, false
		}
		return h[:n], true
	}

	// ReserveAddress's cross-page path calls through here too, so this
	// single increment covers both call sites without double-counting.
	m.stats.PageOverlaps.Inc()

	h1 := m.ResolveAddress(v)
	if h1 == nil {
		return nil, false
	}
	h2 := m.ResolveAddress(v + int64(k))
	if h2 == nil {
		return nil, false
	}
	// Faulting in the second page can grow and move the arena, leaving
	// h1 pointing at the old buffer; resolve the first half again.
	if h1 = m.ResolveAddress(v); h1 == nil {
		return nil, false
	}
	p[0] = h1[:k]
	p[1] = h2[:n-k]
	if precopy && tmp != nil {
		copy(tmp[:k], p[0])
		copy(tmp[k:n], p[1])
	}
	return nil, true
}

// Load reads n bytes of guest memory at v into a contiguous buffer,
// recording the access in the tracer's read window. It returns nil on
// translation failure.
func (m *Machine) Load(v int64, n int) []byte {
	m.SetReadAddr(v, int64(n))
	var p [2][]byte
	tmp := make([]byte, n)
	if direct, ok := m.AccessRam(v, n, &p, tmp, true); ok {
		if direct != nil {
			return direct
		}
		return tmp
	}
	return nil
}

// LoadNp is Load, except a null guest pointer (v == 0) is a no-op that
// returns nil without touching the tracer window, matching the
// sentinel convention some syscalls rely on for optional pointers.
func (m *Machine) LoadNp(v int64, n int) []byte {
	if v == 0 {
		return nil
	}
	return m.Load(v, n)
}

// BeginStore resolves the n-byte destination at v for a pure write:
// no pre-copy, since the caller is about to overwrite every byte. It
// returns the direct slice when the store fits one page (p is
// untouched) or nil plus a populated p for a caller that must now
// write into p[0] and p[1] and follow up with EndStore.
func (m *Machine) BeginStore(v int64, n int) (direct []byte, p [2][]byte, ok bool) {
	m.SetWriteAddr(v, int64(n))
	direct, ok = m.AccessRam(v, n, &p, nil, false)
	return
}

// BeginStoreNp is BeginStore, skipped entirely for a null guest
// pointer.
func (m *Machine) BeginStoreNp(v int64, n int) (direct []byte, p [2][]byte, ok bool) {
	if v == 0 {
		return nil, [2][]byte{}, true
	}
	return m.BeginStore(v, n)
}

// BeginLoadStore resolves the n-byte destination at v for a
// read-modify-write: tmp is pre-filled with the current guest bytes
// so a caller can modify a subset of them before the matching
// EndStore scatters the result back.
func (m *Machine) BeginLoadStore(v int64, n int) (direct []byte, p [2][]byte, tmp []byte, ok bool) {
	m.SetReadAddr(v, int64(n))
	m.SetWriteAddr(v, int64(n))
	tmp = make([]byte, n)
	direct, ok = m.AccessRam(v, n, &p, tmp, true)
	return
}

// EndStore completes a cross-page store begun by BeginStore or
// BeginLoadStore: b's first k = min(n, 4096-(v&4095)) bytes scatter to
// p[0], the rest to p[1]. It is a no-op when p holds no halves (the
// access was direct and already written in place).
func (m *Machine) EndStore(v int64, n int, p [2][]byte, b []byte) {
	if p[0] == nil && p[1] == nil {
		return
	}
	pgoff := int(v) & pagetable.PGOFFSET
	k := int(memutil.Min(int64(pagetable.PGSIZE-pgoff), int64(n)))
	copy(p[0], b[:k])
	copy(p[1], b[k:n])
}

// EndStoreNp is EndStore, skipped for a null guest pointer.
func (m *Machine) EndStoreNp(v int64, n int, p [2][]byte, b []byte) {
	if v == 0 {
		return
	}
	m.EndStore(v, n, p, b)
}

// ReserveAddress resolves an n-byte, possibly-unaligned write target
// at v. When it fits within one page, the direct host slice is
// returned. Otherwise a bounce is staged: the Machine's stash is
// seeded with the current guest bytes (so a caller that only
// overwrites part of the operand doesn't clobber the rest), and the
// stash slice is returned for the caller to write into as if it were
// contiguous guest memory. CommitStash later scatters it back.
func (m *Machine) ReserveAddress(v int64, n int, writable bool) []byte {
	pgoff := int(v) & pagetable.PGOFFSET
	if pgoff+n <= pagetable.PGSIZE {
		return m.ResolveAddress(v)
	}

	var p [2][]byte
	tmp := m.op.stash[:n]
	if _, ok := m.AccessRam(v, n, &p, tmp, true); !ok {
		return nil
	}
	m.op.stashaddr = v
	m.op.stashsize = n
	m.op.stashwritable = writable
	m.op.stashp = p
	return tmp
}

// CommitStash, called at instruction retire, scatters an in-flight
// writable stash back to guest memory and clears it. A read-only or
// absent stash is a no-op.
func (m *Machine) CommitStash() {
	if m.op.stashaddr == 0 {
		return
	}
	if m.op.stashwritable {
		m.EndStore(m.op.stashaddr, m.op.stashsize, m.op.stashp, m.op.stash[:m.op.stashsize])
	}
	m.op.stashaddr = 0
	m.op.stashsize = 0
	m.op.stashwritable = false
	m.op.stashp = [2][]byte{}
}
