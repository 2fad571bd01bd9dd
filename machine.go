package softmmu

import (
	"sync/atomic"

	"softmmu/internal/stats"
	"softmmu/internal/tlb"
)

// stashCap bounds the bounce buffer used to make a cross-page operand
// look contiguous. No x86 operand the decoder can produce (general
// purpose, SSE, or AVX-512) exceeds 64 bytes; this is sized generously
// above that so a single reservation never has to grow.
const stashCap = 512

// opcache holds per-instruction scratch state, most notably the
// bounce buffer ("stash") used by ReserveAddress/CommitStash.
type opcache struct {
	stash [stashCap]byte

	stashaddr     int64 // 0 means "no stash in flight"
	stashsize     int
	stashwritable bool
	stashp        [2][]byte // the two guest halves CommitStash scatters into
}

// Machine is one emulated hart: register file (the parts the memory
// subsystem cares about), its containing System, per-instruction
// scratch state, and its own TLB.
type Machine struct {
	sys   *System
	tlb   *tlb.TLB
	stats *stats.Memstat

	op opcache

	// invalidated is the sole cross-thread contract: any agent sharing
	// this Machine's System may set it at any time; this Machine
	// observes it at its next TLB probe and flushes.
	invalidated atomic.Bool

	// last accessed guest memory region, for the tracer/debugger.
	readaddr, readsize   int64
	writeaddr, writesize int64

	// segment bases and string-op index registers.
	es, cs, ss, ds, fs, gs int64
	si, di                 uint64

	// freelist holds heap buffers returned by LoadStr/LoadStrList,
	// released (eligible for GC) on FreeMachine.
	freelist [][]byte

	fault FaultHandler
}

// NewMachine creates a Machine attached to sys. fault receives the
// non-returning fault signals the memory subsystem itself never
// decides how to handle.
func NewMachine(sys *System, fault FaultHandler) *Machine {
	m := &Machine{
		sys:   sys,
		tlb:   tlb.New(sys.Stats),
		stats: sys.Stats,
		fault: fault,
	}
	sys.attach(m)
	return m
}

// FreeMachine releases m's resources: it detaches m from its System
// and drops the freelist. It never touches System-owned state (the
// arena) at all — see DESIGN.md's note on a use-after-free ordering
// bug this design makes structurally impossible: a Machine never owns
// or frees its System.
func FreeMachine(m *Machine) {
	m.sys.detach(m)
	m.freelist = nil
}

// ResetMem clears a Machine's memory-subsystem state: TLB, stash, and
// the last-accessed tracer window. It does not touch the System (page
// tables, arena) that Reset-the-CPU-then-Reset-the-Memory semantics
// leave to a System-level reset.
func (m *Machine) ResetMem() {
	m.tlb.Reset()
	m.op = opcache{}
	m.readaddr, m.readsize = 0, 0
	m.writeaddr, m.writesize = 0, 0
	m.invalidated.Store(false)
}

// SetSegments installs the Machine's segment-register bases, read via
// the register file by the (out-of-scope) CPU core.
func (m *Machine) SetSegments(es, cs, ss, ds, fs, gs int64) {
	m.es, m.cs, m.ss, m.ds, m.fs, m.gs = es, cs, ss, ds, fs, gs
}

// SetIndexRegisters installs the SI/DI string-op index registers.
func (m *Machine) SetIndexRegisters(si, di uint64) {
	m.si, m.di = si, di
}

// SetReadAddr records the last guest memory region read, for the
// tracer/debugger.
func (m *Machine) SetReadAddr(addr int64, size int64) {
	m.readaddr, m.readsize = addr, size
}

// SetWriteAddr records the last guest memory region written, for the
// tracer/debugger.
func (m *Machine) SetWriteAddr(addr int64, size int64) {
	m.writeaddr, m.writesize = addr, size
}

// ReadAddr returns the last recorded read window.
func (m *Machine) ReadAddr() (addr, size int64) { return m.readaddr, m.readsize }

// WriteAddr returns the last recorded write window.
func (m *Machine) WriteAddr() (addr, size int64) { return m.writeaddr, m.writesize }

// freelistLen reports the number of heap buffers LoadStr/LoadStrList
// has attached to this Machine's lifetime.
func (m *Machine) freelistLen() int { return len(m.freelist) }
