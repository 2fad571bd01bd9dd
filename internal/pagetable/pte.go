// Package pagetable defines the bit-exact layout of a single
// four-level x86-64 page-table entry and the small accessor set that
// keeps callers from hand-rolling mask-and-shift at every call site.
package pagetable

// PGSHIFT is the base-2 exponent of the page size.
const PGSHIFT = 12

// PGSIZE is the size of a single page in bytes.
const PGSIZE = 1 << PGSHIFT

// PGOFFSET masks the in-page offset of an address.
const PGOFFSET = PGSIZE - 1

// PGMASK masks the page-aligned part of an address.
const PGMASK = ^uint64(PGOFFSET)

// Entries is the fan-out of a single table level (9 index bits).
const Entries = 512

// Addr is a physical address or arena offset. It is always page-aligned
// when stored in a PTE's address field.
type Addr uint64

// PTE is one 64-bit page-table entry. Bits 12..47 carry the address
// field (PAGE_TA); the low bits carry flags.
type PTE uint64

// Flag bits packed into a PTE.
const (
	V    PTE = 1 << 0 // valid / present
	RW   PTE = 1 << 1 // writable (used for parent-table installs)
	US   PTE = 1 << 2 // user-accessible (used for parent-table installs)
	RSRV PTE = 1 << 3 // reservation pending, no backing page yet
	HOST PTE = 1 << 4 // address field is a host pointer, not an arena offset
	MAP  PTE = 1 << 5 // page has been host-mapped
)

// ParentFlags is the "| 7" pattern (V|RW|US) used to install a
// non-leaf page-table entry.
const ParentFlags = V | RW | US

// addrMask covers the physical-address field, bits 12..47.
const addrMask = PTE(0x0000fffffffff000)

// IsValid reports whether the entry's V bit is set. A walker must
// never follow an entry for which this is false.
func (e PTE) IsValid() bool { return e&V != 0 }

// IsReserved reports whether the entry is reserved-but-uncommitted.
func (e PTE) IsReserved() bool { return e&RSRV != 0 }

// IsHostPointer reports whether the entry's address field is a host
// pointer rather than an arena offset.
func (e PTE) IsHostPointer() bool { return e&HOST != 0 }

// IsMapped reports whether the page has been host-mapped.
func (e PTE) IsMapped() bool { return e&MAP != 0 }

// PhysAddr extracts the address field (PAGE_TA) of the entry.
func (e PTE) PhysAddr() Addr { return Addr(e & addrMask) }

// WithoutReserved returns e with the RSRV bit cleared, used by the
// demand-pager when it promotes a reservation to a committed mapping.
func (e PTE) WithoutReserved() PTE { return e &^ RSRV }

// Flags returns the non-address bits of the entry.
func (e PTE) Flags() PTE { return e &^ PTE(addrMask) }

// MakeLeaf builds a leaf PTE from a physical/host address and flags.
// addr must already be page-aligned; callers that violate this get a
// silently-truncated address, which is a programmer error, not a
// runtime condition worth a recoverable error return.
func MakeLeaf(addr Addr, flags PTE) PTE {
	return PTE(addr)&addrMask | (flags &^ PTE(addrMask))
}

// Table is one page-table level: 512 eight-byte entries, exactly one
// host page (PGSIZE bytes).
type Table [Entries]PTE

// Index returns the 9-bit index into a table at the given level for
// virtual address v. Level 3 is PML4 (shift 39), level 0 is the PT
// (shift 12).
func Index(v int64, level uint) uint64 {
	shift := PGSHIFT + 9*level
	return (uint64(v) >> shift) & 0x1ff
}

// CanonicalLo is the lowest canonical 48-bit virtual address (-2^47).
const CanonicalLo = -(int64(1) << 47)

// CanonicalHi is one past the highest canonical 48-bit virtual address (2^47).
const CanonicalHi = int64(1) << 47

// InCanonicalRange reports whether v lies in [-2^47, 2^47), the range
// the walker accepts.
func InCanonicalRange(v int64) bool {
	return v >= CanonicalLo && v < CanonicalHi
}
