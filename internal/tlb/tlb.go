// Package tlb implements the fixed-size translation cache the walker
// consults before doing a four-level page-table walk: a packed byte
// array of tags probed with a SWAR (SIMD-within-a-register) equality
// fold, plus a slot-0 fast path and a one-step bubble-promotion
// discipline on hit.
//
// Go has no portable 128-bit vector type in the standard library, and
// no dependency worth pulling in for a cache this narrow, so the
// 16-wide SIMD probe is expressed purely as the SWAR fallback — see
// DESIGN.md for the justification.
package tlb

import (
	"encoding/binary"
	"math/bits"

	"softmmu/internal/pagetable"
	"softmmu/internal/stats"
)

// Entries is the TLB size: a power of two, a multiple of 8 (one SWAR
// group), small enough that a linear group scan is cheap.
const Entries = 64

const groupSize = 8
const numGroups = Entries / groupSize

type slot struct {
	vpn  int64
	leaf pagetable.PTE
}

// TLB is the fixed-size translation cache.
// It is owned exclusively by one Machine; it is not safe for
// concurrent use.
type TLB struct {
	tags  [Entries]uint8
	slots [Entries]slot
	stats *stats.Memstat
}

// New returns an empty TLB reporting hits/misses into st.
func New(st *stats.Memstat) *TLB {
	return &TLB{stats: st}
}

func tagOf(vpn int64) uint8 { return uint8(vpn & 0xff) }

// Probe looks up the leaf entry for page-aligned virtual address v
// (already shifted right by PGSHIFT, i.e. a virtual page number). It
// reports the leaf entry and whether it was found.
func (t *TLB) Probe(vpn int64) (pagetable.PTE, bool) {
	if t.slots[0].leaf.IsValid() && t.slots[0].vpn == vpn {
		t.stats.TlbHits1.Inc()
		return t.slots[0].leaf, true
	}

	key := tagOf(vpn)
	for g := 0; g < numGroups; g++ {
		mask := swarEq(t.tagGroup(g), key)
		for mask != 0 {
			// highest set lane first, i.e. scan the group's slots
			// from its coldest (last) entry toward its hottest.
			lane := 7 - bits.LeadingZeros64(mask)/8
			bitpos := uint(lane) * 8
			j := g*groupSize + lane
			if t.slots[j].leaf.IsValid() && t.slots[j].vpn == vpn {
				t.promote(j)
				t.stats.TlbHits2.Inc()
				return t.slots[j].leaf, true
			}
			mask &^= uint64(0xff) << bitpos
		}
	}

	t.stats.TlbMisses.Inc()
	return 0, false
}

// tagGroup packs 8 consecutive tag bytes starting at group g into a
// little-endian uint64 for the SWAR compare.
func (t *TLB) tagGroup(g int) uint64 {
	return binary.LittleEndian.Uint64(t.tags[g*groupSize : g*groupSize+groupSize])
}

// swarEq folds per-byte equality between word and a broadcast key into
// bit 7 of each matching lane. This is the SIMD-within-a-register
// equality-fold trick: every matching lane is set, but the subtraction's
// borrow can also set a non-matching lane directly above a matching
// one, so a set lane is a candidate that Probe confirms with a full
// vpn compare.
func swarEq(word uint64, key byte) uint64 {
	const lsb = 0x0101010101010101
	const msb = 0x8080808080808080
	k := uint64(key) * lsb
	x := word ^ k
	return (x - lsb) &^ x & msb
}

// promote performs the one-step bubble toward the hot end: slot j is
// swapped with slot j-1. Slot 0 stays untouched by this path since a
// slot-0 hit returns directly in Probe.
func (t *TLB) promote(j int) {
	if j == 0 {
		return
	}
	t.slots[j], t.slots[j-1] = t.slots[j-1], t.slots[j]
	t.tags[j], t.tags[j-1] = t.tags[j-1], t.tags[j]
}

// Insert always lands in the coldest slot; repeated hits bubble a page
// toward slot 0 over time.
func (t *TLB) Insert(vpn int64, leaf pagetable.PTE) {
	last := Entries - 1
	t.slots[last] = slot{vpn: vpn, leaf: leaf}
	t.tags[last] = tagOf(vpn)
}

// Reset invalidates every entry, e.g. after an arena reallocation
// moves the backing buffer or an explicit region-manager invalidation.
func (t *TLB) Reset() {
	for i := range t.slots {
		t.slots[i] = slot{}
		t.tags[i] = 0
	}
}
