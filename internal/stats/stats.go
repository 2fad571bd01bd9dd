// Package stats provides the atomically-updated counters the memory
// subsystem exposes as telemetry, plus a pprof-compatible exporter so
// the counters can be inspected with standard profiling tooling.
package stats

import (
	"io"
	"sync/atomic"

	"github.com/google/pprof/profile"
)

// Counter is a statistic that can be raised or lowered. All operations are
// safe for concurrent use, matching the single cross-thread contract
// the rest of the memory subsystem relies on (see Machine.invalidated).
type Counter struct {
	v int64
}

// Inc increments the counter by one.
func (c *Counter) Inc() { atomic.AddInt64(&c.v, 1) }

// Dec decrements the counter by one.
func (c *Counter) Dec() { atomic.AddInt64(&c.v, -1) }

// Add adds delta (which may be negative) to the counter.
func (c *Counter) Add(delta int64) { atomic.AddInt64(&c.v, delta) }

// Load returns the counter's current value.
func (c *Counter) Load() int64 { return atomic.LoadInt64(&c.v) }

// Memstat mirrors the System-wide allocator and TLB counters named in
// the data model: allocated, committed, freed, reserved, reclaimed,
// resizes, pagetables, page_overlaps, plus the TLB hit/miss tiers.
type Memstat struct {
	Allocated    Counter
	Committed    Counter
	Freed        Counter
	Reserved     Counter
	Reclaimed    Counter
	Resizes      Counter
	Pagetables   Counter
	PageOverlaps Counter
	TlbHits1     Counter
	TlbHits2     Counter
	TlbMisses    Counter
}

// named returns the (label, counter) pairs in a stable order, used by
// both Snapshot and Profile so the two views never drift apart.
func (m *Memstat) named() []struct {
	name string
	c    *Counter
} {
	return []struct {
		name string
		c    *Counter
	}{
		{"allocated", &m.Allocated},
		{"committed", &m.Committed},
		{"freed", &m.Freed},
		{"reserved", &m.Reserved},
		{"reclaimed", &m.Reclaimed},
		{"resizes", &m.Resizes},
		{"pagetables", &m.Pagetables},
		{"page_overlaps", &m.PageOverlaps},
		{"tlb_hits_1", &m.TlbHits1},
		{"tlb_hits_2", &m.TlbHits2},
		{"tlb_misses", &m.TlbMisses},
	}
}

// Snapshot returns the counters as a plain name->value map, handy for
// tests and for anything that doesn't want to link against pprof.
func (m *Memstat) Snapshot() map[string]int64 {
	out := make(map[string]int64, 11)
	for _, n := range m.named() {
		out[n.name] = n.c.Load()
	}
	return out
}

// Profile builds a pprof profile with one sample per counter, each
// carrying a "stat" label naming the counter. There is no call-stack
// information to attach (these are scalar counters, not allocation
// sites), so each Sample's Location list is left empty; pprof accepts
// that for label-only "counters" profiles.
func (m *Memstat) Profile() *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "count", Unit: "count"}},
	}
	for _, n := range m.named() {
		p.Sample = append(p.Sample, &profile.Sample{
			Value: []int64{n.c.Load()},
			Label: map[string][]string{"stat": {n.name}},
		})
	}
	return p
}

// WriteProfile serializes the counters as a gzip-compressed pprof
// profile to w.
func (m *Memstat) WriteProfile(w io.Writer) error {
	return m.Profile().Write(w)
}
