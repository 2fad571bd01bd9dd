// Package arena implements the growable byte buffer that backs guest
// physical memory ("guest RAM"): a bump-pointer allocator over a
// []byte, with a coalescing free list for reclaimed pages.
//
// Allocator shape: reuse from a free list, else bump a watermark and
// grow. Simplified for a single-owner model: no per-CPU free lists, no
// page refcounting (pages here are always owned by exactly one
// reservation, never shared).
package arena

import (
	"softmmu/internal/pagetable"
	"softmmu/internal/stats"
)

const pageSize = pagetable.PGSIZE

// minGrow is the smallest amount an empty arena grows by.
const minGrow = 64 * 1024

// chunk is a node in the Real-Free list: a run of length bytes of
// reclaimed, 4 KiB-aligned pages starting at offset.
type chunk struct {
	offset int
	length int
	next   *chunk
}

// Arena is the Physical Arena: guest RAM as a contiguous, growable
// host buffer. It is not safe for concurrent mutation; callers holding
// a System must serialize arena growth externally.
type Arena struct {
	buf      []byte
	watermark int // real.i: high watermark, multiple of PGSIZE
	free     *chunk

	stats *stats.Memstat

	// onGrow is invoked whenever the backing buffer is reallocated,
	// i.e. every previously returned offset-derived pointer into buf
	// is invalidated. The TLB must be reset in response.
	onGrow func()
}

// New creates an empty arena reporting into st, which must not be nil.
// onGrow, if non-nil, is called after every reallocation of the
// backing buffer.
func New(st *stats.Memstat, onGrow func()) *Arena {
	return &Arena{stats: st, onGrow: onGrow}
}

// NewFromBuffer creates an arena whose backing store is buf itself
// rather than a grown []byte, used when the caller has already
// obtained host memory some other way (an mmap'd linear mapping, for
// instance) and wants the bump/free-list allocator on top of it
// without a second copy of guest RAM.
func NewFromBuffer(buf []byte, st *stats.Memstat, onGrow func()) *Arena {
	return &Arena{buf: buf[:0:cap(buf)], stats: st, onGrow: onGrow}
}

// Cap returns the arena's current capacity in bytes (real.n).
func (a *Arena) Cap() int { return cap(a.buf) }

// Len returns the current high watermark (real.i).
func (a *Arena) Len() int { return a.watermark }

// Bytes returns the n-byte slice of guest RAM at offset off. Both
// bounds and alignment are the caller's responsibility to have
// established via a successful allocation; this is a thin,
// panic-on-violation accessor, not a validating one.
func (a *Arena) Bytes(off int, n int) []byte {
	return a.buf[off : off+n]
}

// ReserveReal ensures the arena can grow to at least n bytes of total
// capacity without a further reallocation, growing immediately if
// needed. It reports whether the reservation succeeded.
func (a *Arena) ReserveReal(n int) bool {
	if cap(a.buf) >= n {
		return true
	}
	return a.growTo(n)
}

// growTo grows the backing buffer's capacity to at least n bytes,
// following the 1.5x-or-64KiB growth rule, and notifies onGrow since
// every previously handed-out slice into a.buf is now stale.
func (a *Arena) growTo(n int) bool {
	newCap := cap(a.buf) * 3 / 2
	if newCap < n {
		newCap = n
	}
	if newCap < minGrow {
		newCap = minGrow
	}
	newCap = roundup(newCap, pageSize)

	nb := make([]byte, len(a.buf), newCap)
	copy(nb, a.buf)
	a.buf = nb
	a.stats.Resizes.Inc()
	if a.onGrow != nil {
		a.onGrow()
	}
	return true
}

func roundup(v, b int) int {
	return (v + b - 1) / b * b
}

// AllocateLinearPageRaw returns the offset of a fresh, uninitialized
// 4 KiB page, reusing the free list before growing. It returns
// (0, false) only if growth failed, which cannot happen for an
// in-memory []byte short of an actual OOM panic from make(); the bool
// return exists to mirror the C allocator's -1 sentinel contract for
// callers built against it.
func (a *Arena) AllocateLinearPageRaw() (int, bool) {
	if off, ok := a.reuse(); ok {
		a.stats.Committed.Inc()
		return off, true
	}
	off := a.watermark
	needed := off + pageSize
	if needed > len(a.buf) {
		if !a.ReserveReal(needed) {
			return 0, false
		}
	}
	a.buf = a.buf[:needed]
	a.watermark = needed
	a.stats.Allocated.Inc()
	a.stats.Committed.Inc()
	return off, true
}

// AllocateLinearPage is AllocateLinearPageRaw plus a zero-fill.
func (a *Arena) AllocateLinearPage() (int, bool) {
	off, ok := a.AllocateLinearPageRaw()
	if !ok {
		return 0, false
	}
	clear(a.buf[off : off+pageSize])
	return off, true
}

func (a *Arena) reuse() (int, bool) {
	if a.free == nil {
		return 0, false
	}
	head := a.free
	off := head.offset
	head.offset += pageSize
	head.length -= pageSize
	if head.length == 0 {
		a.free = head.next
	}
	a.stats.Reclaimed.Inc()
	a.stats.Freed.Dec()
	return off, true
}

// AppendRealFree returns a 4 KiB-aligned run of length bytes at offset
// to the free list, coalescing with the head chunk only — it never
// scans the rest of the list looking for a further merge.
func (a *Arena) AppendRealFree(offset, length int) {
	if length == 0 {
		return
	}
	if a.free != nil && a.free.offset+a.free.length == offset {
		a.free.length += length
	} else if a.free != nil && offset+length == a.free.offset {
		a.free.offset = offset
		a.free.length += length
	} else {
		a.free = &chunk{offset: offset, length: length, next: a.free}
	}
	a.stats.Freed.Add(int64(length / pageSize))
}
