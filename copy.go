package softmmu

import (
	"softmmu/internal/memutil"
	"softmmu/internal/pagetable"
)

// VirtualCopy copies n bytes between a guest address v and a host
// buffer b, one page-bounded chunk at a time: the first chunk is
// min(n, 4096-(v&4095)) bytes, every subsequent chunk up to a full
// page. toGuest selects the direction: true copies b into guest
// memory, false copies guest memory into b. It reports false on the
// first translation failure, with any earlier chunks already applied.
func (m *Machine) VirtualCopy(v int64, b []byte, n int, toGuest bool) bool {
	done := 0
	for done < n {
		pgoff := int(v) & pagetable.PGOFFSET
		chunk := int(memutil.Min(int64(pagetable.PGSIZE-pgoff), int64(n-done)))

		h := m.ResolveAddress(v)
		if h == nil {
			return false
		}
		if toGuest {
			copy(h[:chunk], b[done:done+chunk])
		} else {
			copy(b[done:done+chunk], h[:chunk])
		}

		v += int64(chunk)
		done += chunk
	}
	return true
}

// CopyFromUser copies n bytes of guest memory at v into dst.
func (m *Machine) CopyFromUser(v int64, dst []byte, n int) bool {
	return m.VirtualCopy(v, dst, n, false)
}

// CopyFromUserRead is CopyFromUser plus a tracer read-window update.
func (m *Machine) CopyFromUserRead(v int64, dst []byte, n int) bool {
	m.SetReadAddr(v, int64(n))
	return m.CopyFromUser(v, dst, n)
}

// CopyToUser copies n bytes from src into guest memory at v.
func (m *Machine) CopyToUser(v int64, src []byte, n int) bool {
	return m.VirtualCopy(v, src, n, true)
}

// CopyToUserWrite is CopyToUser plus a tracer write-window update.
func (m *Machine) CopyToUserWrite(v int64, src []byte, n int) bool {
	m.SetWriteAddr(v, int64(n))
	return m.CopyToUser(v, src, n)
}

// loadStrGrow is the increment LoadStr/LoadStrList grow their heap
// buffers by once the zero-copy fast path misses.
const loadStrGrow = pagetable.PGSIZE

// LoadStr returns a host-accessible, NUL-terminated copy of the guest
// C string at addr. When the terminator lies within the first page
// touched, the direct host slice is returned with no copy and the
// access is recorded in the tracer window. Otherwise a growing heap
// buffer is built page by page, appended to the Machine's freelist
// (so it outlives this call for as long as the Machine does), and
// returned. A translation failure partway through returns nil; the
// partial buffer is discarded (not appended to the freelist).
func (m *Machine) LoadStr(addr int64) []byte {
	first := m.LookupAddress(addr)
	if first == nil {
		return nil
	}
	if i := indexZero(first); i >= 0 {
		m.SetReadAddr(addr, int64(i+1))
		return first[:i+1]
	}

	buf := make([]byte, 0, loadStrGrow)
	buf = append(buf, first...)
	v := addr + int64(len(first))
	for {
		page := m.LookupAddress(v)
		if page == nil {
			return nil
		}
		if len(page) > pagetable.PGSIZE {
			page = page[:pagetable.PGSIZE]
		}
		if i := indexZero(page); i >= 0 {
			buf = append(buf, page[:i+1]...)
			m.SetReadAddr(addr, int64(len(buf)))
			m.freelist = append(m.freelist, buf)
			return buf
		}
		buf = append(buf, page...)
		v += int64(len(page))
	}
}

// indexZero returns the offset of the first NUL byte in b, or -1.
func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

// LoadStrList reads an argv-style array of guest pointers at addr:
// 8 bytes per slot, little-endian. A zero slot terminates the list
// (and is represented by a nil entry); a nonzero slot is translated
// and read with LoadStr. Translation failure on the pointer array
// itself or on any individual string returns nil.
func (m *Machine) LoadStrList(addr int64) [][]byte {
	var out [][]byte
	for i := 0; ; i++ {
		var raw [8]byte
		if !m.CopyFromUser(addr+int64(i)*8, raw[:], 8) {
			return nil
		}
		ptr := int64(memutil.Readn(raw[:], 8, 0))
		if ptr == 0 {
			out = append(out, nil)
			return out
		}
		s := m.LoadStr(ptr)
		if s == nil {
			return nil
		}
		out = append(out, s)
	}
}
