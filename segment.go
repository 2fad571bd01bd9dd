package softmmu

import "softmmu/internal/segment"

// GetSegment returns the base of segment s (ES=0..GS=5). An index
// outside that range is an invalid selector; the memory subsystem
// raises #UD through the fault collaborator rather than deciding what
// happens next.
func (m *Machine) GetSegment(s int) int64 {
	seg := segment.Segment(s)
	if !seg.Valid() {
		m.fault.InvalidOpcode(m)
		return 0
	}
	switch seg {
	case segment.ES:
		return m.es
	case segment.CS:
		return m.cs
	case segment.SS:
		return m.ss
	case segment.DS:
		return m.ds
	case segment.FS:
		return m.fs
	default: // segment.GS
		return m.gs
	}
}

// DataSegment adds disp to the base of segment s, or to ds when seg is
// -1 (no override) — the effective-address computation every memory
// operand other than a string-op index goes through.
func (m *Machine) DataSegment(mode segment.Eamode, disp int64, seg int) int64 {
	base := m.ds
	if seg >= 0 {
		base = m.GetSegment(seg)
	}
	return base + (disp & int64(mode.Mask()))
}

// AddressOb computes the effective address for an Ob-form operand: the
// instruction's displacement field applied through DataSegment.
func (m *Machine) AddressOb(d segment.Decoded) int64 {
	return m.DataSegment(d.Mode, d.Disp, d.Seg)
}

// AddressSi computes the effective address of a string-op source
// operand: the SI index register, masked to the mode's width, added to
// the (possibly overridden) data segment base.
func (m *Machine) AddressSi(d segment.Decoded) int64 {
	idx := int64(m.si) & int64(d.Mode.Mask())
	base := m.ds
	if d.Seg >= 0 {
		base = m.GetSegment(d.Seg)
	}
	return base + idx
}

// AddressDi computes the effective address of a string-op destination
// operand: the DI index register, masked to the mode's width, added to
// the raw ES base — no segment override is possible here, matching
// the string-op hardware rule.
func (m *Machine) AddressDi(d segment.Decoded) int64 {
	idx := int64(m.di) & int64(d.Mode.Mask())
	return m.es + idx
}
