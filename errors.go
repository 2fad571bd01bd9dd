package softmmu

import "errors"

// Sentinel errors naming the error taxonomy. Only ErrCrossedGuard is
// returned by a function in this package (FindVirtual); the other
// three are not returned anywhere, since translation and allocation
// report failure through nil slices, false results and FaultHandler
// calls instead.
var (
	// ErrOutOfMemory names an arena-growth or page-table allocation
	// failure.
	ErrOutOfMemory = errors.New("softmmu: out of memory")
	// ErrAddressOutOfRange names a virtual address outside the
	// canonical range, or past the real-mode 4 GiB ceiling.
	ErrAddressOutOfRange = errors.New("softmmu: address out of range")
	// ErrUnmapped names a walk that finds an absent entry.
	ErrUnmapped = errors.New("softmmu: unmapped")
	// ErrCrossedGuard is returned when FindVirtual exhausts the
	// canonical address space without finding a hole.
	ErrCrossedGuard = errors.New("softmmu: no virtual address space left")
)

// FaultHandler is the set of non-returning (from the memory
// subsystem's point of view) signals the emulator core supplies. The
// memory subsystem only detects these conditions; it never decides
// fault policy.
type FaultHandler interface {
	// SegFault reports a segmentation fault at virtual address v. A
	// real implementation does not return to the caller; callers in
	// this package must not use the result of a call after invoking
	// it.
	SegFault(m *Machine, v int64)
	// InvalidOpcode reports use of an invalid segment selector (or
	// other decode-time #UD condition passed through from the
	// segmentation prologue).
	InvalidOpcode(m *Machine)
}
