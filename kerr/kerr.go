// Package kerr collects the sentinel errors a memory space can return.
//
// The historical kernel this subsystem is ported from represents failures
// as a negative integer Err_t (EINVAL, ENOMEM, ...). Idiomatic Go prefers
// sentinel error values that compose with errors.Is and %w, so each
// Err_t case below becomes one allocation-free string error, in the same
// spirit as defs.KernelError elsewhere in this codebase.
package kerr

// KernelError is a trivial error implementation that requires no
// allocation, mirroring defs.KernelError.
type KernelError string

// Error implements the error interface.
func (e KernelError) Error() string { return string(e) }

var (
	// ErrAlloc reports that an index insertion or a frame acquisition
	// could not reserve memory. Staged transactions guarantee the live
	// state is unchanged when this is returned.
	ErrAlloc = KernelError("out of memory")

	// ErrInvalidArgument reports a misaligned pointer, a zero size, a
	// Fixed constraint landing outside the user region, or any other
	// argument the caller must correct before retrying.
	ErrInvalidArgument = KernelError("invalid argument")

	// ErrPermission reports that set_prot requested write access on a
	// shared file-backed mapping whose underlying file forbids it, or
	// that a mapping does not grant the access CanAccessString checks.
	ErrPermission = KernelError("permission denied")

	// ErrNoMapping reports that no mapping covers the requested address.
	ErrNoMapping = KernelError("no mapping for address")

	// ErrNameTooLong reports that a user string exceeded the caller's
	// maximum length before a NUL terminator was found.
	ErrNameTooLong = KernelError("string exceeds maximum length")
)

// Fatal marks a violation that must never be returned to a caller: a
// double-free of a frame, a broken index invariant, or destroying a
// memory space still bound to a core. Call sites panic with a Fatal
// instead of propagating it.
type Fatal string

// Error implements the error interface so Fatal can be wrapped in a
// panic value and still be inspected by recover().
func (f Fatal) Error() string { return string(f) }
