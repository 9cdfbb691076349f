// Package abi holds the constants a memory space exposes to the user-visible
// mmap/brk ABI: the mapping flag bits, the hardware page-fault code layout,
// and the translation between this kernel's flag bits and the POSIX mmap
// constants a real syscall shim would receive from userspace.
package abi

import "golang.org/x/sys/unix"

// Flag is a bit set over WRITE, EXEC, USER, NOLAZY, SHARED: the handful
// of bits a mapping (rather than a raw page table entry) cares about.
type Flag uint

const (
	// WRITE permits stores to the mapping.
	WRITE Flag = 1 << iota
	// EXEC permits instruction fetch from the mapping.
	EXEC
	// USER permits access from user mode.
	USER
	// NOLAZY forces eager frame allocation instead of demand paging.
	NOLAZY
	// SHARED marks the mapping's frames as shared rather than private.
	SHARED
)

// Has reports whether all bits of want are set in f.
func (f Flag) Has(want Flag) bool { return f&want == want }

// FaultCode is the hardware-supplied page-fault error code: PRESENT,
// WRITE, USER bits per the standard x86 page-fault encoding.
type FaultCode uint

const (
	// FaultPresent is set when the faulting page was mapped but the
	// access still failed (a protection violation, not a missing page).
	FaultPresent FaultCode = 1 << 0
	// FaultWrite is set when the fault was caused by a write.
	FaultWrite FaultCode = 1 << 1
	// FaultUser is set when the fault originated from user mode.
	FaultUser FaultCode = 1 << 2
)

// Has reports whether all bits of want are set in c.
func (c FaultCode) Has(want FaultCode) bool { return c&want == want }

// AccessProfile describes the caller whose permissions gate file-backed
// set_prot requests, standing in for the process layer's credentials.
type AccessProfile struct {
	UID, GID int
	// FileWritable reports whether the underlying file grants write
	// access to this profile; set_prot consults it for shared
	// file-backed mappings.
	FileWritable bool
}

// ToProt translates a mapping Flag set into the POSIX PROT_* bits a real
// mmap(2) shim would pass to the kernel, grounding the ABI constants in
// golang.org/x/sys/unix rather than hand-picked numbers.
func ToProt(f Flag) int {
	prot := unix.PROT_NONE
	if f.Has(WRITE) {
		prot |= unix.PROT_WRITE
	}
	if f.Has(EXEC) {
		prot |= unix.PROT_EXEC
	}
	// Every readable region in this ABI is at minimum PROT_READ; there is
	// no separate READ bit because a mapping with no permissions at all
	// is a guard page (Flag == 0).
	if f != 0 {
		prot |= unix.PROT_READ
	}
	return prot
}

// ToMapFlags translates the SHARED bit into the POSIX MAP_SHARED/
// MAP_PRIVATE distinction.
func ToMapFlags(f Flag) int {
	if f.Has(SHARED) {
		return unix.MAP_SHARED
	}
	return unix.MAP_PRIVATE
}

// FromProt reconstructs the WRITE/EXEC bits of a Flag set from POSIX
// PROT_* bits; USER, NOLAZY and SHARED are not recoverable from prot
// alone and must be supplied by the caller.
func FromProt(prot int) Flag {
	var f Flag
	if prot&unix.PROT_WRITE != 0 {
		f |= WRITE
	}
	if prot&unix.PROT_EXEC != 0 {
		f |= EXEC
	}
	return f
}
