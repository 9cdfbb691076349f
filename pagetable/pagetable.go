// Package pagetable describes the contract this memory space needs from
// the architectural page-table layer. The actual installer — walking
// four-level x86 page tables the way Pmap_t and pmap_walk do — is out of
// scope here; this package defines the Handle interface and a fake
// implementation that records installed translations for tests.
package pagetable

import (
	"sync"

	"memspace/abi"
	"memspace/physalloc"
)

// Addr is a page-aligned virtual address.
type Addr uintptr

// Handle is the per-memory-space page-table context. Implementations
// must be individually mutex-protected: every method may be called
// concurrently with Switch running on another core.
type Handle interface {
	// TryClone duplicates the page-table context: the clone starts with
	// a copy of the source's translations and is independent of it from
	// then on (the caller re-installs translations with adjusted flags).
	TryClone() (Handle, error)
	// Bind installs this context as the active one on the calling core.
	Bind()
	// IsBound reports whether this context is currently active on any
	// core.
	IsBound() bool
	// Map installs a translation from virt to phys with the given
	// permission flags.
	Map(virt Addr, phys physalloc.Frame, flags abi.Flag) error
	// Unmap removes any translation at virt. It is not an error to
	// unmap an address with no existing translation.
	Unmap(virt Addr) error
	// Switch temporarily activates this context to run fn, then
	// restores whatever was active before. Nothing in this repository
	// calls it; memspace.CanAccessString reads bytes through a caller
	// supplied ByteReader instead.
	Switch(fn func())
	// Lookup returns the translation installed at virt, mirroring a PTE
	// walk (Pmap_lookup). Used by fork to find which pages are already
	// present and by set_prot/Resync to re-install a translation with
	// adjusted flags but the same frame.
	Lookup(virt Addr) (phys physalloc.Frame, flags abi.Flag, ok bool)
}

// New returns a fresh, empty page-table context backed by an in-memory
// map. It stands in for the recursive mapping machinery a real page
// table installer would need, which this subsystem only needs as a
// contract.
func New() Handle {
	return &fakeHandle{translations: make(map[Addr]entry)}
}

type entry struct {
	phys  physalloc.Frame
	flags abi.Flag
}

type fakeHandle struct {
	mu           sync.Mutex
	translations map[Addr]entry
	bound        bool
}

var boundMu sync.Mutex
var boundHandle *fakeHandle

func (h *fakeHandle) TryClone() (Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clone := &fakeHandle{translations: make(map[Addr]entry, len(h.translations))}
	for k, v := range h.translations {
		clone.translations[k] = v
	}
	return clone, nil
}

func (h *fakeHandle) Bind() {
	boundMu.Lock()
	defer boundMu.Unlock()
	if boundHandle != nil {
		boundHandle.bound = false
	}
	h.bound = true
	boundHandle = h
}

func (h *fakeHandle) IsBound() bool {
	boundMu.Lock()
	defer boundMu.Unlock()
	return h.bound
}

func (h *fakeHandle) Map(virt Addr, phys physalloc.Frame, flags abi.Flag) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.translations[virt] = entry{phys: phys, flags: flags}
	return nil
}

func (h *fakeHandle) Unmap(virt Addr) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.translations, virt)
	return nil
}

func (h *fakeHandle) Switch(fn func()) {
	fn()
}

// Lookup returns the translation installed at virt, for test assertions
// that a WRITE-clear mapping actually installed a writable-clear PTE.
func (h *fakeHandle) Lookup(virt Addr) (phys physalloc.Frame, flags abi.Flag, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.translations[virt]
	return e.phys, e.flags, ok
}
