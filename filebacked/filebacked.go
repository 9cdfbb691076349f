// Package filebacked describes the contract this memory space needs from
// the file subsystem for File residences: resolving a file location and
// byte offset to a page frame, and flushing dirty shared pages back.
// The file subsystem itself is out of scope; only the contract and a
// trivial in-memory fake used by tests live here.
package filebacked

import (
	"sync"

	"memspace/physalloc"
)

// Location identifies a file, independent of any particular open
// descriptor.
type Location struct {
	Device uint64
	Inode  uint64
}

// Store resolves file locations to page frames on demand and flushes
// dirty pages back, honoring permissions surfaced via an access profile
// at the memspace layer (not here — this contract only moves pages).
type Store interface {
	// PageIn returns the frame backing the page at the given byte
	// offset into the file at loc, fetching or paging it in as needed.
	PageIn(loc Location, offset uint64) (physalloc.Frame, error)
	// Flush writes the contents of frame back to loc at offset, for
	// shared mappings being unmapped or having a page freed.
	Flush(loc Location, offset uint64, frame physalloc.Frame) error
}

// FakeStore is an in-memory Store sufficient for tests: it hands out one
// fresh frame per (location, offset) pair via the supplied allocator and
// records flushes for assertions.
type FakeStore struct {
	alloc physalloc.Allocator

	mu      sync.Mutex
	pages   map[key]physalloc.Frame
	flushes []Flushed
}

type key struct {
	loc    Location
	offset uint64
}

// Flushed records one Flush call, for test assertions.
type Flushed struct {
	Loc    Location
	Offset uint64
	Frame  physalloc.Frame
}

// NewFakeStore returns a FakeStore that allocates frames from alloc.
func NewFakeStore(alloc physalloc.Allocator) *FakeStore {
	return &FakeStore{alloc: alloc, pages: make(map[key]physalloc.Frame)}
}

// PageIn implements Store.
func (s *FakeStore) PageIn(loc Location, offset uint64) (physalloc.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{loc, offset}
	if f, ok := s.pages[k]; ok {
		return f, nil
	}
	f, err := s.alloc.Alloc(0, physalloc.ZoneUser)
	if err != nil {
		return physalloc.Zero, err
	}
	s.pages[k] = f
	return f, nil
}

// Flush implements Store.
func (s *FakeStore) Flush(loc Location, offset uint64, frame physalloc.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes = append(s.flushes, Flushed{loc, offset, frame})
	return nil
}

// Flushes returns the recorded Flush calls, for test assertions.
func (s *FakeStore) Flushes() []Flushed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Flushed(nil), s.flushes...)
}
