// Package swap describes the contract this memory space needs from the
// swap device for Swap residences: reading and writing one page at a
// (slot, page-index) and allocating/freeing slots. The swap device
// itself is out of scope; only the contract and a trivial in-memory fake
// used by tests live here.
package swap

import (
	"sync"

	"memspace/physalloc"
)

// Device reads and writes pages at a (slot, page-index) coordinate.
type Device interface {
	// AllocSlot reserves a fresh swap slot and returns its id.
	AllocSlot() (uint32, error)
	// FreeSlot releases a slot previously returned by AllocSlot.
	FreeSlot(slot uint32)
	// ReadPage returns the frame holding the contents at (slot, page).
	ReadPage(slot uint32, page uint) (physalloc.Frame, error)
	// WritePage writes frame's contents back to (slot, page).
	WritePage(slot uint32, page uint, frame physalloc.Frame) error
}

// FakeDevice is an in-memory Device sufficient for tests.
type FakeDevice struct {
	alloc physalloc.Allocator

	mu       sync.Mutex
	nextSlot uint32
	pages    map[coord]physalloc.Frame
	writes   []Written
}

type coord struct {
	slot uint32
	page uint
}

// Written records one WritePage call, for test assertions.
type Written struct {
	Slot  uint32
	Page  uint
	Frame physalloc.Frame
}

// NewFakeDevice returns a FakeDevice that allocates frames from alloc.
func NewFakeDevice(alloc physalloc.Allocator) *FakeDevice {
	return &FakeDevice{alloc: alloc, pages: make(map[coord]physalloc.Frame)}
}

// AllocSlot implements Device.
func (d *FakeDevice) AllocSlot() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextSlot++
	return d.nextSlot, nil
}

// FreeSlot implements Device.
func (d *FakeDevice) FreeSlot(slot uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for c := range d.pages {
		if c.slot == slot {
			delete(d.pages, c)
		}
	}
}

// ReadPage implements Device.
func (d *FakeDevice) ReadPage(slot uint32, page uint) (physalloc.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := coord{slot, page}
	if f, ok := d.pages[c]; ok {
		return f, nil
	}
	f, err := d.alloc.Alloc(0, physalloc.ZoneUser)
	if err != nil {
		return physalloc.Zero, err
	}
	d.pages[c] = f
	return f, nil
}

// WritePage implements Device.
func (d *FakeDevice) WritePage(slot uint32, page uint, frame physalloc.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages[coord{slot, page}] = frame
	d.writes = append(d.writes, Written{slot, page, frame})
	return nil
}

// WritesFor returns the recorded WritePage calls for slot, for test
// assertions.
func (d *FakeDevice) WritesFor(slot uint32) []Written {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Written
	for _, w := range d.writes {
		if w.Slot == slot {
			out = append(out, w)
		}
	}
	return out
}
