package memspace

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"memspace/region"
)

// forkConcurrency bounds how many mappings are duplicated concurrently
// during Fork, standing in for the stack-pressure bound a kernel gets by
// disabling interrupts and switching to an alternate stack for the whole
// operation; there is no interrupt controller to disable here, so a
// weighted semaphore plays the same bounding role for the goroutines
// doing that nested allocator work.
const forkConcurrency = 8

// Fork clones this space for process forking: the two gap indices are
// cloned directly, and every mapping is duplicated against a fresh
// page-table context via region.Mapping.Fork, which handles the
// copy-on-write write-protection of both sides itself.
func (sp *Space) Fork() (*Space, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	newVMem, err := sp.vmem.TryClone()
	if err != nil {
		return nil, err
	}
	child := &Space{
		cfg:     sp.cfg,
		state:   sp.state.Clone(),
		vmem:    newVMem,
		brkInit: sp.brkInit,
		brkPtr:  sp.brkPtr,
	}

	var mappings []region.Mapping
	sp.state.Mappings(func(m region.Mapping) bool {
		mappings = append(mappings, m)
		return true
	})

	var insertMu sync.Mutex
	g, ctx := errgroup.WithContext(context.Background())
	sem := semaphore.NewWeighted(forkConcurrency)
	for _, m := range mappings {
		m := m
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			childMapping, err := m.Fork(newVMem, sp.cfg.Refs)
			if err != nil {
				return err
			}
			insertMu.Lock()
			defer insertMu.Unlock()
			return child.state.InsertMapping(*childMapping)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return child, nil
}
