package memspace

import (
	"memspace/abi"
	"memspace/klog"
	"memspace/oom"
	"memspace/region"
)

// HandlePageFault resolves a hardware page fault at addr. It returns
// false when the fault must be delivered to the process as SIGSEGV: no
// mapping covers addr, the fault was a write against a read-only
// mapping, or the fault originated from user mode against a
// kernel-only mapping. Otherwise it demands the backing frame from the
// mapping's residence (resolving copy-on-write if necessary), installs
// the translation, and returns true.
func (sp *Space) HandlePageFault(addr region.Addr, code abi.FaultCode) bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	m, ok := sp.state.GetMappingForAddr(addr)
	if !ok {
		return false
	}
	write := code.Has(abi.FaultWrite)
	if write && !m.Flags.Has(abi.WRITE) {
		return false
	}
	if code.Has(abi.FaultUser) && !m.Flags.Has(abi.USER) {
		return false
	}

	idx := m.PageOffsetFor(addr)
	if err := oom.Wrap(func() error { return m.ResolveFault(idx, sp.cfg.Refs, write) }); err != nil {
		klog.Warnf("page fault resolution exhausted retries at %#x: %v", uintptr(addr), err)
		return false
	}
	return true
}
