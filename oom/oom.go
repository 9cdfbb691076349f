// Package oom implements a retry helper for transient allocation
// failures: a last resort for allocations that cannot be declined
// without killing the faulting process, used only at fault resolution
// and lazy map time.
package oom

import (
	"fmt"
	"time"
)

// MaxAttempts bounds the retry loop so a permanently exhausted allocator
// eventually gives up instead of spinning the core forever, standing in
// for a real kernel's unbounded retry against memory reclaimed by other
// means (page-out, an OOM killer).
const MaxAttempts = 64

// Backoff is the delay between retries after the first. It is constant,
// not exponential: oom.Wrap is on the fault path, where latency matters
// more than backing off aggressively.
const Backoff = time.Microsecond

// Wrap retries op until it succeeds or MaxAttempts is exhausted, sleeping
// Backoff between attempts after the first. It returns the last error
// seen, wrapped to indicate all retries failed, or nil if a retry
// succeeded.
func Wrap(op func() error) error {
	var err error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(Backoff)
		}
		err = op()
		if err == nil {
			return nil
		}
	}
	return fmt.Errorf("oom: all %d attempts failed: %w", MaxAttempts, err)
}
