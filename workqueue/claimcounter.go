// Package workqueue implements the three work-distribution disciplines
// the Engine's components need: a lock-free ClaimCounter for the Strip
// Engine, a bounded Buffer for the BP Engine's producer/consumer
// pipeline, and a LIFO Frontier with a condition variable for the Crawl
// Engine.
package workqueue

import "sync/atomic"

// ClaimCounter hands out indices in [0, N) to any number of concurrent
// callers, lock-free and wait-free: each worker calls Claim in a loop
// until it returns ok == false, meaning every index has been handed out.
//
// A claimed index is not automatically "done" — on a transient fetch
// failure the caller should push it onto a RetryQueue (see retry.go)
// rather than treat the claim as permanent, which is the §9 fix for the
// original lab code's claim-then-never-retry bug.
type ClaimCounter struct {
	next  int64
	limit int64
}

// NewClaimCounter creates a counter that will hand out exactly the
// indices [0, limit).
func NewClaimCounter(limit int) *ClaimCounter {
	return &ClaimCounter{limit: int64(limit)}
}

// Claim atomically returns the next index and true, or (0, false) once
// every index up to the limit has already been claimed.
func (c *ClaimCounter) Claim() (int, bool) {
	n := atomic.AddInt64(&c.next, 1) - 1
	if n >= c.limit {
		return 0, false
	}
	return int(n), true
}
