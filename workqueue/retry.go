package workqueue

import "sync"

// RetryQueue collects indices whose fetch attempt failed so a claimed
// slot is not permanently orphaned (spec's §9 fix for the original's
// claim-before-fetch bug, where a failed fetch skipped that strip
// forever). Each index may be attempted up to maxAttempts times in total
// (the first try included) before it is reported as fatally failed.
type RetryQueue struct {
	mutex       sync.Mutex
	attempts    map[int]int
	maxAttempts int
	pending     []int
}

// NewRetryQueue creates a RetryQueue allowing up to maxAttempts total
// tries (including the first) per index.
func NewRetryQueue(maxAttempts int) *RetryQueue {
	return &RetryQueue{attempts: make(map[int]int), maxAttempts: maxAttempts}
}

// Release records a failed attempt at index and reports whether it may
// be retried. false means the bounded retry count has been exhausted
// and the engine should mark that slot as fatally failed.
func (q *RetryQueue) Release(index int) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.attempts[index]++
	if q.attempts[index] >= q.maxAttempts {
		return false
	}
	q.pending = append(q.pending, index)
	return true
}

// Next pops one previously-released index for a worker to retry, or
// (0, false) if none are pending.
func (q *RetryQueue) Next() (int, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if len(q.pending) == 0 {
		return 0, false
	}
	n := len(q.pending) - 1
	idx := q.pending[n]
	q.pending = q.pending[:n]
	return idx, true
}
