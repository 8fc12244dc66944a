package workqueue

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// SemBuffer is the classical semaphore-triple bounded buffer
// ({empty, full, mutex}) described in spec's §4.C, kept as an
// explicitly opt-in alternative to Buffer for a reader who wants to see
// the primitive the original lab's shared-memory design was built on,
// without the fork()/shared-memory plumbing that made it
// process-rather-than-goroutine bound there.
type SemBuffer[T any] struct {
	empty *semaphore.Weighted // counts free slots
	full  *semaphore.Weighted // counts occupied slots
	mutex sync.Mutex
	slots []T
	head  int // next slot to consume
	tail  int // next slot to produce into
	cap   int
}

// NewSemBuffer creates a SemBuffer of the given capacity. "empty" starts
// fully available (capacity free slots); "full" starts fully acquired,
// so no consumer can proceed until a producer releases it — the usual
// trick for modeling a counting semaphore that starts at zero with
// golang.org/x/sync/semaphore, which otherwise only offers a
// starts-fully-available weighted semaphore.
func NewSemBuffer[T any](capacity int) *SemBuffer[T] {
	full := semaphore.NewWeighted(int64(capacity))
	_ = full.Acquire(context.Background(), int64(capacity))
	return &SemBuffer[T]{
		empty: semaphore.NewWeighted(int64(capacity)),
		full:  full,
		slots: make([]T, capacity),
		cap:   capacity,
	}
}

// Push blocks on the "empty" semaphore (room available), writes into
// the next slot under mutex, then posts "full".
func (b *SemBuffer[T]) Push(ctx context.Context, item T) error {
	if err := b.empty.Acquire(ctx, 1); err != nil {
		return err
	}
	b.mutex.Lock()
	b.slots[b.tail] = item
	b.tail = (b.tail + 1) % b.cap
	b.mutex.Unlock()
	b.full.Release(1)
	return nil
}

// Pop blocks on the "full" semaphore (item available), reads the next
// slot under mutex, then posts "empty".
func (b *SemBuffer[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	if err := b.full.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	b.mutex.Lock()
	item := b.slots[b.head]
	b.slots[b.head] = zero
	b.head = (b.head + 1) % b.cap
	b.mutex.Unlock()
	b.empty.Release(1)
	return item, nil
}
