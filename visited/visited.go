// Package visited implements the Engine's deduplicating set of
// canonical URLs: a mutex-protected, namespace-keyed hash set whose
// InsertIfAbsent is the only way a caller is allowed to learn it was
// first to see a given key, so that a URL is pushed to a frontier at
// most once.
package visited

import "sync"

// Set is a thread-safe set of keys partitioned by namespace (e.g. one
// namespace per crawled domain, so that two different seeds never share
// a dedup scope).
type Set struct {
	mutex sync.Mutex
	sets  map[string]map[string]struct{}
}

// New creates an empty Set. No bucket count is preset: Go's maps grow on
// demand as keys are inserted.
func New() *Set {
	return &Set{sets: make(map[string]map[string]struct{})}
}

// InsertIfAbsent adds key to namespace and returns true iff it was not
// already present — only the caller that gets true back is allowed to
// act on the insertion (e.g. push the URL onto a frontier, or claim a
// strip index).
func (s *Set) InsertIfAbsent(namespace, key string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	bucket, ok := s.sets[namespace]
	if !ok {
		bucket = make(map[string]struct{})
		s.sets[namespace] = bucket
	}
	if _, seen := bucket[key]; seen {
		return false
	}
	bucket[key] = struct{}{}
	return true
}

// Contains reports whether key has already been inserted into
// namespace, without inserting it.
func (s *Set) Contains(namespace, key string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	bucket, ok := s.sets[namespace]
	if !ok {
		return false
	}
	_, seen := bucket[key]
	return seen
}

// Len reports how many keys have been inserted into namespace.
func (s *Set) Len(namespace string) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.sets[namespace])
}
