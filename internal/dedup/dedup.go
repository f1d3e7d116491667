// Package dedup tracks record ids seen by this process.
//
// The set is a fast path in front of the store's own insert-if-absent check;
// it is not persisted and starts empty on every run.
package dedup

import "sync"

// Set is a concurrency-safe membership set of record ids.
type Set struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// New returns an empty Set.
func New() *Set {
	return &Set{ids: make(map[string]struct{})}
}

// HasSeen reports whether id has been marked.
func (s *Set) HasSeen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// MarkSeen adds id and reports whether it was newly added. A false return
// means another caller already claimed the id.
func (s *Set) MarkSeen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Forget removes id so a later attempt can retry it.
func (s *Set) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

// Len returns the number of ids tracked.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Reset forgets every id. Used after the store is cleared.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[string]struct{})
}
