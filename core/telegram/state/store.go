package state

import "sync"

// Store maps a chat identity to its current conversation state. The zero
// value of S is returned for chats without an entry.
type Store[S any] struct {
	mu     sync.Mutex
	states map[int64]S
}

// NewStore returns an empty Store.
func NewStore[S any]() *Store[S] {
	return &Store[S]{states: make(map[int64]S)}
}

// Get returns the state for key and whether an entry existed.
func (s *Store[S]) Get(key int64) (S, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key]
	return st, ok
}

// Set replaces the state for key.
func (s *Store[S]) Set(key int64, st S) {
	s.mu.Lock()
	s.states[key] = st
	s.mu.Unlock()
}

// Reset drops the entry for key so that Get yields the zero state again.
func (s *Store[S]) Reset(key int64) {
	s.mu.Lock()
	delete(s.states, key)
	s.mu.Unlock()
}

// Len reports the number of chats with a stored state.
func (s *Store[S]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
