package identity

import "sync"

// Store holds the current auth session. The shell updates it on
// sign-in/out; storage and services read it through Func so every call
// observes the latest state.
type Store struct {
	mu      sync.RWMutex
	session Session
}

// NewStore creates a store holding the anonymous session.
func NewStore() *Store {
	return &Store{session: Anonymous()}
}

// Set replaces the current session.
func (s *Store) Set(session Session) {
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
}

// Clear resets the store to the anonymous session.
func (s *Store) Clear() {
	s.Set(Anonymous())
}

// Current returns the current session.
func (s *Store) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Func adapts the store to the SessionFunc consumed by the adapter and
// services.
func (s *Store) Func() SessionFunc {
	return s.Current
}
