package electron

import (
	"fmt"
	"sync"
)

// Registry owns the live session records. It is the only component that may
// insert or remove records; everything else resolves sessions through it.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	pending  map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		pending:  make(map[string]struct{}),
	}
}

// Reserve claims an ID for an in-flight open. The reservation blocks a
// concurrent open of the same ID but is invisible to Get.
func (r *Registry) Reserve(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	if _, ok := r.pending[id]; ok {
		return fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	r.pending[id] = struct{}{}
	return nil
}

// Commit turns a reservation into a visible session record.
func (r *Registry) Commit(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, s.ID)
	r.sessions[s.ID] = s
}

// Release drops a reservation after a failed open.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
}

// Get resolves a session by ID. Reservations do not resolve.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Remove deletes a session record.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len reports the number of visible sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
