package server

import (
	"sync"

	"github.com/google/uuid"

	"github.com/mhpenta/imagestudio"
)

// Registry keeps the live studio sessions in memory, keyed by uuid.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*imagestudio.Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*imagestudio.Session)}
}

// Create starts a session with default state and returns its id.
func (r *Registry) Create() (string, *imagestudio.Session) {
	id := uuid.New().String()
	session := imagestudio.NewSession()

	r.mu.Lock()
	r.sessions[id] = session
	r.mu.Unlock()

	return id, session
}

func (r *Registry) Get(id string) (*imagestudio.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	return session, ok
}

// Delete removes a session. It reports whether the id existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
