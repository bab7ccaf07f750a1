package chat

import (
	"sync"
	"time"

	"github.com/ashureev/symptom-checker/internal/identity"
)

// Manager is the registry of live sessions.
type Manager struct {
	mu     sync.RWMutex
	active map[string]*Session
	deps   Deps
}

// NewManager creates a manager whose sessions share deps.
func NewManager(deps Deps) *Manager {
	return &Manager{
		active: make(map[string]*Session),
		deps:   deps.withDefaults(),
	}
}

// Create starts a session with a fresh ID.
func (m *Manager) Create() *Session {
	s := NewSession(identity.NewSessionID(), m.deps)

	m.mu.Lock()
	m.active[s.ID()] = s
	m.mu.Unlock()

	m.deps.Logger.Info("Chat session created", "session_id", s.ID())
	return s
}

// GetOrCreate returns the session for id, creating it when unknown. The
// caller must have sanitized id. An empty id creates a session with a new ID.
// An existing session is marked active so the sweeper keeps it for the turn
// that follows.
func (m *Manager) GetOrCreate(id string) *Session {
	if id == "" {
		return m.Create()
	}

	m.mu.RLock()
	s, ok := m.active[id]
	if ok {
		s.touch()
	}
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.active[id]; ok {
		s.touch()
		return s
	}
	s = NewSession(id, m.deps)
	m.active[id] = s
	m.deps.Logger.Info("Chat session created", "session_id", id)
	return s
}

// Get returns the session for id or ErrSessionNotFound.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.active[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove drops the session for id. Its state goes with it.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[id]; !ok {
		return false
	}
	delete(m.active, id)
	m.deps.Logger.Info("Chat session removed", "session_id", id)
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// EvictIdle removes sessions idle for longer than ttl and returns how many
// were removed. Sessions with a turn in flight are kept.
func (m *Manager) EvictIdle(ttl time.Duration) int {
	cutoff := m.deps.Now().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, s := range m.active {
		if s.IdleSince().Before(cutoff) && !s.Busy() {
			delete(m.active, id)
			evicted++
		}
	}
	return evicted
}
