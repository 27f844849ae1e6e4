package session

import (
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// Store persists sessions by id.
type Store interface {
	// Get returns an existing session or lazily creates an empty one.
	Get(sessionID string) (*Session, error)

	// Save stores a snapshot of the session.
	Save(session *Session) error

	// Append adds messages to an existing or newly created session.
	Append(sessionID string, messages ...core.Message) error

	// Delete removes a session; deleting an unknown id is a no-op.
	Delete(sessionID string) error
}

// InMemoryStore is a volatile Store implementation keeping sessions in a
// process local map. It is safe for concurrent access and best suited for
// tests or ephemeral demo setups. Each returned session is cloned to prevent
// external mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*Session)}
}

// Get returns an existing session (clone) or creates a new one lazily.
func (s *InMemoryStore) Get(sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[sessionID]; ok {
		return session.Clone(), nil
	}
	return s.createLocked(sessionID).Clone(), nil
}

// Save stores a clone of the provided session snapshot.
func (s *InMemoryStore) Save(session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session.Clone()
	return nil
}

// Append adds messages to an existing or newly created session.
func (s *InMemoryStore) Append(sessionID string, messages ...core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = s.createLocked(sessionID)
	}
	sess.Append(messages...)
	return nil
}

// Delete removes a session.
func (s *InMemoryStore) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// createLocked allocates and stores a new session; caller must already hold
// the write lock.
func (s *InMemoryStore) createLocked(sessionID string) *Session {
	sess := New(sessionID)
	s.sessions[sessionID] = sess
	return sess
}
