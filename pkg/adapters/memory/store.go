package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/aretw0/bandit/pkg/domain"
)

// Store implements ports.SessionStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]map[string]string
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]map[string]string),
	}
}

// Get returns a single key of a session.
func (s *Store) Get(ctx context.Context, sessionID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[sessionID][key]
	if !ok {
		return "", domain.ErrKeyNotFound
	}
	return v, nil
}

// Set writes a single key.
func (s *Store) Set(ctx context.Context, sessionID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kv, ok := s.data[sessionID]
	if !ok {
		kv = make(map[string]string)
		s.data[sessionID] = kv
	}
	kv[key] = value
	return nil
}

// Clear removes the session.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// Dump returns a copy of all keys of a session.
func (s *Store) Dump(ctx context.Context, sessionID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Copy on read so callers can't mutate the store
	out := make(map[string]string, len(s.data[sessionID]))
	maps.Copy(out, s.data[sessionID])
	return out, nil
}

// List returns active sessions.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, 0, len(s.data))
	for id := range s.data {
		sessions = append(sessions, id)
	}
	return sessions, nil
}
