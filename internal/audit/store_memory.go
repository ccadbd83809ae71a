package audit

import (
	"context"
	"sync"
)

// InMemoryStore keeps entries in memory, grouped by session. Suited to tests
// and single-process deployments.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Entry
	all      []Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string][]Entry)}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[entry.SessionID] = append(s.sessions[entry.SessionID], entry)
	s.all = append(s.all, entry)
	return nil
}

func (s *InMemoryStore) ListBySession(_ context.Context, sessionID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry{}, s.sessions[sessionID]...), nil
}

func (s *InMemoryStore) List(_ context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.all) {
		limit = len(s.all)
	}
	return append([]Entry{}, s.all[len(s.all)-limit:]...), nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string][]Entry)
	s.all = nil
}
