package revocation

import (
	"context"
	"sync"

	dErrors "custodia/pkg/domain-errors"
)

// InMemoryStore keeps ledger records in memory. Suited to tests and
// ephemeral deployments; production wiring uses the SQLite store.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*Record)}
}

func (s *InMemoryStore) Register(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.EntryID]; exists {
		return dErrors.New(dErrors.CodeConflict, "entry already registered")
	}
	clone := *record
	s.records[record.EntryID] = &clone
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, entryID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[entryID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *InMemoryStore) List(_ context.Context, filter Filter) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, record := range s.records {
		if filter.Layer != nil && record.Layer != *filter.Layer {
			continue
		}
		if filter.State != nil && record.State != *filter.State {
			continue
		}
		clone := *record
		out = append(out, &clone)
	}
	return out, nil
}

func (s *InMemoryStore) CountByState(_ context.Context, state State) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, record := range s.records {
		if record.State == state {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) Apply(_ context.Context, records []*Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Validate all targets exist before mutating anything so the batch stays
	// all-or-nothing.
	for _, record := range records {
		if _, ok := s.records[record.EntryID]; !ok {
			return ErrNotFound
		}
	}
	for _, record := range records {
		clone := *record
		s.records[record.EntryID] = &clone
	}
	return nil
}
