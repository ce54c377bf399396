package memory

import (
	"context"
	"sync"

	"payhook/internal/audit"
)

// InMemoryStore keeps audit records in memory, for development and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	byEvent map[string][]audit.Record
	ordered []audit.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byEvent: make(map[string][]audit.Record)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byEvent = make(map[string][]audit.Record)
	s.ordered = nil
}

func (s *InMemoryStore) Append(_ context.Context, record audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byEvent[record.EventID] = append(s.byEvent[record.EventID], record)
	s.ordered = append(s.ordered, record)
	return nil
}

func (s *InMemoryStore) ListByEvent(_ context.Context, eventID string) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Record{}, s.byEvent[eventID]...), nil
}

// ListRecent returns the most recent N records in append order.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := len(s.ordered) - limit
	if start < 0 {
		start = 0
	}
	return append([]audit.Record{}, s.ordered[start:]...), nil
}
