package sentinel

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory audit Store for dev/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]*Record // sessionID → records
}

// NewMemoryStore creates an in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]*Record)}
}

func (s *MemoryStore) Record(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *rec
	s.records[rec.SessionID] = append(s.records[rec.SessionID], &r)
	return nil
}

func (s *MemoryStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.records[sessionID]
	if len(all) == 0 {
		return nil, nil
	}

	start := len(all) - limit
	if limit <= 0 || start < 0 {
		start = 0
	}

	// Most recent first.
	result := make([]*Record, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		r := *all[i]
		result = append(result, &r)
	}
	return result, nil
}
