package history

import (
	"context"
	"sync"
)

// InMemoryStore keeps the chat list in process memory for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	capacity int
	records  []ChatRecord
}

func NewInMemoryStore(capacity int) *InMemoryStore {
	return &InMemoryStore{capacity: normalizeCapacity(capacity)}
}

// Save prepends record and truncates to capacity in one critical section.
func (s *InMemoryStore) Save(_ context.Context, record ChatRecord) error {
	record = stamp(record)
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]ChatRecord, 0, min(len(s.records)+1, s.capacity))
	next = append(next, record)
	for _, r := range s.records {
		if len(next) == s.capacity {
			break
		}
		next = append(next, r)
	}
	s.records = next
	return nil
}

func (s *InMemoryStore) List(_ context.Context, limit int) ([]ChatRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]ChatRecord, limit)
	copy(out, s.records[:limit])
	return out, nil
}

func (s *InMemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return nil
}

func (s *InMemoryStore) Mode() string { return "in-memory" }

func (s *InMemoryStore) Close() error { return nil }
