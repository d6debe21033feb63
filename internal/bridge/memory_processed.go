package bridge

import (
	"context"
	"sync"
)

const defaultProcessedCapacity = 10000

// MemoryProcessedStore is a process-local ProcessedStore for deployments without Postgres.
// It remembers the most recent ids up to its capacity.
type MemoryProcessedStore struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	order    []string
}

func NewMemoryProcessedStore(capacity int) *MemoryProcessedStore {
	if capacity <= 0 {
		capacity = defaultProcessedCapacity
	}
	return &MemoryProcessedStore{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
	}
}

func (s *MemoryProcessedStore) MarkProcessed(_ context.Context, provider, eventID string) (bool, error) {
	key := provider + ":" + eventID
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	if len(s.order) >= s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.seen, oldest)
	}
	s.seen[key] = struct{}{}
	s.order = append(s.order, key)
	return true, nil
}
