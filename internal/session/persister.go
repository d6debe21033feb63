package session

import (
	"context"
	"sync"
)

// Persister is the durable side of the store. Load reports ok=false for unknown senders.
type Persister interface {
	Load(ctx context.Context, sender string) (History, bool, error)
	Save(ctx context.Context, sender string, history History) error
	Delete(ctx context.Context, sender string) error
	DeleteAll(ctx context.Context) error
}

// MemoryPersister keeps histories in a map. It stands in for a durable backend in tests.
type MemoryPersister struct {
	mu   sync.Mutex
	data map[string]History
}

// NewMemoryPersister creates an empty in-memory persister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{data: make(map[string]History)}
}

var _ Persister = (*MemoryPersister)(nil)

func (m *MemoryPersister) Load(_ context.Context, sender string) (History, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.data[sender]
	if !ok {
		return nil, false, nil
	}
	return h.clone(), true, nil
}

func (m *MemoryPersister) Save(_ context.Context, sender string, history History) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[sender] = history.clone()
	return nil
}

func (m *MemoryPersister) Delete(_ context.Context, sender string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, sender)
	return nil
}

func (m *MemoryPersister) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]History)
	return nil
}

// Len reports how many senders are stored.
func (m *MemoryPersister) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
