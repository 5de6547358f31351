package sanctions

import (
	"context"
	"sync"

	"github.com/chibuike-kt/risk-engine/internal/txn"
)

// MemoryStore is an in-memory sanctions list for development mode.
type MemoryStore struct {
	entries map[string]*Entry
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty in-memory sanctions list.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func (m *MemoryStore) Add(ctx context.Context, e *Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[e.Value]; ok {
		return false, nil
	}
	cp := *e
	m.entries[e.Value] = &cp

	txn.OnRollback(ctx, func() {
		m.mu.Lock()
		delete(m.entries, e.Value)
		m.mu.Unlock()
	})
	return true, nil
}

func (m *MemoryStore) IsListed(_ context.Context, value string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[value]
	return ok, nil
}

var _ Store = (*MemoryStore)(nil)
