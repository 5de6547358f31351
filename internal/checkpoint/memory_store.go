package checkpoint

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory checkpoint store for development mode.
type MemoryStore struct {
	checkpoints map[string]*Checkpoint
	mu          sync.RWMutex
}

// NewMemoryStore creates a new in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checkpoints: make(map[string]*Checkpoint)}
}

func (m *MemoryStore) Upsert(_ context.Context, c *Checkpoint) (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	stored := &Checkpoint{
		Day:        c.Day,
		TipHash:    c.TipHash,
		AuditCount: c.AuditCount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if existing, ok := m.checkpoints[c.Day]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	m.checkpoints[c.Day] = stored

	cp := *stored
	return &cp, nil
}

func (m *MemoryStore) Get(_ context.Context, day string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.checkpoints[day]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

var _ Store = (*MemoryStore)(nil)
