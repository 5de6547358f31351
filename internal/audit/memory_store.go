package audit

import (
	"context"
	"sync"

	"github.com/chibuike-kt/risk-engine/internal/txn"
)

// MemoryStore keeps the chain in a slice for development mode.
type MemoryStore struct {
	events []*Event
	mu     sync.RWMutex
}

// NewMemoryStore creates an empty in-memory chain.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append holds the store lock across the tip read and the insert.
func (m *MemoryStore) Append(ctx context.Context, build func(prevHash string) (*Event, error)) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := GenesisHash
	if n := len(m.events); n > 0 {
		prev = m.events[n-1].Hash
	}

	e, err := build(prev)
	if err != nil {
		return nil, err
	}
	n := len(m.events)
	e.Seq = int64(n + 1)
	m.events = append(m.events, copyEvent(e))

	txn.OnRollback(ctx, func() {
		m.mu.Lock()
		m.events = m.events[:n]
		m.mu.Unlock()
	})
	return e, nil
}

func (m *MemoryStore) Scan(ctx context.Context, fn func(*Event) error) error {
	m.mu.RLock()
	snapshot := make([]*Event, len(m.events))
	for i, e := range m.events {
		snapshot[i] = copyEvent(e)
	}
	m.mu.RUnlock()

	for _, e := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func copyEvent(e *Event) *Event {
	cp := *e
	cp.Payload = append([]byte(nil), e.Payload...)
	if e.Actor != nil {
		a := *e.Actor
		cp.Actor = &a
	}
	return &cp
}

var _ Store = (*MemoryStore)(nil)
