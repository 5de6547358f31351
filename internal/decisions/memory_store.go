package decisions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chibuike-kt/risk-engine/internal/pagination"
	"github.com/chibuike-kt/risk-engine/internal/txn"
)

// MemoryStore is an in-memory decision store for development mode.
// Evaluations are serialised by txn.MemoryManager, so key locking is a no-op.
type MemoryStore struct {
	decisions   []*Decision
	cases       map[string]*Case
	idempotency map[string]*IdempotencyRecord
	mu          sync.RWMutex
}

// NewMemoryStore creates an empty in-memory decision store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cases:       make(map[string]*Case),
		idempotency: make(map[string]*IdempotencyRecord),
	}
}

func (m *MemoryStore) LockIdempotencyKey(context.Context, string) error {
	return nil
}

func (m *MemoryStore) GetIdempotency(_ context.Context, key string) (*IdempotencyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.idempotency[key]
	if !ok {
		return nil, ErrIdempotencyNotFound
	}
	cp := *rec
	cp.Response = append([]byte(nil), rec.Response...)
	return &cp, nil
}

func (m *MemoryStore) SaveIdempotency(ctx context.Context, rec *IdempotencyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.idempotency[rec.Key]; ok {
		return ErrIdempotencyConflict
	}
	cp := *rec
	cp.Response = append([]byte(nil), rec.Response...)
	m.idempotency[rec.Key] = &cp

	txn.OnRollback(ctx, func() {
		m.mu.Lock()
		delete(m.idempotency, rec.Key)
		m.mu.Unlock()
	})
	return nil
}

func (m *MemoryStore) CreateDecision(ctx context.Context, d *Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *d
	m.decisions = append(m.decisions, &cp)
	n := len(m.decisions)

	txn.OnRollback(ctx, func() {
		m.mu.Lock()
		m.decisions = m.decisions[:n-1]
		m.mu.Unlock()
	})
	return nil
}

func (m *MemoryStore) CountSince(_ context.Context, userID string, since time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, d := range m.decisions {
		if d.UserID == userID && !d.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SumSince(_ context.Context, userID string, since time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sum int64
	for _, d := range m.decisions {
		if d.UserID == userID && !d.CreatedAt.Before(since) {
			sum += d.AmountMinor
		}
	}
	return sum, nil
}

func (m *MemoryStore) RecentAmounts(_ context.Context, userID string, n int) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	amounts := make([]int64, 0, n)
	for i := len(m.decisions) - 1; i >= 0 && len(amounts) < n; i-- {
		if m.decisions[i].UserID == userID {
			amounts = append(amounts, m.decisions[i].AmountMinor)
		}
	}
	return amounts, nil
}

// Decisions returns a copy of every stored decision in insertion order.
func (m *MemoryStore) Decisions() []Decision {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Decision, len(m.decisions))
	for i, d := range m.decisions {
		out[i] = *d
	}
	return out
}

func (m *MemoryStore) OpenCase(ctx context.Context, c *Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	m.cases[c.ID] = &cp

	txn.OnRollback(ctx, func() {
		m.mu.Lock()
		delete(m.cases, c.ID)
		m.mu.Unlock()
	})
	return nil
}

func (m *MemoryStore) GetCase(_ context.Context, id string) (*Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.cases[id]
	if !ok {
		return nil, ErrCaseNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) ListCases(_ context.Context, status CaseStatus, after *pagination.Cursor, limit int) ([]*Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Case
	for _, c := range m.cases {
		if c.Status == status && (after == nil || olderThan(c, after)) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].OpenedAt.After(out[j].OpenedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// olderThan reports whether c sorts after the cursor in newest-first order.
func olderThan(c *Case, after *pagination.Cursor) bool {
	if c.OpenedAt.Equal(after.At) {
		return c.ID < after.ID
	}
	return c.OpenedAt.Before(after.At)
}

func (m *MemoryStore) ResolveCase(ctx context.Context, id string, resolution Resolution, notes string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cases[id]
	if !ok || c.Status != CaseOpen {
		return false, nil
	}
	before := *c

	c.Status = CaseResolved
	c.Resolution = &resolution
	c.ResolvedAt = &at
	if notes != "" {
		c.Notes = &notes
	}

	txn.OnRollback(ctx, func() {
		m.mu.Lock()
		m.cases[id] = &before
		m.mu.Unlock()
	})
	return true, nil
}

var _ Store = (*MemoryStore)(nil)
