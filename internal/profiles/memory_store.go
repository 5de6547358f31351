package profiles

import (
	"context"
	"sync"

	"github.com/chibuike-kt/risk-engine/internal/risk"
	"github.com/chibuike-kt/risk-engine/internal/txn"
)

// MemoryStore is an in-memory profile store for development mode.
type MemoryStore struct {
	profiles map[string]*Profile
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*Profile),
	}
}

func (m *MemoryStore) Ensure(ctx context.Context, userID string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[userID]
	if !ok {
		p = newProfile(userID)
		m.profiles[userID] = p
		txn.OnRollback(ctx, func() {
			m.mu.Lock()
			delete(m.profiles, userID)
			m.mu.Unlock()
		})
	}
	return copyProfile(p), nil
}

func (m *MemoryStore) Get(_ context.Context, userID string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return copyProfile(p), nil
}

func (m *MemoryStore) UpdateBaseline(ctx context.Context, userID string, mean, std float64) error {
	return m.update(ctx, userID, func(p *Profile) {
		p.BaselineMean = mean
		p.BaselineStd = std
	})
}

func (m *MemoryStore) UpdateSignals(ctx context.Context, userID string, deviceID, country *string) error {
	return m.update(ctx, userID, func(p *Profile) {
		p.LastDeviceID = copyString(deviceID)
		p.LastCountry = copyString(country)
	})
}

func (m *MemoryStore) UpdateRisk(ctx context.Context, userID string, score int, tier risk.Tier) error {
	return m.update(ctx, userID, func(p *Profile) {
		p.RiskScore = score
		p.RiskTier = tier
	})
}

// update applies fn to the stored profile and registers the previous value
// for rollback.
func (m *MemoryStore) update(ctx context.Context, userID string, fn func(*Profile)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[userID]
	if !ok {
		return ErrProfileNotFound
	}
	before := copyProfile(p)
	fn(p)

	txn.OnRollback(ctx, func() {
		m.mu.Lock()
		m.profiles[userID] = before
		m.mu.Unlock()
	})
	return nil
}

func copyProfile(p *Profile) *Profile {
	cp := *p
	cp.LastDeviceID = copyString(p.LastDeviceID)
	cp.LastCountry = copyString(p.LastCountry)
	return &cp
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

var _ Store = (*MemoryStore)(nil)
