package profiles

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chibuike-kt/risk-engine/internal/risk"
	"github.com/chibuike-kt/risk-engine/internal/txn"
)

func strp(s string) *string { return &s }

func TestComputeBaseline(t *testing.T) {
	mean, std := ComputeBaseline([]int64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, 1e-9)
	assert.InDelta(t, 2.0, std, 1e-9)
}

func TestComputeBaseline_FloorsStd(t *testing.T) {
	mean, std := ComputeBaseline([]int64{1000})
	assert.InDelta(t, 1000.0, mean, 1e-9)
	assert.Equal(t, MinBaselineStd, std)

	_, std = ComputeBaseline([]int64{100, 101})
	assert.Equal(t, MinBaselineStd, std, "0.5 is floored to 1.0")
}

func TestComputeBaseline_Empty(t *testing.T) {
	mean, std := ComputeBaseline(nil)
	assert.Zero(t, mean)
	assert.Equal(t, MinBaselineStd, std)
}

func TestComputeBaseline_Population(t *testing.T) {
	_, std := ComputeBaseline([]int64{0, 10})
	// Population std of {0,10} is 5, sample std would be ~7.07.
	assert.InDelta(t, 5.0, std, 1e-9)
	assert.False(t, math.IsNaN(std))
}

func TestMemoryStore_EnsureCreatesDefaults(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	p, err := s.Ensure(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
	assert.Zero(t, p.BaselineMean)
	assert.Equal(t, MinBaselineStd, p.BaselineStd)
	assert.Nil(t, p.LastDeviceID)
	assert.Equal(t, risk.TierLow, p.RiskTier)

	// Second call returns the existing profile.
	require.NoError(t, s.UpdateRisk(ctx, "u1", 55, risk.TierMedium))
	p, err = s.Ensure(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 55, p.RiskScore)
}

func TestMemoryStore_UpdateSignalsOverwritesWithNil(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, err := s.Ensure(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, s.UpdateSignals(ctx, "u1", strp("dev-1"), strp("NG")))
	p, _ := s.Get(ctx, "u1")
	assert.Equal(t, "dev-1", *p.LastDeviceID)
	assert.Equal(t, "NG", *p.LastCountry)

	require.NoError(t, s.UpdateSignals(ctx, "u1", nil, strp("GH")))
	p, _ = s.Get(ctx, "u1")
	assert.Nil(t, p.LastDeviceID)
	assert.Equal(t, "GH", *p.LastCountry)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p, _ := s.Ensure(ctx, "u1")
	p.BaselineMean = 999

	again, _ := s.Get(ctx, "u1")
	assert.Zero(t, again.BaselineMean)
}

func TestMemoryStore_UnknownUser(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrProfileNotFound)
	assert.ErrorIs(t, s.UpdateBaseline(context.Background(), "nobody", 1, 1), ErrProfileNotFound)
}

func TestMemoryStore_RollsBackWithUnit(t *testing.T) {
	s := NewMemoryStore()
	m := txn.NewMemoryManager()
	ctx := context.Background()

	_, err := s.Ensure(ctx, "existing")
	require.NoError(t, err)

	err = m.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.Ensure(ctx, "fresh"); err != nil {
			return err
		}
		if err := s.UpdateBaseline(ctx, "existing", 500, 20); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	_, err = s.Get(ctx, "fresh")
	assert.ErrorIs(t, err, ErrProfileNotFound)

	p, err := s.Get(ctx, "existing")
	require.NoError(t, err)
	assert.Zero(t, p.BaselineMean)
	assert.Equal(t, MinBaselineStd, p.BaselineStd)
}

func TestProfile_RiskProfile(t *testing.T) {
	p := &Profile{BaselineMean: 10, BaselineStd: 2, LastCountry: strp("NG")}
	rp := p.RiskProfile()
	assert.Equal(t, 10.0, rp.BaselineMean)
	assert.Equal(t, 2.0, rp.BaselineStd)
	assert.Equal(t, "NG", *rp.LastCountry)
	assert.Nil(t, rp.LastDeviceID)
}
