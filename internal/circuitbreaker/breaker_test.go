package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := New(3, time.Minute)

	for i := 0; i < 2; i++ {
		b.RecordFailure("k")
		assert.Equal(t, StateClosed, b.State("k"))
	}
	b.RecordFailure("k")
	assert.Equal(t, StateOpen, b.State("k"))
	assert.False(t, b.Allow("k"))

	// Other keys are unaffected.
	assert.True(t, b.Allow("other"))
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := New(2, time.Minute)
	b.RecordFailure("k")
	b.RecordSuccess("k")
	b.RecordFailure("k")
	assert.Equal(t, StateClosed, b.State("k"))
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := New(1, 10*time.Second)
	b.now = func() time.Time { return now }

	b.RecordFailure("k")
	assert.False(t, b.Allow("k"))

	now = now.Add(11 * time.Second)
	assert.True(t, b.Allow("k"), "probe allowed after open duration")
	assert.Equal(t, StateHalfOpen, b.State("k"))
	assert.False(t, b.Allow("k"), "only one probe at a time")

	b.RecordSuccess("k")
	assert.Equal(t, StateClosed, b.State("k"))
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Now()
	b := New(1, time.Second)
	b.now = func() time.Time { return now }

	b.RecordFailure("k")
	now = now.Add(2 * time.Second)
	assert.True(t, b.Allow("k"))
	b.RecordFailure("k")
	assert.Equal(t, StateOpen, b.State("k"))
}

func TestBreaker_Execute(t *testing.T) {
	b := New(2, time.Minute)
	boom := errors.New("boom")

	assert.ErrorIs(t, b.Execute("k", func() error { return boom }), boom)
	assert.ErrorIs(t, b.Execute("k", func() error { return boom }), boom)

	called := false
	err := b.Execute("k", func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
