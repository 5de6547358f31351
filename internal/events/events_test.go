package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chibuike-kt/risk-engine/internal/retry"
)

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	calls    int
	written  []kafka.Message
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func newTestPublisher(w *fakeWriter) *KafkaPublisher {
	p := newKafkaPublisher(w, "risk.decisions", nil)
	p.policy = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	return p
}

func TestKafkaPublisher_WritesEnvelope(t *testing.T) {
	w := &fakeWriter{}
	p := newTestPublisher(w)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := p.Publish(context.Background(), "u_1", Message{
		Type:       TypeDecisionEvaluated,
		OccurredAt: at,
		Data:       map[string]any{"decision_id": "d1", "outcome": "ALLOW"},
	})
	require.NoError(t, err)
	require.Len(t, w.written, 1)

	msg := w.written[0]
	assert.Equal(t, "u_1", string(msg.Key))
	assert.Equal(t, at, msg.Time)

	var env map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, TypeDecisionEvaluated, env["type"])
	assert.Equal(t, "2026-01-02T03:04:05Z", env["occurred_at"])
	assert.Equal(t, "d1", env["data"].(map[string]any)["decision_id"])
}

func TestKafkaPublisher_RetriesTransientFailures(t *testing.T) {
	w := &fakeWriter{failures: 2}
	p := newTestPublisher(w)

	require.NoError(t, p.Publish(context.Background(), "u_1", Message{Type: TypeCaseResolved}))
	assert.Equal(t, 3, w.calls)
	assert.Len(t, w.written, 1)
}

func TestKafkaPublisher_OpensCircuit(t *testing.T) {
	w := &fakeWriter{failures: 1000}
	p := newTestPublisher(w)

	for i := 0; i < 5; i++ {
		assert.Error(t, p.Publish(context.Background(), "u_1", Message{Type: TypeDecisionEvaluated}))
	}
	calls := w.calls

	err := p.Publish(context.Background(), "u_1", Message{Type: TypeDecisionEvaluated})
	assert.ErrorContains(t, err, "circuit breaker open")
	assert.Equal(t, calls, w.calls, "open circuit must not reach the broker")
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, newTestPublisher(w).Close())
	assert.True(t, w.closed)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), "k", Message{}))
	assert.NoError(t, p.Close())
}
