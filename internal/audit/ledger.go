package audit

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/chibuike-kt/risk-engine/internal/canonical"
	"github.com/chibuike-kt/risk-engine/internal/idgen"
	"github.com/chibuike-kt/risk-engine/internal/traces"
	"github.com/chibuike-kt/risk-engine/internal/txn"
)

// Ledger appends to and verifies the audit chain.
type Ledger struct {
	store Store
	tx    txn.Manager
	now   func() time.Time
}

// NewLedger creates a ledger over store. Appends run inside tx so the tip
// lock is held until the caller's unit of work commits.
func NewLedger(store Store, tx txn.Manager) *Ledger {
	return &Ledger{store: store, tx: tx, now: time.Now}
}

// WithClock overrides the clock used for created_at.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Append adds one event to the chain. An empty actor is recorded as null.
func (l *Ledger) Append(ctx context.Context, eventType, subjectType, subjectID string, payload map[string]any, actor string) (*Event, error) {
	ctx, span := traces.StartSpan(ctx, "audit.Append", attribute.String("audit.event_type", eventType))
	defer span.End()
	defer observeOp("append")()

	if payload == nil {
		payload = map[string]any{}
	}
	body, err := canonical.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit payload: %w", err)
	}

	var actorPtr *string
	if actor != "" {
		actorPtr = &actor
	}

	var appended *Event
	err = l.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		appended, err = l.store.Append(ctx, func(prevHash string) (*Event, error) {
			e := &Event{
				EventID:     idgen.ID(),
				EventType:   eventType,
				SubjectType: subjectType,
				SubjectID:   subjectID,
				Actor:       actorPtr,
				Payload:     body,
				PrevHash:    prevHash,
				CreatedAt:   l.now().UTC().Format(time.RFC3339),
			}
			hash, err := ComputeHash(prevHash, e)
			if err != nil {
				return nil, err
			}
			e.Hash = hash
			return e, nil
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append audit event: %w", err)
	}

	AppendsTotal.WithLabelValues(eventType).Inc()
	return appended, nil
}

var errStopScan = errors.New("stop scan")

// Verify replays the chain from GenesisHash and reports the first broken
// link, if any.
func (l *Ledger) Verify(ctx context.Context) (*VerifyResult, error) {
	ctx, span := traces.StartSpan(ctx, "audit.Verify")
	defer span.End()
	defer observeOp("verify")()

	var (
		expectedPrev string
		index        int64
		broken       *VerifyResult
	)
	check := func(e *Event) error {
		if !hashEqual(e.PrevHash, expectedPrev) {
			broken = &VerifyResult{
				BrokenAt:         ptr(index),
				Reason:           ReasonPrevHashMismatch,
				EventID:          e.EventID,
				ExpectedPrevHash: expectedPrev,
				FoundPrevHash:    e.PrevHash,
			}
			return errStopScan
		}

		expected, err := ComputeHash(expectedPrev, e)
		if err != nil {
			return err
		}
		if !hashEqual(expected, e.Hash) {
			broken = &VerifyResult{
				BrokenAt:     ptr(index),
				Reason:       ReasonHashMismatch,
				EventID:      e.EventID,
				ExpectedHash: expected,
				FoundHash:    e.Hash,
			}
			return errStopScan
		}

		expectedPrev = e.Hash
		index++
		return nil
	}

	// Scanning inside a unit keeps appends of in-flight units out of view.
	err := l.tx.RunInTx(ctx, func(ctx context.Context) error {
		expectedPrev, index, broken = GenesisHash, 0, nil
		if err := l.store.Scan(ctx, check); err != nil && !errors.Is(err, errStopScan) {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}

	if broken != nil {
		VerificationsTotal.WithLabelValues("broken").Inc()
		span.SetAttributes(attribute.String("audit.broken_reason", broken.Reason))
		return broken, nil
	}

	VerificationsTotal.WithLabelValues("ok").Inc()
	return &VerifyResult{OK: true, Count: ptr(index), TipHash: expectedPrev}, nil
}

func hashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func ptr[T any](v T) *T { return &v }
