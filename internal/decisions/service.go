package decisions

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chibuike-kt/risk-engine/internal/audit"
	"github.com/chibuike-kt/risk-engine/internal/events"
	"github.com/chibuike-kt/risk-engine/internal/idgen"
	"github.com/chibuike-kt/risk-engine/internal/pagination"
	"github.com/chibuike-kt/risk-engine/internal/profiles"
	"github.com/chibuike-kt/risk-engine/internal/risk"
	"github.com/chibuike-kt/risk-engine/internal/traces"
	"github.com/chibuike-kt/risk-engine/internal/txn"
	"github.com/chibuike-kt/risk-engine/internal/validation"
)

const (
	DefaultBaselineWindow = 30
	DefaultCaseListLimit  = 50

	publishTimeout = 3 * time.Second
)

// Service evaluates actions and manages review cases.
type Service struct {
	store     Store
	profiles  profiles.Store
	sanctions SanctionsChecker
	engine    *risk.Engine
	ledger    *audit.Ledger
	tx        txn.Manager

	publisher      events.Publisher
	logger         *slog.Logger
	now            func() time.Time
	baselineWindow int
	caseListLimit  int
}

// NewService creates a decision service.
func NewService(store Store, profileStore profiles.Store, sanctions SanctionsChecker, engine *risk.Engine, ledger *audit.Ledger, tx txn.Manager) *Service {
	return &Service{
		store:          store,
		profiles:       profileStore,
		sanctions:      sanctions,
		engine:         engine,
		ledger:         ledger,
		tx:             tx,
		publisher:      events.NopPublisher{},
		logger:         slog.Default(),
		now:            time.Now,
		baselineWindow: DefaultBaselineWindow,
		caseListLimit:  DefaultCaseListLimit,
	}
}

// WithPublisher sets the publisher notified after each committed decision.
func (s *Service) WithPublisher(p events.Publisher) *Service {
	s.publisher = p
	return s
}

// WithLogger sets the logger used for post-commit failures.
func (s *Service) WithLogger(l *slog.Logger) *Service {
	s.logger = l
	return s
}

// WithClock overrides the clock used for created_at and opened_at.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithBaselineWindow sets how many prior amounts feed the rolling baseline.
func (s *Service) WithBaselineWindow(n int) *Service {
	if n > 0 {
		s.baselineWindow = n
	}
	return s
}

// WithCaseListLimit caps the number of cases ListCases returns.
func (s *Service) WithCaseListLimit(n int) *Service {
	if n > 0 {
		s.caseListLimit = n
	}
	return s
}

func validateInput(key string, in Input) error {
	return validation.Validate(
		validation.Required("idempotency_key", key),
		validation.MaxLength("idempotency_key", key, validation.MaxIdentifierLength),
		validation.Required("user_id", in.UserID),
		validation.MaxLength("user_id", in.UserID, validation.MaxIdentifierLength),
		validation.Required("action", in.Action),
		validation.MaxLength("action", in.Action, validation.MaxIdentifierLength),
		validation.NonNegative("amount_minor", &in.AmountMinor),
		validation.Required("currency", in.Currency),
		validation.MaxLength("currency", in.Currency, 16),
		validation.Required("counterparty", in.Counterparty),
		validation.MaxLength("counterparty", in.Counterparty, validation.MaxIdentifierLength),
	)
}

// Evaluate scores in exactly once per idempotency key. A repeat with the same
// payload returns the first response's bytes unchanged; a repeat with a
// different payload fails with ErrIdempotencyConflict.
func (s *Service) Evaluate(ctx context.Context, key string, in Input) (*EvaluateResult, error) {
	if err := validateInput(key, in); err != nil {
		return nil, err
	}

	ctx, span := traces.StartSpan(ctx, "decisions.Evaluate", traces.UserID(in.UserID))
	defer span.End()
	start := time.Now()

	requestHash, err := in.RequestHash()
	if err != nil {
		return nil, err
	}

	var (
		result   *EvaluateResult
		decision *Decision
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockIdempotencyKey(ctx, key); err != nil {
			return fmt.Errorf("failed to lock idempotency key: %w", err)
		}

		rec, err := s.store.GetIdempotency(ctx, key)
		switch {
		case err == nil:
			if subtle.ConstantTimeCompare([]byte(rec.RequestHash), []byte(requestHash)) != 1 {
				return ErrIdempotencyConflict
			}
			result = &EvaluateResult{Body: rec.Response, DecisionID: rec.DecisionID, Replayed: true}
			return nil
		case !errors.Is(err, ErrIdempotencyNotFound):
			return fmt.Errorf("failed to read idempotency record: %w", err)
		}

		decision, result, err = s.decide(ctx, key, requestHash, in)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrIdempotencyConflict) {
			ConflictsTotal.Inc()
		}
		return nil, err
	}

	if result.Replayed {
		ReplaysTotal.Inc()
		return result, nil
	}

	DecisionsTotal.WithLabelValues(string(decision.Outcome)).Inc()
	EvaluateDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		traces.DecisionID(decision.ID),
		traces.Outcome(string(decision.Outcome)),
		traces.Score(decision.RiskScore),
	)
	s.logger.Info("decision evaluated",
		"decision_id", decision.ID,
		"user_id", decision.UserID,
		"outcome", decision.Outcome,
		"risk_score", decision.RiskScore,
	)
	s.publish(ctx, decision.UserID, events.TypeDecisionEvaluated, decision)
	return result, nil
}

// decide runs steps that follow a first sighting of key. ctx carries the
// caller's unit of work.
func (s *Service) decide(ctx context.Context, key, requestHash string, in Input) (*Decision, *EvaluateResult, error) {
	profile, err := s.profiles.Ensure(ctx, in.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load profile: %w", err)
	}

	assessment, err := s.engine.Evaluate(ctx, in.riskInput(), profile.RiskProfile(), &lookup{store: s.store, sanctions: s.sanctions})
	if err != nil {
		return nil, nil, err
	}

	prior, err := s.store.RecentAmounts(ctx, in.UserID, s.baselineWindow)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read recent amounts: %w", err)
	}
	mean, std := profiles.ComputeBaseline(append(prior, in.AmountMinor))
	if err := s.profiles.UpdateBaseline(ctx, in.UserID, mean, std); err != nil {
		return nil, nil, fmt.Errorf("failed to update baseline: %w", err)
	}

	now := s.now().UTC()
	decisionID := idgen.ID()

	var caseID *string
	if assessment.Outcome.OpensCase() {
		c := &Case{
			ID:         idgen.ID(),
			UserID:     in.UserID,
			DecisionID: decisionID,
			Status:     CaseOpen,
			RiskScore:  assessment.Score,
			RiskTier:   assessment.Tier,
			Outcome:    assessment.Outcome,
			Reasons:    assessment.Reasons,
			OpenedAt:   now,
		}
		if err := s.store.OpenCase(ctx, c); err != nil {
			return nil, nil, fmt.Errorf("failed to open case: %w", err)
		}
		caseID = &c.ID
	}

	d := &Decision{
		ID:           decisionID,
		UserID:       in.UserID,
		Action:       in.Action,
		AmountMinor:  in.AmountMinor,
		Currency:     in.Currency,
		Counterparty: in.Counterparty,
		Country:      in.Country,
		DeviceID:     in.DeviceID,
		Outcome:      assessment.Outcome,
		RiskScore:    assessment.Score,
		RiskTier:     assessment.Tier,
		Reasons:      assessment.Reasons,
		CaseID:       caseID,
		CreatedAt:    now,
	}
	if err := s.store.CreateDecision(ctx, d); err != nil {
		return nil, nil, fmt.Errorf("failed to create decision: %w", err)
	}

	if err := s.profiles.UpdateSignals(ctx, in.UserID, in.DeviceID, in.Country); err != nil {
		return nil, nil, fmt.Errorf("failed to update profile signals: %w", err)
	}
	if err := s.profiles.UpdateRisk(ctx, in.UserID, assessment.Score, assessment.Tier); err != nil {
		return nil, nil, fmt.Errorf("failed to update profile risk: %w", err)
	}

	body, err := json.Marshal(Response{
		DecisionID: d.ID,
		CaseID:     caseID,
		Outcome:    assessment.Outcome,
		RiskScore:  assessment.Score,
		RiskTier:   assessment.Tier,
		Reasons:    assessment.Reasons,
		Signals:    assessment.Signals,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode response: %w", err)
	}

	if err := s.store.SaveIdempotency(ctx, &IdempotencyRecord{
		Key:         key,
		UserID:      in.UserID,
		RequestHash: requestHash,
		Response:    body,
		DecisionID:  d.ID,
		CreatedAt:   now,
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to save idempotency record: %w", err)
	}

	if _, err := s.ledger.Append(ctx, audit.EventDecisionCreated, audit.SubjectDecision, d.ID, map[string]any{
		"user_id":      d.UserID,
		"action":       d.Action,
		"amount_minor": d.AmountMinor,
		"currency":     d.Currency,
		"counterparty": d.Counterparty,
		"outcome":      d.Outcome,
		"risk_score":   d.RiskScore,
		"risk_tier":    d.RiskTier,
		"case_id":      caseID,
	}, audit.ActorSystem); err != nil {
		return nil, nil, err
	}

	if caseID != nil {
		if _, err := s.ledger.Append(ctx, audit.EventCaseOpened, audit.SubjectCase, *caseID, map[string]any{
			"user_id":     d.UserID,
			"decision_id": d.ID,
			"outcome":     d.Outcome,
			"risk_score":  d.RiskScore,
			"risk_tier":   d.RiskTier,
			"reasons":     d.Reasons,
		}, audit.ActorSystem); err != nil {
			return nil, nil, err
		}
	}

	return d, &EvaluateResult{Body: body, DecisionID: d.ID}, nil
}

// ResolveCase moves an open case to RESOLVED. The resolution is matched
// case-insensitively; an empty actor is recorded as DefaultResolveActor.
func (s *Service) ResolveCase(ctx context.Context, id, resolution, notes, actor string) error {
	resolution = strings.ToUpper(strings.TrimSpace(resolution))
	if err := validation.Validate(
		validation.Required("case_id", id),
		validation.OneOf("resolution", resolution, string(ResolutionApprove), string(ResolutionDeny)),
		validation.MaxLength("notes", notes, validation.MaxStringLength),
		validation.MaxLength("actor", actor, validation.MaxIdentifierLength),
	); err != nil {
		return err
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = DefaultResolveActor
	}

	var notesValue any
	if notes != "" {
		notesValue = notes
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		ok, err := s.store.ResolveCase(ctx, id, Resolution(resolution), notes, s.now().UTC())
		if err != nil {
			return fmt.Errorf("failed to resolve case: %w", err)
		}
		if !ok {
			return ErrCaseNotOpen
		}
		_, err = s.ledger.Append(ctx, audit.EventCaseResolved, audit.SubjectCase, id, map[string]any{
			"resolution": resolution,
			"notes":      notesValue,
		}, actor)
		return err
	})
	if err != nil {
		return err
	}

	CaseResolutionsTotal.WithLabelValues(resolution).Inc()
	s.publish(ctx, id, events.TypeCaseResolved, map[string]any{
		"case_id":    id,
		"resolution": resolution,
		"actor":      actor,
	})
	return nil
}

// GetCase returns a case by ID.
func (s *Service) GetCase(ctx context.Context, id string) (*Case, error) {
	return s.store.GetCase(ctx, id)
}

// ListCases returns a page of the newest cases with the given status ("open" or
// "resolved", case-insensitive; empty means open).
func (s *Service) ListCases(ctx context.Context, status, cursor string) (*CasePage, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if status == "" {
		status = string(CaseOpen)
	}
	if err := validation.Validate(
		validation.OneOf("status", strings.ToLower(status), "open", "resolved"),
	); err != nil {
		return nil, err
	}
	after, err := pagination.Decode(cursor)
	if err != nil {
		return nil, validation.New("cursor", "is not a valid cursor")
	}

	cases, err := s.store.ListCases(ctx, CaseStatus(status), after, s.caseListLimit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	cases, next, more := pagination.ComputePage(cases, s.caseListLimit, func(c *Case) (time.Time, string) {
		return c.OpenedAt, c.ID
	})
	if cases == nil {
		cases = []*Case{}
	}
	return &CasePage{Cases: cases, NextCursor: next, HasMore: more}, nil
}

// publish delivers an event after commit. The request may already be
// finishing, so the send gets its own deadline.
func (s *Service) publish(ctx context.Context, key, eventType string, data any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err := s.publisher.Publish(ctx, key, events.Message{
		Type:       eventType,
		OccurredAt: s.now().UTC(),
		Data:       data,
	})
	if err != nil {
		s.logger.Warn("failed to publish event", "type", eventType, "key", key, "error", err)
	}
}

// lookup answers the engine's questions from the decision history and the
// sanctions list.
type lookup struct {
	store     Store
	sanctions SanctionsChecker
}

func (l *lookup) IsSanctioned(ctx context.Context, counterparty string) (bool, error) {
	return l.sanctions.IsListed(ctx, counterparty)
}

func (l *lookup) CountSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	return l.store.CountSince(ctx, userID, since)
}

func (l *lookup) SumSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	return l.store.SumSince(ctx, userID, since)
}

var _ risk.Lookup = (*lookup)(nil)
