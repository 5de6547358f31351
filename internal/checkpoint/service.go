package checkpoint

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/chibuike-kt/risk-engine/internal/traces"
	"github.com/chibuike-kt/risk-engine/internal/validation"
)

// Service creates, signs and verifies checkpoints.
type Service struct {
	store    Store
	chain    ChainVerifier
	signer   *Signer
	verifier *Verifier
	now      func() time.Time
}

// NewService creates a checkpoint service. signer may be nil, in which case
// only unsigned checkpoints are available.
func NewService(store Store, chain ChainVerifier, signer *Signer) *Service {
	s := &Service{store: store, chain: chain, signer: signer, now: time.Now}
	if signer != nil {
		s.verifier = signer.Verifier()
	}
	return s
}

// WithVerifier sets a verify-only public key, used when the private key is
// not deployed on this instance.
func (s *Service) WithVerifier(v *Verifier) *Service {
	if s.verifier == nil {
		s.verifier = v
	}
	return s
}

// WithClock overrides the clock that decides the checkpoint day.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SignerAvailable reports whether signed checkpoints can be produced.
func (s *Service) SignerAvailable() bool {
	return s.signer != nil
}

// Create verifies the chain and records today's checkpoint of its tip.
func (s *Service) Create(ctx context.Context) (*Checkpoint, error) {
	cp, err := s.create(ctx)
	if err != nil {
		return nil, err
	}
	CreatedTotal.WithLabelValues("false").Inc()
	return cp, nil
}

func (s *Service) create(ctx context.Context) (*Checkpoint, error) {
	ctx, span := traces.StartSpan(ctx, "checkpoint.Create")
	defer span.End()

	res, err := s.chain.Verify(ctx)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, &ChainInvalidError{Result: res}
	}

	var count int64
	if res.Count != nil {
		count = *res.Count
	}
	cp, err := s.store.Upsert(ctx, &Checkpoint{
		Day:        s.now().UTC().Format(DayLayout),
		TipHash:    res.TipHash,
		AuditCount: count,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store checkpoint: %w", err)
	}
	span.SetAttributes(attribute.Int64("audit.count", cp.AuditCount))
	return cp, nil
}

// CreateSigned creates today's checkpoint and signs it.
func (s *Service) CreateSigned(ctx context.Context) (*SignedCheckpoint, error) {
	if s.signer == nil {
		return nil, ErrSignerUnavailable
	}
	cp, err := s.create(ctx)
	if err != nil {
		return nil, err
	}
	sig, err := s.signer.Sign(cp.Attestation())
	if err != nil {
		return nil, fmt.Errorf("failed to sign checkpoint: %w", err)
	}
	CreatedTotal.WithLabelValues("true").Inc()
	return &SignedCheckpoint{
		Checkpoint:   cp,
		Signature:    sig,
		PublicKeyPEM: s.signer.PublicKeyPEM(),
	}, nil
}

// VerifyRequest is a checkpoint attestation presented for verification.
type VerifyRequest struct {
	Day          string `json:"day"`
	TipHash      string `json:"tip_hash"`
	AuditCount   *int64 `json:"audit_count"`
	Signature    string `json:"signature"`
	PublicKeyPEM string `json:"public_key_pem"`
}

// VerifySignature checks a signature against the supplied public key, or the
// local one when none is supplied. An unusable supplied key verifies as false.
func (s *Service) VerifySignature(_ context.Context, req VerifyRequest) (bool, error) {
	if err := validation.Validate(
		validation.Required("day", req.Day),
		validation.Required("tip_hash", req.TipHash),
		validation.Present("audit_count", req.AuditCount),
		validation.Required("signature", req.Signature),
	); err != nil {
		return false, err
	}

	verifier := s.verifier
	if req.PublicKeyPEM != "" {
		v, err := ParsePublicKeyPEM(req.PublicKeyPEM)
		if err != nil {
			return false, nil
		}
		verifier = v
	}
	if verifier == nil {
		return false, ErrNoPublicKey
	}

	return verifier.Verify(Attestation{
		Day:        req.Day,
		TipHash:    req.TipHash,
		AuditCount: *req.AuditCount,
	}, req.Signature), nil
}

// Get returns the checkpoint for day (YYYY-MM-DD); an empty day means today.
func (s *Service) Get(ctx context.Context, day string) (*Checkpoint, error) {
	if day == "" {
		day = s.now().UTC().Format(DayLayout)
	}
	if _, err := time.Parse(DayLayout, day); err != nil {
		return nil, validation.New("day", "must be a date in YYYY-MM-DD format")
	}
	return s.store.Get(ctx, day)
}
