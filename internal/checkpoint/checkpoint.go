// Package checkpoint attests to the state of the audit chain.
//
// A checkpoint records the chain tip and length for one UTC day. Checkpoints
// can be signed with Ed25519 so a third party holding only the public key can
// confirm the ledger state at that point. Signatures cover the canonical
// encoding of {day, tip_hash, audit_count} and are never stored.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chibuike-kt/risk-engine/internal/audit"
)

// DayLayout is the format of Checkpoint.Day.
const DayLayout = "2006-01-02"

var (
	ErrNotFound          = errors.New("checkpoint not found")
	ErrSignerUnavailable = errors.New("checkpoint signer unavailable")
	ErrNoPublicKey       = errors.New("no public key available")
)

// ChainInvalidError is returned when a checkpoint is requested over a chain
// that fails verification.
type ChainInvalidError struct {
	Result *audit.VerifyResult
}

func (e *ChainInvalidError) Error() string {
	if e.Result == nil || e.Result.BrokenAt == nil {
		return "audit chain invalid"
	}
	return fmt.Sprintf("audit chain invalid: %s at %d", e.Result.Reason, *e.Result.BrokenAt)
}

// Checkpoint is the attested chain state for one day.
type Checkpoint struct {
	Day        string    `json:"day"`
	TipHash    string    `json:"tip_hash"`
	AuditCount int64     `json:"audit_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Attestation is the exact set of fields a signature covers.
type Attestation struct {
	Day        string `json:"day"`
	TipHash    string `json:"tip_hash"`
	AuditCount int64  `json:"audit_count"`
}

// Attestation returns the signed view of c.
func (c *Checkpoint) Attestation() Attestation {
	return Attestation{Day: c.Day, TipHash: c.TipHash, AuditCount: c.AuditCount}
}

// SignedCheckpoint is a checkpoint with a detached signature.
type SignedCheckpoint struct {
	Checkpoint   *Checkpoint `json:"checkpoint"`
	Signature    string      `json:"signature"`
	PublicKeyPEM string      `json:"public_key_pem"`
}

// Store persists one checkpoint per day.
type Store interface {
	// Upsert writes c, replacing any checkpoint for the same day.
	Upsert(ctx context.Context, c *Checkpoint) (*Checkpoint, error)
	Get(ctx context.Context, day string) (*Checkpoint, error)
}

// ChainVerifier replays the audit chain.
type ChainVerifier interface {
	Verify(ctx context.Context) (*audit.VerifyResult, error)
}
