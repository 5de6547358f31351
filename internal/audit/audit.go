// Package audit implements the tamper-evident audit ledger.
//
// Events form a singly linked hash chain: each event stores the hash of its
// predecessor and its own hash, computed as
//
//	hex(SHA256(prev_hash || canonical(envelope)))
//
// where the envelope is {event_id, event_type, subject_type, subject_id,
// actor, payload, created_at}. The first event links to GenesisHash. Any
// edit to a stored event, or any removal or reordering, is detected by Verify.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chibuike-kt/risk-engine/internal/canonical"
)

// GenesisHash is the prev_hash of the first event.
var GenesisHash = strings.Repeat("0", 64)

// Event types.
const (
	EventDecisionCreated = "DECISION_CREATED"
	EventCaseOpened      = "CASE_OPENED"
	EventCaseResolved    = "CASE_RESOLVED"
	EventSanctionsAdded  = "SANCTIONS_ADDED"
)

// Subject types.
const (
	SubjectDecision  = "decision"
	SubjectCase      = "case"
	SubjectSanctions = "sanctions"
)

// ActorSystem is recorded for events the service emits on its own behalf.
const ActorSystem = "system"

// Event is one link of the chain. CreatedAt is kept as the exact text that
// was hashed so verification never depends on timestamp re-formatting.
type Event struct {
	Seq         int64           `json:"seq"`
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	SubjectType string          `json:"subject_type"`
	SubjectID   string          `json:"subject_id"`
	Actor       *string         `json:"actor"`
	Payload     json.RawMessage `json:"payload"`
	PrevHash    string          `json:"prev_hash"`
	Hash        string          `json:"hash"`
	CreatedAt   string          `json:"created_at"`
}

// envelope is the hashed view of an event.
type envelope struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	SubjectType string          `json:"subject_type"`
	SubjectID   string          `json:"subject_id"`
	Actor       *string         `json:"actor"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   string          `json:"created_at"`
}

var corruptPayload = json.RawMessage(`{"_corrupt":true}`)

// ComputeHash returns the chain hash of e linked to prevHash. A payload that
// does not parse as a JSON object is hashed as {"_corrupt":true}.
func ComputeHash(prevHash string, e *Event) (string, error) {
	payload := e.Payload
	if !isObject(payload) {
		payload = corruptPayload
	}
	body, err := canonical.Marshal(envelope{
		EventID:     e.EventID,
		EventType:   e.EventType,
		SubjectType: e.SubjectType,
		SubjectID:   e.SubjectID,
		Actor:       e.Actor,
		Payload:     payload,
		CreatedAt:   e.CreatedAt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode audit envelope: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func isObject(raw json.RawMessage) bool {
	var m map[string]json.RawMessage
	return json.Unmarshal(raw, &m) == nil && m != nil
}

// Store persists events in insertion order.
type Store interface {
	// Append reads the current tip and inserts the event build returns for
	// it. The tip stays locked until the surrounding unit of work ends.
	Append(ctx context.Context, build func(prevHash string) (*Event, error)) (*Event, error)
	// Scan calls fn for every event in insertion order.
	Scan(ctx context.Context, fn func(*Event) error) error
}

// VerifyResult is the outcome of replaying the chain.
type VerifyResult struct {
	OK      bool   `json:"ok"`
	Count   *int64 `json:"count,omitempty"`
	TipHash string `json:"tip_hash,omitempty"`

	BrokenAt         *int64 `json:"broken_at,omitempty"`
	Reason           string `json:"reason,omitempty"`
	EventID          string `json:"event_id,omitempty"`
	ExpectedPrevHash string `json:"expected_prev_hash,omitempty"`
	FoundPrevHash    string `json:"found_prev_hash,omitempty"`
	ExpectedHash     string `json:"expected_hash,omitempty"`
	FoundHash        string `json:"found_hash,omitempty"`
}

// Mismatch reasons.
const (
	ReasonPrevHashMismatch = "prev_hash_mismatch"
	ReasonHashMismatch     = "hash_mismatch"
)
