// Package events publishes decision events to downstream consumers after the
// unit of work that produced them has committed.
//
// Publishing is best effort: the audit ledger is the system of record, so a
// lost event never invalidates a decision.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Event types.
const (
	TypeDecisionEvaluated = "decision.evaluated"
	TypeCaseResolved    = "case.resolved"
)

// Message is the envelope written to the broker.
type Message struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// Encode marshals the envelope.
func (m Message) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", m.Type, err)
	}
	return b, nil
}

// Publisher delivers events keyed by partition key (the user ID, so one
// user's events stay ordered).
type Publisher interface {
	Publish(ctx context.Context, key string, msg Message) error
	Close() error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Message) error { return nil }
func (NopPublisher) Close() error                                   { return nil }

var _ Publisher = NopPublisher{}
