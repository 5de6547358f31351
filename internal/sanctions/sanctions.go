// Package sanctions maintains the screening list counterparties are checked
// against before an action is scored.
package sanctions

import (
	"context"
	"time"
)

// DefaultKind is recorded when an entry is added without a kind.
const DefaultKind = "ADDRESS"

// Entry is one screened value.
type Entry struct {
	Kind    string    `json:"kind"`
	Value   string    `json:"value"`
	AddedAt time.Time `json:"added_at"`
}

// Store persists the screening list. Values are unique.
type Store interface {
	// Add inserts e and reports whether it was new. Adding an existing
	// value is a no-op.
	Add(ctx context.Context, e *Entry) (bool, error)
	IsListed(ctx context.Context, value string) (bool, error)
}
