package sanctions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chibuike-kt/risk-engine/internal/audit"
	"github.com/chibuike-kt/risk-engine/internal/txn"
	"github.com/chibuike-kt/risk-engine/internal/validation"
)

// Service manages the screening list.
type Service struct {
	store  Store
	ledger *audit.Ledger
	tx     txn.Manager
}

// NewService creates a sanctions service. Additions are audited on ledger.
func NewService(store Store, ledger *audit.Ledger, tx txn.Manager) *Service {
	return &Service{store: store, ledger: ledger, tx: tx}
}

// Add lists value under kind. Values are stored exactly as given and match
// counterparties byte for byte. A new entry appends SANCTIONS_ADDED in the
// same unit of work; a duplicate changes nothing.
func (s *Service) Add(ctx context.Context, kind, value string) (bool, error) {
	kind = strings.TrimSpace(kind)
	if err := validation.Validate(
		validation.Required("value", value),
		validation.MaxLength("value", value, validation.MaxIdentifierLength),
		validation.MaxLength("kind", kind, 64),
	); err != nil {
		return false, err
	}
	if kind == "" {
		kind = DefaultKind
	}

	var inserted bool
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		inserted, err = s.store.Add(ctx, &Entry{Kind: kind, Value: value, AddedAt: time.Now().UTC()})
		if err != nil {
			return fmt.Errorf("failed to add sanctions entry: %w", err)
		}
		if !inserted {
			return nil
		}
		_, err = s.ledger.Append(ctx, audit.EventSanctionsAdded, audit.SubjectSanctions, value,
			map[string]any{"kind": kind, "value": value}, audit.ActorSystem)
		return err
	})
	if err != nil {
		return false, err
	}
	if inserted {
		EntriesAddedTotal.Inc()
	}
	return inserted, nil
}

// IsListed reports whether value is on the list.
func (s *Service) IsListed(ctx context.Context, value string) (bool, error) {
	return s.store.IsListed(ctx, value)
}
