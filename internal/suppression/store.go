package suppression

import (
	"context"
	"errors"

	"github.com/campuslink/notifier/internal/domain"
)

// ErrNotFound is returned when removing an address that is not suppressed.
var ErrNotFound = errors.New("suppression record not found")

// Store defines the data access contract for suppression records.
// Implementations must support concurrent reads and upsert-style
// concurrent writes; every write is scoped to a single address key.
type Store interface {
	// GetSuppression returns the record for an address, or (nil, nil)
	// when the address is not suppressed.
	GetSuppression(ctx context.Context, email string) (*domain.SuppressionRecord, error)

	// PutSuppression upserts a record keyed by its address. Re-writing an
	// existing address must preserve its FirstSeenAt (idempotent).
	PutSuppression(ctx context.Context, rec domain.SuppressionRecord) error

	// DeleteSuppression removes a record. Returns ErrNotFound if absent.
	DeleteSuppression(ctx context.Context, email string) error

	// ListSuppressions returns a snapshot of all records.
	ListSuppressions(ctx context.Context) ([]domain.SuppressionRecord, error)
}
