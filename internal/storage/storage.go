package storage

import (
	"context"

	"github.com/campuslink/notifier/internal/domain"
	"github.com/campuslink/notifier/internal/suppression"
)

// Store is the durable persistence contract for the delivery pipeline:
// suppression records plus the append-only delivery ledger and feedback
// audit entries. Every implementation must be safe for concurrent use;
// the dispatcher writes ledger entries from multiple goroutines at once.
type Store interface {
	suppression.Store

	// PutDelivery appends one ledger entry for a send attempt. Entries
	// are never mutated afterwards; retention is handled by the backend
	// TTL mechanism, not the caller.
	PutDelivery(ctx context.Context, rec domain.DeliveryRecord) error

	// ListDeliveries returns a recipient's most recent ledger entries,
	// newest first, capped at limit.
	ListDeliveries(ctx context.Context, recipient string, limit int) ([]domain.DeliveryRecord, error)

	// PutFeedback upserts a bounce or complaint audit entry keyed by
	// (originating message ID, recipient), so replayed callbacks land on
	// the same entry.
	PutFeedback(ctx context.Context, rec domain.FeedbackRecord) error
}

var (
	_ Store = (*DynamoStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
