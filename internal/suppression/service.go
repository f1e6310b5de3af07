package suppression

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/campuslink/notifier/internal/domain"
	"github.com/campuslink/notifier/internal/pkg/logger"
)

var log = logger.New("suppression")

// bounceAuditTTL is how long bounce-sourced records are retained for
// audit. Complaint records carry no TTL and never auto-expire.
const bounceAuditTTL = 365 * 24 * time.Hour

// Service implements suppression business logic over a Store, with an
// optional bloom cache in front of reads. Safe for concurrent use.
type Service struct {
	store Store
	cache *Cache
	now   func() time.Time
}

// NewService creates a suppression service backed by the given store.
// The cache may be nil; it is consulted only after WarmCache succeeds.
func NewService(store Store, cache *Cache) *Service {
	return &Service{store: store, cache: cache, now: time.Now}
}

// IsSuppressed checks whether an address should be blocked from sending.
// Store errors propagate so the caller can decide to fail open.
func (s *Service) IsSuppressed(ctx context.Context, email string) (bool, error) {
	email = normalize(email)
	if email == "" {
		return false, fmt.Errorf("email is required")
	}

	if s.cache != nil && !s.cache.MayContain(email) {
		return false, nil
	}

	rec, err := s.store.GetSuppression(ctx, email)
	if err != nil {
		return false, fmt.Errorf("suppression lookup: %w", err)
	}
	return rec != nil, nil
}

// Suppress upserts a standing suppression for an address. Idempotent:
// re-processing the same feedback callback leaves the store unchanged
// apart from the refreshed reason fields.
func (s *Service) Suppress(ctx context.Context, email string, reason domain.SuppressionReason, subtype domain.BounceSubtype, diagnosticCode, sourceMessageID string) error {
	email = normalize(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}

	rec := domain.SuppressionRecord{
		Email:           email,
		Reason:          reason,
		Subtype:         subtype,
		DiagnosticCode:  diagnosticCode,
		SourceMessageID: sourceMessageID,
		FirstSeenAt:     s.now().UTC(),
	}
	if reason == domain.ReasonBounce {
		rec.ExpiresAt = s.now().Add(bounceAuditTTL).Unix()
	}

	if err := s.store.PutSuppression(ctx, rec); err != nil {
		return fmt.Errorf("suppress %s: %w", logger.RedactEmail(email), err)
	}
	if s.cache != nil {
		s.cache.Add(email)
	}
	log.Info("address suppressed", "email", email, "reason", string(reason), "subtype", string(subtype))
	return nil
}

// Unsuppress removes a suppression. Explicit operator action only.
// The bloom cache cannot forget the address; subsequent lookups fall
// through to the store, which now answers not-suppressed.
func (s *Service) Unsuppress(ctx context.Context, email string) error {
	email = normalize(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if err := s.store.DeleteSuppression(ctx, email); err != nil {
		return err
	}
	log.Info("address unsuppressed by operator", "email", email)
	return nil
}

// Get returns the suppression record for an address, or (nil, nil).
func (s *Service) Get(ctx context.Context, email string) (*domain.SuppressionRecord, error) {
	return s.store.GetSuppression(ctx, normalize(email))
}

// List returns all current suppression records.
func (s *Service) List(ctx context.Context) ([]domain.SuppressionRecord, error) {
	return s.store.ListSuppressions(ctx)
}

// WarmCache seeds the bloom cache from a full store snapshot so that
// negative lookups stop hitting the store.
func (s *Service) WarmCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	recs, err := s.store.ListSuppressions(ctx)
	if err != nil {
		return fmt.Errorf("warming suppression cache: %w", err)
	}
	emails := make([]string, len(recs))
	for i, r := range recs {
		emails[i] = r.Email
	}
	s.cache.Seed(emails)
	log.Info("suppression cache warmed", "records", len(recs))
	return nil
}

// RefreshCache re-warms the bloom cache from the store on a fixed
// interval so suppressions written by other processes over the same
// store (operator CLI, a peer instance handling feedback) become
// visible here. Blocks until ctx is cancelled; run it in a goroutine.
func (s *Service) RefreshCache(ctx context.Context, interval time.Duration) {
	if s.cache == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.WarmCache(ctx); err != nil {
				log.Warn("suppression cache refresh failed", "error", err.Error())
			}
		}
	}
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
