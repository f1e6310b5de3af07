package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/campuslink/notifier/internal/domain"
	"github.com/campuslink/notifier/internal/suppression"
)

// MemoryStore is an in-process Store for local development and tests.
// Data does not survive a restart.
type MemoryStore struct {
	mu           sync.RWMutex
	suppressions map[string]domain.SuppressionRecord
	deliveries   map[string][]domain.DeliveryRecord
	feedback     map[string]domain.FeedbackRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		suppressions: make(map[string]domain.SuppressionRecord),
		deliveries:   make(map[string][]domain.DeliveryRecord),
		feedback:     make(map[string]domain.FeedbackRecord),
	}
}

func (m *MemoryStore) GetSuppression(_ context.Context, email string) (*domain.SuppressionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.suppressions[email]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) PutSuppression(_ context.Context, rec domain.SuppressionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.suppressions[rec.Email]; ok {
		rec.FirstSeenAt = existing.FirstSeenAt
	}
	m.suppressions[rec.Email] = rec
	return nil
}

func (m *MemoryStore) DeleteSuppression(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.suppressions[email]; !ok {
		return suppression.ErrNotFound
	}
	delete(m.suppressions, email)
	return nil
}

func (m *MemoryStore) ListSuppressions(_ context.Context) ([]domain.SuppressionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.SuppressionRecord, 0, len(m.suppressions))
	for _, rec := range m.suppressions {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *MemoryStore) PutDelivery(_ context.Context, rec domain.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[rec.Recipient] = append(m.deliveries[rec.Recipient], rec)
	return nil
}

func (m *MemoryStore) ListDeliveries(_ context.Context, recipient string, limit int) ([]domain.DeliveryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.deliveries[recipient]
	out := make([]domain.DeliveryRecord, len(recs))
	copy(out, recs)
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) PutFeedback(_ context.Context, rec domain.FeedbackRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback[rec.MessageID+"#"+rec.Recipient] = rec
	return nil
}

// FeedbackCount reports the number of distinct feedback entries. Test
// helper for idempotency assertions.
func (m *MemoryStore) FeedbackCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.feedback)
}
