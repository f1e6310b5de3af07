package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslink/notifier/internal/domain"
	"github.com/campuslink/notifier/internal/suppression"
)

func TestMemorySuppressionRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec, err := store.GetSuppression(ctx, "absent@example.edu")
	require.NoError(t, err)
	assert.Nil(t, rec)

	first := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.PutSuppression(ctx, domain.SuppressionRecord{
		Email:       "parent@example.edu",
		Reason:      domain.ReasonComplaint,
		FirstSeenAt: first,
	}))

	// Second write keeps the original first-seen timestamp.
	require.NoError(t, store.PutSuppression(ctx, domain.SuppressionRecord{
		Email:       "parent@example.edu",
		Reason:      domain.ReasonComplaint,
		FirstSeenAt: first.Add(time.Hour),
	}))

	rec, err = store.GetSuppression(ctx, "parent@example.edu")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, first, rec.FirstSeenAt)

	require.NoError(t, store.DeleteSuppression(ctx, "parent@example.edu"))
	assert.ErrorIs(t, store.DeleteSuppression(ctx, "parent@example.edu"), suppression.ErrNotFound)
}

func TestMemoryListSuppressionsSorted(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, email := range []string{"c@example.edu", "a@example.edu", "b@example.edu"} {
		require.NoError(t, store.PutSuppression(ctx, domain.SuppressionRecord{
			Email: email, Reason: domain.ReasonBounce, FirstSeenAt: time.Now(),
		}))
	}

	recs, err := store.ListSuppressions(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "a@example.edu", recs[0].Email)
	assert.Equal(t, "c@example.edu", recs[2].Email)
}

func TestMemoryDeliveriesNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.PutDelivery(ctx, domain.DeliveryRecord{
			MessageID: string(rune('a' + i)),
			Recipient: "parent@example.edu",
			SentAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	recs, err := store.ListDeliveries(ctx, "parent@example.edu", 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "c", recs[0].MessageID)
	assert.Equal(t, "b", recs[1].MessageID)
}

func TestMemoryFeedbackIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := domain.FeedbackRecord{
		MessageID:  "msg-1",
		Recipient:  "parent@example.edu",
		Reason:     domain.ReasonComplaint,
		ReceivedAt: time.Now(),
	}
	require.NoError(t, store.PutFeedback(ctx, rec))
	require.NoError(t, store.PutFeedback(ctx, rec))
	assert.Equal(t, 1, store.FeedbackCount())
}
