package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslink/notifier/internal/config"
	"github.com/campuslink/notifier/internal/dispatch"
	"github.com/campuslink/notifier/internal/domain"
	"github.com/campuslink/notifier/internal/feedback"
	"github.com/campuslink/notifier/internal/storage"
	"github.com/campuslink/notifier/internal/suppression"
	"github.com/campuslink/notifier/internal/template"
)

type stubSender struct{}

func (stubSender) Send(_ context.Context, recipient string, _ *domain.RenderedMessage, _ domain.Priority) (string, error) {
	return "provider-" + recipient, nil
}

func newTestServer(t *testing.T) (http.Handler, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore()
	suppressions := suppression.NewService(store, nil)

	renderer := template.NewRenderer()
	for _, name := range []string{"generic", "grade-update", "welcome"} {
		require.NoError(t, renderer.Register(template.Template{
			Name:    name,
			Subject: "{{title}}",
			HTML:    "<p>{{message}}</p>",
		}))
	}

	cfg := config.NotifyConfig{ChunkSize: 10, BatchSizeLimit: 50, LedgerRetentionDays: 90}
	dispatcher := dispatch.NewDispatcher(cfg, suppressions, renderer, stubSender{}, store, nil, nil)

	webhook := feedback.NewWebhookHandler(feedback.NewProcessor(suppressions, store), nil)
	handlers := NewHandlers(dispatcher, suppressions, renderer, store)
	return SetupRoutes(handlers, webhook), store
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	h, _ := newTestServer(t)
	w := doJSON(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Contains(t, resp, "counters")
}

func TestSendNotification(t *testing.T) {
	h, store := newTestServer(t)

	w := doJSON(t, h, http.MethodPost, "/api/notifications", `{
		"email": "parent@example.edu",
		"templateId": "welcome",
		"templateData": {"title": "Hi", "message": "Welcome aboard"}
	}`)
	require.Equal(t, http.StatusOK, w.Code)

	var item domain.ItemResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	assert.Equal(t, domain.StatusSent, item.Status)
	assert.Equal(t, "provider-parent@example.edu", item.ProviderID)

	recs, err := store.ListDeliveries(context.Background(), "parent@example.edu", 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSendNotificationMissingEmail(t *testing.T) {
	h, _ := newTestServer(t)
	w := doJSON(t, h, http.MethodPost, "/api/notifications", `{"templateId": "welcome"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendBatch(t *testing.T) {
	h, _ := newTestServer(t)

	w := doJSON(t, h, http.MethodPost, "/api/notifications/batch", `{
		"batchId": "batch-7",
		"requests": [
			{"email": "one@example.edu", "templateId": "welcome"},
			{"email": "two@example.edu", "templateId": "welcome"}
		]
	}`)
	require.Equal(t, http.StatusOK, w.Code)

	var result domain.BatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "batch-7", result.BatchID)
	assert.Equal(t, 2, result.Succeeded)
	assert.Len(t, result.Results, 2)
}

func TestSendBatchOversizedRejected(t *testing.T) {
	h, store := newTestServer(t)

	var reqs []string
	for i := 0; i < 51; i++ {
		reqs = append(reqs, fmt.Sprintf(`{"email": "u%d@example.edu", "templateId": "welcome"}`, i))
	}
	body := `{"requests": [` + strings.Join(reqs, ",") + `]}`

	w := doJSON(t, h, http.MethodPost, "/api/notifications/batch", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	recs, err := store.ListDeliveries(context.Background(), "u0@example.edu", 10)
	require.NoError(t, err)
	assert.Empty(t, recs, "rejected batch must write no ledger entries")
}

func TestIngestSingleEvent(t *testing.T) {
	h, _ := newTestServer(t)

	w := doJSON(t, h, http.MethodPost, "/api/events", `{
		"notificationId": "n-1",
		"email": "parent@example.edu",
		"type": "grades",
		"title": "New grade posted",
		"message": "Math: A-",
		"priority": "high"
	}`)
	require.Equal(t, http.StatusOK, w.Code)

	var result domain.BatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result.Results, 1)
	assert.Equal(t, domain.StatusSent, result.Results[0].Status)
}

func TestIngestEventArray(t *testing.T) {
	h, _ := newTestServer(t)

	w := doJSON(t, h, http.MethodPost, "/api/events", `[
		{"email": "one@example.edu", "type": "announcements", "title": "PTA meeting"},
		{"type": "announcements", "title": "no address"},
		{"email": "two@example.edu", "type": "announcements", "title": "PTA meeting"}
	]`)
	require.Equal(t, http.StatusOK, w.Code)

	var result domain.BatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Len(t, result.Results, 2, "the event without email is dropped during routing")
}

func TestIngestAllEventsUnroutable(t *testing.T) {
	h, _ := newTestServer(t)
	w := doJSON(t, h, http.MethodPost, "/api/events", `{"type": "grades"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSuppressionLifecycle(t *testing.T) {
	h, _ := newTestServer(t)

	// Add.
	w := doJSON(t, h, http.MethodPost, "/api/suppressions", `{
		"email": "parent@example.edu", "reason": "complaint"
	}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	// Get.
	w = doJSON(t, h, http.MethodGet, "/api/suppressions/parent@example.edu", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rec domain.SuppressionRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, domain.ReasonComplaint, rec.Reason)

	// List.
	w = doJSON(t, h, http.MethodGet, "/api/suppressions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "parent@example.edu")

	// Sending to the address is now skipped.
	w = doJSON(t, h, http.MethodPost, "/api/notifications", `{
		"email": "parent@example.edu", "templateId": "welcome"
	}`)
	require.Equal(t, http.StatusOK, w.Code)
	var item domain.ItemResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	assert.Equal(t, domain.StatusSuppressed, item.Status)

	// Operator override removes it.
	w = doJSON(t, h, http.MethodDelete, "/api/suppressions/parent@example.edu", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, h, http.MethodDelete, "/api/suppressions/parent@example.edu", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddSuppressionInvalidReason(t *testing.T) {
	h, _ := newTestServer(t)
	w := doJSON(t, h, http.MethodPost, "/api/suppressions", `{
		"email": "parent@example.edu", "reason": "manual"
	}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListDeliveriesRequiresRecipient(t *testing.T) {
	h, _ := newTestServer(t)
	w := doJSON(t, h, http.MethodGet, "/api/deliveries", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeedbackWebhookSuppressesFutureSends(t *testing.T) {
	h, _ := newTestServer(t)

	w := doJSON(t, h, http.MethodPost, "/webhooks/ses-feedback", `{
		"eventType": "bounce",
		"mail": {"messageId": "msg-1"},
		"bounce": {
			"bounceType": "Permanent",
			"bouncedRecipients": [{"emailAddress": "alice@example.edu"}]
		}
	}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/notifications", `{
		"email": "alice@example.edu", "templateId": "welcome"
	}`)
	require.Equal(t, http.StatusOK, w.Code)

	var item domain.ItemResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	assert.Equal(t, domain.StatusSuppressed, item.Status)
}
