package feedback

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslink/notifier/internal/storage"
	"github.com/campuslink/notifier/internal/suppression"
)

func newTestWebhook(t *testing.T) (*WebhookHandler, *suppression.Service) {
	t.Helper()
	store := storage.NewMemoryStore()
	svc := suppression.NewService(store, nil)
	return NewWebhookHandler(NewProcessor(svc, store), nil), svc
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/ses-feedback", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestWebhookSubscriptionConfirmation(t *testing.T) {
	h, svc := newTestWebhook(t)

	var confirmedURL string
	h.httpGet = func(url string) (*http.Response, error) {
		confirmedURL = url
		return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(""))}, nil
	}

	w := post(t, h, `{
		"Type": "SubscriptionConfirmation",
		"TopicArn": "arn:aws:sns:us-east-1:123:ses-feedback",
		"SubscribeURL": "https://sns.example.com/confirm?token=abc"
	}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://sns.example.com/confirm?token=abc", confirmedURL)

	// Confirmation must not touch suppression state.
	recs, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestWebhookSNSWrappedBounce(t *testing.T) {
	h, svc := newTestWebhook(t)

	inner, err := json.Marshal(map[string]any{
		"notificationType": "Bounce",
		"mail":             map[string]any{"messageId": "msg-1"},
		"bounce": map[string]any{
			"bounceType": "Permanent",
			"bouncedRecipients": []map[string]any{
				{"emailAddress": "alice@example.edu", "diagnosticCode": "550"},
			},
		},
	})
	require.NoError(t, err)

	envelope, err := json.Marshal(map[string]any{
		"Type":    "Notification",
		"Message": string(inner),
	})
	require.NoError(t, err)

	w := post(t, h, string(envelope))
	assert.Equal(t, http.StatusOK, w.Code)

	blocked, err := svc.IsSuppressed(context.Background(), "alice@example.edu")
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestWebhookRawComplaintPayload(t *testing.T) {
	h, svc := newTestWebhook(t)

	w := post(t, h, `{
		"eventType": "complaint",
		"mail": {"messageId": "msg-2"},
		"complaint": {"complainedRecipients": [{"emailAddress": "bob@example.edu"}]}
	}`)
	assert.Equal(t, http.StatusOK, w.Code)

	blocked, err := svc.IsSuppressed(context.Background(), "bob@example.edu")
	require.NoError(t, err)
	assert.True(t, blocked)

	received, failed := h.Counters()
	assert.Equal(t, uint64(1), received)
	assert.Zero(t, failed)
}

func TestWebhookInvalidJSON(t *testing.T) {
	h, _ := newTestWebhook(t)
	w := post(t, h, "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type capturingArchiver struct {
	kinds    []string
	payloads [][]byte
}

func (c *capturingArchiver) SaveFeedbackPayload(_ context.Context, kind string, payload []byte) error {
	c.kinds = append(c.kinds, kind)
	c.payloads = append(c.payloads, payload)
	return nil
}

func TestWebhookArchivesRawPayload(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := suppression.NewService(store, nil)
	archiver := &capturingArchiver{}
	h := NewWebhookHandler(NewProcessor(svc, store), archiver)

	w := post(t, h, `{
		"eventType": "bounce",
		"mail": {"messageId": "msg-3"},
		"bounce": {"bounceType": "Transient", "bouncedRecipients": [{"emailAddress": "carol@example.edu"}]}
	}`)
	assert.Equal(t, http.StatusOK, w.Code)

	require.Len(t, archiver.kinds, 1)
	assert.Equal(t, "bounce", archiver.kinds[0])
	assert.Contains(t, string(archiver.payloads[0]), "carol@example.edu")
}
