package feedback

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
)

// snsEnvelope is the SNS wrapper around an SES feedback notification.
type snsEnvelope struct {
	Type         string `json:"Type"`
	MessageId    string `json:"MessageId"`
	TopicArn     string `json:"TopicArn"`
	SubscribeURL string `json:"SubscribeURL"`
	Message      string `json:"Message"`
}

// PayloadArchiver optionally keeps the raw callback bytes. Best effort.
type PayloadArchiver interface {
	SaveFeedbackPayload(ctx context.Context, kind string, payload []byte) error
}

// WebhookHandler terminates the SNS topic that carries SES bounce and
// complaint notifications. Subscription confirmations are followed
// automatically; notifications are unwrapped and handed to the Processor.
type WebhookHandler struct {
	processor *Processor
	archiver  PayloadArchiver // nil disables archival
	httpGet   func(url string) (*http.Response, error)

	received atomic.Uint64
	failed   atomic.Uint64
}

func NewWebhookHandler(processor *Processor, archiver PayloadArchiver) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		archiver:  archiver,
		httpGet:   http.Get,
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var envelope snsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if envelope.Type == "SubscriptionConfirmation" {
		h.confirmSubscription(envelope)
		w.WriteHeader(http.StatusOK)
		return
	}

	// Messages can arrive SNS-wrapped or raw (e.g. local testing posts
	// the SES payload directly).
	payload := []byte(envelope.Message)
	if envelope.Message == "" {
		payload = body
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		log.Warn("unparseable feedback payload", "error", err.Error())
		http.Error(w, "invalid feedback payload", http.StatusBadRequest)
		return
	}
	// SES uses notificationType for topic notifications and eventType
	// for event publishing; accept both.
	if ev.EventType == "" {
		var alt struct {
			NotificationType string `json:"notificationType"`
		}
		_ = json.Unmarshal(payload, &alt)
		ev.EventType = alt.NotificationType
	}

	h.received.Add(1)
	if h.archiver != nil {
		kind := strings.ToLower(ev.EventType)
		if kind == "" {
			kind = "unknown"
		}
		if err := h.archiver.SaveFeedbackPayload(r.Context(), kind, payload); err != nil {
			log.Warn("feedback payload archival failed", "error", err.Error())
		}
	}

	if err := h.processor.Process(r.Context(), &ev); err != nil {
		h.failed.Add(1)
		log.Error("feedback processing failed",
			"event_type", ev.EventType, "message_id", ev.Mail.MessageID, "error", err.Error())
		// 500 so SNS redelivers; processing is idempotent.
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) confirmSubscription(envelope snsEnvelope) {
	log.Info("SNS subscription confirmation received", "topic", envelope.TopicArn)
	resp, err := h.httpGet(envelope.SubscribeURL)
	if err != nil {
		log.Error("SNS subscription confirmation failed", "error", err.Error())
		return
	}
	resp.Body.Close()
	log.Info("SNS subscription confirmed", "topic", envelope.TopicArn)
}

// Counters reports lifetime totals for the health endpoint.
func (h *WebhookHandler) Counters() (received, failed uint64) {
	return h.received.Load(), h.failed.Load()
}
