package domain

import "strings"

// Priority indicates the urgency of a notification. It is carried through
// to the transport as a message tag and otherwise opaque to the pipeline.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// NormalizePriority maps arbitrary input to a known priority, defaulting
// to medium for unrecognized values.
func NormalizePriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityLow:
		return PriorityLow
	case PriorityHigh:
		return PriorityHigh
	case PriorityUrgent:
		return PriorityUrgent
	default:
		return PriorityMedium
	}
}

// TrackingFlags controls per-message open/click tracking at the transport.
type TrackingFlags struct {
	Opens  bool `json:"opens"`
	Clicks bool `json:"clicks"`
}

// NotificationRequest is one intended send. Created by the event router or
// a direct API caller, immutable once built, and consumed exactly once by
// the batch dispatcher.
//
// TemplateID is optional: when empty, HTMLBody must carry a fully formed
// body and the message is sent as-is.
type NotificationRequest struct {
	Email        string            `json:"email"`
	Name         string            `json:"name,omitempty"`
	Subject      string            `json:"subject"`
	TemplateID   string            `json:"templateId,omitempty"`
	TemplateData map[string]string `json:"templateData,omitempty"`
	HTMLBody     string            `json:"htmlBody,omitempty"`
	TextBody     string            `json:"textBody,omitempty"`
	Priority     Priority          `json:"priority"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Tracking     TrackingFlags     `json:"tracking"`
}

// Recipient returns the normalized recipient address.
func (r NotificationRequest) Recipient() string {
	return strings.ToLower(strings.TrimSpace(r.Email))
}

// RenderedMessage is the fully-resolved message ready for the channel
// sender. It is owned exclusively by the send operation that produced it
// and is discarded after dispatch; only its outcome is persisted.
type RenderedMessage struct {
	MessageID string
	Subject   string
	HTMLBody  string
	TextBody  string

	// Template provenance. The transport uses these instead of the
	// pre-rendered bodies when native templating is enabled.
	TemplateID   string
	TemplateData map[string]string
}
