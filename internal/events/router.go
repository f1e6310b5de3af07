package events

import (
	"fmt"
	"strings"

	"github.com/campuslink/notifier/internal/domain"
	"github.com/campuslink/notifier/internal/pkg/logger"
)

var log = logger.New("events")

// Event is the inbound payload from the upstream event bus. Only Email is
// required; everything else degrades gracefully.
type Event struct {
	NotificationID string            `json:"notificationId"`
	UserID         string            `json:"userId"`
	Email          string            `json:"email"`
	Name           string            `json:"name"`
	Type           string            `json:"type"`
	Title          string            `json:"title"`
	Message        string            `json:"message"`
	Priority       string            `json:"priority"`
	Metadata       map[string]string `json:"metadata"`
}

// categoryTemplates maps event categories to registered template names.
// Unknown categories fall back to the generic template so that a new
// upstream event type is delivered rather than dropped.
var categoryTemplates = map[string]string{
	"announcements": "announcement",
	"grades":        "grade-update",
	"attendance":    "attendance-alert",
	"assignments":   "assignment-due",
	"system":        "system-notice",
}

// GenericTemplate is used for events whose category has no mapping.
const GenericTemplate = "generic"

// Route converts an inbound event into a NotificationRequest. The only
// fatal condition is a missing email address.
func Route(ev Event) (domain.NotificationRequest, error) {
	email := strings.TrimSpace(ev.Email)
	if email == "" {
		return domain.NotificationRequest{}, fmt.Errorf("event %s: missing email", ev.NotificationID)
	}

	templateID, ok := categoryTemplates[strings.ToLower(strings.TrimSpace(ev.Type))]
	if !ok {
		templateID = GenericTemplate
		if ev.Type != "" {
			log.Debug("unknown event category, using generic template",
				"category", ev.Type, "notification_id", ev.NotificationID)
		}
	}

	// Metadata moves through verbatim; correlation IDs ride along under
	// reserved keys so a ledger entry can be traced back to the event.
	metadata := make(map[string]string, len(ev.Metadata)+2)
	for k, v := range ev.Metadata {
		metadata[k] = v
	}
	if ev.NotificationID != "" {
		metadata["notification_id"] = ev.NotificationID
	}
	if ev.UserID != "" {
		metadata["user_id"] = ev.UserID
	}

	return domain.NotificationRequest{
		Email:      email,
		Name:       ev.Name,
		Subject:    ev.Title,
		TemplateID: templateID,
		TemplateData: map[string]string{
			"name":    ev.Name,
			"title":   ev.Title,
			"message": ev.Message,
		},
		Priority: domain.NormalizePriority(ev.Priority),
		Metadata: metadata,
	}, nil
}

// RouteBatch converts a slice of events, dropping only those without an
// address. The skipped count is logged for upstream visibility.
func RouteBatch(evs []Event) []domain.NotificationRequest {
	out := make([]domain.NotificationRequest, 0, len(evs))
	skipped := 0
	for _, ev := range evs {
		req, err := Route(ev)
		if err != nil {
			skipped++
			log.Warn("event dropped", "error", err.Error())
			continue
		}
		out = append(out, req)
	}
	if skipped > 0 {
		log.Warn("events skipped during routing", "skipped", skipped, "total", len(evs))
	}
	return out
}
