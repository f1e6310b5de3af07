package feedback

import (
	"context"
	"strings"
	"time"

	"github.com/campuslink/notifier/internal/domain"
	"github.com/campuslink/notifier/internal/pkg/logger"
)

var log = logger.New("feedback")

// Event is the transport feedback callback payload. Exactly one of Bounce
// or Complaint is set, selected by EventType.
type Event struct {
	EventType string     `json:"eventType"`
	Bounce    *Bounce    `json:"bounce,omitempty"`
	Complaint *Complaint `json:"complaint,omitempty"`
	Mail      Mail       `json:"mail"`
}

type Bounce struct {
	BounceType        string      `json:"bounceType"` // Permanent, Transient, Undetermined
	BounceSubType     string      `json:"bounceSubType,omitempty"`
	BouncedRecipients []Recipient `json:"bouncedRecipients"`
	Timestamp         time.Time   `json:"timestamp"`
}

type Complaint struct {
	ComplainedRecipients  []Recipient `json:"complainedRecipients"`
	ComplaintFeedbackType string      `json:"complaintFeedbackType,omitempty"`
	Timestamp             time.Time   `json:"timestamp"`
}

type Recipient struct {
	EmailAddress   string `json:"emailAddress"`
	Status         string `json:"status,omitempty"`
	Action         string `json:"action,omitempty"`
	DiagnosticCode string `json:"diagnosticCode,omitempty"`
}

type Mail struct {
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

// Suppressor is the slice of the suppression service the processor needs.
type Suppressor interface {
	Suppress(ctx context.Context, email string, reason domain.SuppressionReason, subtype domain.BounceSubtype, diagnosticCode, sourceMessageID string) error
}

// AuditLedger records one feedback entry per affected recipient.
type AuditLedger interface {
	PutFeedback(ctx context.Context, rec domain.FeedbackRecord) error
}

// feedbackAuditTTL bounds how long feedback audit entries are retained.
const feedbackAuditTTL = 365 * 24 * time.Hour

// Processor turns bounce and complaint callbacks into suppression state
// and audit entries. Re-processing a duplicate callback is harmless: both
// writes are upserts keyed by address or (message ID, recipient).
type Processor struct {
	suppressor Suppressor
	ledger     AuditLedger
	now        func() time.Time
}

func NewProcessor(suppressor Suppressor, ledger AuditLedger) *Processor {
	return &Processor{suppressor: suppressor, ledger: ledger, now: time.Now}
}

// HandleBounce records every bounced recipient and suppresses those whose
// bounce is permanent. Transient bounces (full mailbox, greylisting) only
// leave an audit trail.
func (p *Processor) HandleBounce(ctx context.Context, ev *Event) error {
	if ev.Bounce == nil {
		log.Warn("bounce event without bounce payload", "message_id", ev.Mail.MessageID)
		return nil
	}
	subtype := normalizeSubtype(ev.Bounce.BounceType)

	for _, rcpt := range ev.Bounce.BouncedRecipients {
		email := strings.ToLower(strings.TrimSpace(rcpt.EmailAddress))
		if email == "" {
			continue
		}

		p.audit(ctx, email, domain.ReasonBounce, subtype, rcpt.DiagnosticCode, ev.Mail.MessageID)

		if !domain.ShouldSuppress(domain.ReasonBounce, subtype) {
			log.Info("transient bounce, not suppressing",
				"email", email, "subtype", string(subtype), "message_id", ev.Mail.MessageID)
			continue
		}
		if err := p.suppressor.Suppress(ctx, email, domain.ReasonBounce, subtype, rcpt.DiagnosticCode, ev.Mail.MessageID); err != nil {
			return err
		}
	}
	return nil
}

// HandleComplaint suppresses every complained recipient. A complaint is
// always a standing signal regardless of type.
func (p *Processor) HandleComplaint(ctx context.Context, ev *Event) error {
	if ev.Complaint == nil {
		log.Warn("complaint event without complaint payload", "message_id", ev.Mail.MessageID)
		return nil
	}

	for _, rcpt := range ev.Complaint.ComplainedRecipients {
		email := strings.ToLower(strings.TrimSpace(rcpt.EmailAddress))
		if email == "" {
			continue
		}

		p.audit(ctx, email, domain.ReasonComplaint, "", ev.Complaint.ComplaintFeedbackType, ev.Mail.MessageID)

		if err := p.suppressor.Suppress(ctx, email, domain.ReasonComplaint, "", ev.Complaint.ComplaintFeedbackType, ev.Mail.MessageID); err != nil {
			return err
		}
	}
	return nil
}

// Process dispatches on the callback's event type. Unknown types are
// logged and acknowledged so the feedback topic does not redeliver them
// forever.
func (p *Processor) Process(ctx context.Context, ev *Event) error {
	switch strings.ToLower(ev.EventType) {
	case "bounce":
		return p.HandleBounce(ctx, ev)
	case "complaint":
		return p.HandleComplaint(ctx, ev)
	default:
		log.Warn("unhandled feedback event type", "event_type", ev.EventType)
		return nil
	}
}

// audit writes the per-recipient ledger entry. Best effort, same policy
// as delivery ledger writes.
func (p *Processor) audit(ctx context.Context, email string, reason domain.SuppressionReason, subtype domain.BounceSubtype, diagnosticCode, messageID string) {
	now := p.now().UTC()
	rec := domain.FeedbackRecord{
		MessageID:      messageID,
		Recipient:      email,
		Reason:         reason,
		Subtype:        subtype,
		DiagnosticCode: diagnosticCode,
		ReceivedAt:     now,
		ExpiresAt:      now.Add(feedbackAuditTTL).Unix(),
	}
	if err := p.ledger.PutFeedback(ctx, rec); err != nil {
		log.Error("feedback audit write failed",
			"email", email, "message_id", messageID, "error", err.Error())
	}
}

func normalizeSubtype(bounceType string) domain.BounceSubtype {
	switch strings.ToLower(strings.TrimSpace(bounceType)) {
	case "permanent":
		return domain.SubtypePermanent
	case "transient":
		return domain.SubtypeTransient
	default:
		return domain.SubtypeUndetermined
	}
}
