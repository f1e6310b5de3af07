package domain

import "time"

// SuppressionReason enumerates why an address was suppressed.
type SuppressionReason string

const (
	ReasonBounce    SuppressionReason = "bounce"
	ReasonComplaint SuppressionReason = "complaint"
)

// BounceSubtype distinguishes permanent delivery failures from transient
// ones (mailbox full, greylisting). Only permanent bounces suppress.
type BounceSubtype string

const (
	SubtypePermanent    BounceSubtype = "permanent"
	SubtypeTransient    BounceSubtype = "transient"
	SubtypeUndetermined BounceSubtype = "undetermined"
)

// ShouldSuppress reports whether a feedback signal warrants a standing
// suppression: every complaint, and bounces classified permanent.
func ShouldSuppress(reason SuppressionReason, subtype BounceSubtype) bool {
	if reason == ReasonComplaint {
		return true
	}
	return reason == ReasonBounce && subtype == SubtypePermanent
}

// SuppressionRecord is a standing decision never to send to an address
// until an operator removes it. Written only by the feedback processor or
// an operator; read-only to the send path.
//
// ExpiresAt is an audit-retention TTL only. Complaint records carry none
// (zero) -- they never auto-expire.
type SuppressionRecord struct {
	Email           string            `json:"email" dynamodbav:"Email"`
	Reason          SuppressionReason `json:"reason" dynamodbav:"Reason"`
	Subtype         BounceSubtype     `json:"subtype,omitempty" dynamodbav:"Subtype,omitempty"`
	DiagnosticCode  string            `json:"diagnostic_code,omitempty" dynamodbav:"DiagnosticCode,omitempty"`
	SourceMessageID string            `json:"source_message_id,omitempty" dynamodbav:"SourceMessageID,omitempty"`
	FirstSeenAt     time.Time         `json:"first_seen_at" dynamodbav:"FirstSeenAt"`
	ExpiresAt       int64             `json:"expires_at,omitempty" dynamodbav:"TTL,omitempty"`
}
