package domain

import "time"

// FeedbackRecord is the audit entry written for each recipient affected by
// a bounce or complaint callback. Keyed by (originating message ID,
// recipient) so that duplicate delivery of the same callback upserts the
// same entry instead of appending.
type FeedbackRecord struct {
	MessageID      string            `json:"message_id" dynamodbav:"MessageID"`
	Recipient      string            `json:"recipient" dynamodbav:"Recipient"`
	Reason         SuppressionReason `json:"reason" dynamodbav:"Reason"`
	Subtype        BounceSubtype     `json:"subtype,omitempty" dynamodbav:"Subtype,omitempty"`
	DiagnosticCode string            `json:"diagnostic_code,omitempty" dynamodbav:"DiagnosticCode,omitempty"`
	ReceivedAt     time.Time         `json:"received_at" dynamodbav:"ReceivedAt"`
	ExpiresAt      int64             `json:"expires_at,omitempty" dynamodbav:"TTL,omitempty"`
}
