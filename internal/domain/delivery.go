package domain

import "time"

// ItemStatus is the outcome of a single request within a batch.
type ItemStatus string

const (
	// StatusSent means the transport accepted the message.
	StatusSent ItemStatus = "sent"
	// StatusFailed means rendering or the transport rejected the message.
	StatusFailed ItemStatus = "failed"
	// StatusSuppressed means the recipient is on the suppression list and
	// the send was intentionally skipped. Not a failure in the alerting
	// sense; recorded distinctly from transport errors.
	StatusSuppressed ItemStatus = "suppressed"
)

// ProviderIDFailed is recorded in the ledger when no provider message ID
// exists because the send never succeeded.
const ProviderIDFailed = "failed"

// ItemResult is the per-request outcome inside a BatchResult. Index is the
// position of the request in the submitted batch; results always preserve
// input order regardless of completion order.
type ItemResult struct {
	Index      int        `json:"index"`
	Recipient  string     `json:"recipient"`
	Status     ItemStatus `json:"status"`
	MessageID  string     `json:"messageId,omitempty"`
	ProviderID string     `json:"providerId,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// BatchResult aggregates the outcomes of one dispatcher invocation.
// Callers always receive counts plus the full per-item detail, never a
// single opaque success flag.
type BatchResult struct {
	BatchID     string       `json:"batchId"`
	Results     []ItemResult `json:"results"`
	Processed   int          `json:"processed"`
	Succeeded   int          `json:"succeeded"`
	Failed      int          `json:"failed"`
	Suppressed  int          `json:"suppressed"`
	StartedAt   time.Time    `json:"startedAt"`
	CompletedAt time.Time    `json:"completedAt"`
}

// Tally recomputes the aggregate counts from the per-item results.
func (b *BatchResult) Tally() {
	b.Processed = len(b.Results)
	b.Succeeded, b.Failed, b.Suppressed = 0, 0, 0
	for _, r := range b.Results {
		switch r.Status {
		case StatusSent:
			b.Succeeded++
		case StatusSuppressed:
			b.Suppressed++
		default:
			b.Failed++
		}
	}
}

// DeliveryRecord is one append-only ledger entry for a send attempt.
// Never mutated after creation; the store garbage-collects it after
// ExpiresAt via its TTL mechanism, not the pipeline.
type DeliveryRecord struct {
	MessageID  string            `json:"message_id" dynamodbav:"MessageID"`
	ProviderID string            `json:"provider_id" dynamodbav:"ProviderID"`
	Recipient  string            `json:"recipient" dynamodbav:"Recipient"`
	TemplateID string            `json:"template_id,omitempty" dynamodbav:"TemplateID,omitempty"`
	Priority   Priority          `json:"priority" dynamodbav:"Priority"`
	Success    bool              `json:"success" dynamodbav:"Success"`
	Error      string            `json:"error,omitempty" dynamodbav:"Error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty" dynamodbav:"Metadata,omitempty"`
	SentAt     time.Time         `json:"sent_at" dynamodbav:"SentAt"`
	ExpiresAt  int64             `json:"expires_at" dynamodbav:"TTL"`
}
