package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/campuslink/notifier/internal/config"
	"github.com/campuslink/notifier/internal/domain"
	"github.com/campuslink/notifier/internal/pkg/logger"
)

var log = logger.New("dispatch")

// SuppressionChecker answers whether an address is blocked from sending.
type SuppressionChecker interface {
	IsSuppressed(ctx context.Context, email string) (bool, error)
}

// Renderer resolves a request's template and produces the message bodies.
type Renderer interface {
	Render(req domain.NotificationRequest) (*domain.RenderedMessage, error)
}

// Sender delivers one rendered message and returns the provider ID.
type Sender interface {
	Send(ctx context.Context, recipient string, msg *domain.RenderedMessage, priority domain.Priority) (string, error)
}

// Ledger records one entry per send attempt.
type Ledger interface {
	PutDelivery(ctx context.Context, rec domain.DeliveryRecord) error
}

// RateGuard is an optional pre-send throttle check. A denied send counts
// as a per-item failure, not a batch failure.
type RateGuard interface {
	Allow(ctx context.Context, recipient string) (bool, string, error)
}

// Archiver optionally receives the finished batch report. Best effort.
type Archiver interface {
	SaveBatchReport(ctx context.Context, result *domain.BatchResult) error
}

// Dispatcher fans a batch of notification requests out to the transport in
// fixed-size chunks. Items within a chunk run concurrently; chunks run
// strictly in sequence with a pause in between, which bounds concurrency
// and gives the transport natural backpressure.
type Dispatcher struct {
	suppressions SuppressionChecker
	renderer     Renderer
	sender       Sender
	ledger       Ledger
	rateGuard    RateGuard // nil disables throttle checks
	archiver     Archiver  // nil disables report archival

	chunkSize       int
	interChunkDelay time.Duration
	batchSizeLimit  int
	ledgerRetention time.Duration

	now func() time.Time

	// Lifetime counters for the health endpoint.
	dispatched  atomic.Uint64
	sent        atomic.Uint64
	failed      atomic.Uint64
	suppressed  atomic.Uint64
	ledgerFails atomic.Uint64
}

// NewDispatcher wires the per-item pipeline. rateGuard and archiver may be
// nil.
func NewDispatcher(cfg config.NotifyConfig, suppressions SuppressionChecker, renderer Renderer, sender Sender, ledger Ledger, rateGuard RateGuard, archiver Archiver) *Dispatcher {
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 10
	}
	batchLimit := cfg.BatchSizeLimit
	if batchLimit <= 0 {
		batchLimit = 50
	}
	return &Dispatcher{
		suppressions:    suppressions,
		renderer:        renderer,
		sender:          sender,
		ledger:          ledger,
		rateGuard:       rateGuard,
		archiver:        archiver,
		chunkSize:       chunkSize,
		interChunkDelay: cfg.InterChunkDelay(),
		batchSizeLimit:  batchLimit,
		ledgerRetention: cfg.LedgerRetention(),
		now:             time.Now,
	}
}

// Dispatch processes a batch and returns per-item outcomes in input order.
// An empty batch yields an empty result. An oversized batch is rejected
// with a *ValidationError before any item is touched. If ctx is cancelled
// mid-batch, in-flight items run to completion but no further chunk
// starts; the partial result is returned alongside the context error.
func (d *Dispatcher) Dispatch(ctx context.Context, batchID string, requests []domain.NotificationRequest) (*domain.BatchResult, error) {
	if len(requests) > d.batchSizeLimit {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("batch size %d exceeds limit %d", len(requests), d.batchSizeLimit),
		}
	}
	if batchID == "" {
		batchID = uuid.New().String()
	}

	result := &domain.BatchResult{
		BatchID:   batchID,
		Results:   make([]domain.ItemResult, 0, len(requests)),
		StartedAt: d.now().UTC(),
	}
	if len(requests) == 0 {
		result.CompletedAt = result.StartedAt
		return result, nil
	}

	log.Info("dispatching batch",
		"batch_id", batchID,
		"requests", len(requests),
		"chunk_size", d.chunkSize)

	var cancelled error
	for start := 0; start < len(requests); start += d.chunkSize {
		if start > 0 {
			if err := d.pause(ctx); err != nil {
				cancelled = err
				break
			}
		}

		end := start + d.chunkSize
		if end > len(requests) {
			end = len(requests)
		}
		chunk := requests[start:end]

		outcomes := make([]domain.ItemResult, len(chunk))
		var wg sync.WaitGroup
		for i, req := range chunk {
			wg.Add(1)
			go func(offset int, req domain.NotificationRequest) {
				defer wg.Done()
				outcomes[offset] = d.processItem(ctx, start+offset, req)
			}(i, req)
		}
		wg.Wait()
		result.Results = append(result.Results, outcomes...)
	}

	result.CompletedAt = d.now().UTC()
	result.Tally()
	d.dispatched.Add(uint64(result.Processed))

	log.Info("batch complete",
		"batch_id", batchID,
		"processed", result.Processed,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"suppressed", result.Suppressed)

	if d.archiver != nil {
		if err := d.archiver.SaveBatchReport(ctx, result); err != nil {
			log.Warn("batch report archival failed", "batch_id", batchID, "error", err.Error())
		}
	}
	return result, cancelled
}

// pause waits the inter-chunk delay, returning early if ctx is done.
func (d *Dispatcher) pause(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.interChunkDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(d.interChunkDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// processItem runs the full per-item pipeline. All failures are captured
// in the returned ItemResult; nothing escapes to abort sibling items.
func (d *Dispatcher) processItem(ctx context.Context, index int, req domain.NotificationRequest) domain.ItemResult {
	recipient := req.Recipient()
	item := domain.ItemResult{Index: index, Recipient: recipient}

	if recipient == "" {
		item.Status = domain.StatusFailed
		item.Error = "missing recipient address"
		d.failed.Add(1)
		return item
	}

	// Suppression lookup fails open: an unavailable store must not stop
	// the batch, the transport enforces its own suppression list too.
	blocked, err := d.suppressions.IsSuppressed(ctx, recipient)
	if err != nil {
		log.Warn("suppression check failed, proceeding",
			"recipient", recipient, "error", err.Error())
	} else if blocked {
		item.Status = domain.StatusSuppressed
		item.Error = "recipient suppressed"
		d.suppressed.Add(1)
		log.Info("send skipped, recipient suppressed", "recipient", recipient)
		return item
	}

	msg, err := d.renderer.Render(req)
	if err != nil {
		item.Status = domain.StatusFailed
		item.Error = err.Error()
		d.failed.Add(1)
		// Nothing rendered, so mint an ID for the attempt record.
		item.MessageID = uuid.New().String()
		d.record(ctx, item.MessageID, domain.ProviderIDFailed, req, false, item.Error)
		return item
	}
	messageID := msg.MessageID
	item.MessageID = messageID

	if d.rateGuard != nil {
		allowed, reason, err := d.rateGuard.Allow(ctx, recipient)
		if err != nil {
			log.Warn("rate guard unavailable, proceeding",
				"recipient", recipient, "error", err.Error())
		} else if !allowed {
			item.Status = domain.StatusFailed
			item.Error = "rate limited: " + reason
			d.failed.Add(1)
			d.record(ctx, messageID, domain.ProviderIDFailed, req, false, item.Error)
			return item
		}
	}

	providerID, err := d.sender.Send(ctx, recipient, msg, req.Priority)
	if err != nil {
		item.Status = domain.StatusFailed
		item.Error = err.Error()
		d.failed.Add(1)
		d.record(ctx, messageID, domain.ProviderIDFailed, req, false, item.Error)
		return item
	}

	item.Status = domain.StatusSent
	item.ProviderID = providerID
	d.sent.Add(1)
	d.record(ctx, messageID, providerID, req, true, "")
	return item
}

// record writes the ledger entry for one attempt. Best effort: a failed
// audit write is counted and logged, never surfaced as a delivery failure.
func (d *Dispatcher) record(ctx context.Context, messageID, providerID string, req domain.NotificationRequest, success bool, errMsg string) {
	now := d.now().UTC()
	rec := domain.DeliveryRecord{
		MessageID:  messageID,
		ProviderID: providerID,
		Recipient:  req.Recipient(),
		TemplateID: req.TemplateID,
		Priority:   req.Priority,
		Success:    success,
		Error:      errMsg,
		Metadata:   req.Metadata,
		SentAt:     now,
		ExpiresAt:  now.Add(d.ledgerRetention).Unix(),
	}
	if err := d.ledger.PutDelivery(ctx, rec); err != nil {
		d.ledgerFails.Add(1)
		lerr := &LedgerWriteError{MessageID: messageID, Err: err}
		log.Error("delivery ledger write failed", "error", lerr.Error())
	}
}

// Counters reports lifetime totals for the health endpoint.
func (d *Dispatcher) Counters() (dispatched, sent, failed, suppressed, ledgerFailures uint64) {
	return d.dispatched.Load(), d.sent.Load(), d.failed.Load(), d.suppressed.Load(), d.ledgerFails.Load()
}
