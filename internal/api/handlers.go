package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campuslink/notifier/internal/dispatch"
	"github.com/campuslink/notifier/internal/domain"
	"github.com/campuslink/notifier/internal/events"
	"github.com/campuslink/notifier/internal/pkg/logger"
	"github.com/campuslink/notifier/internal/storage"
	"github.com/campuslink/notifier/internal/suppression"
	"github.com/campuslink/notifier/internal/template"
)

var log = logger.New("api")

// Handlers carries the pipeline components the HTTP surface exposes.
type Handlers struct {
	dispatcher   *dispatch.Dispatcher
	suppressions *suppression.Service
	renderer     *template.Renderer
	store        storage.Store
	startedAt    time.Time
}

func NewHandlers(dispatcher *dispatch.Dispatcher, suppressions *suppression.Service, renderer *template.Renderer, store storage.Store) *Handlers {
	return &Handlers{
		dispatcher:   dispatcher,
		suppressions: suppressions,
		renderer:     renderer,
		store:        store,
		startedAt:    time.Now(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encoding failed", "error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HealthCheck reports liveness plus pipeline counters.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	dispatched, sent, failed, suppressed, ledgerFailures := h.dispatcher.Counters()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
		"templates": h.renderer.Names(),
		"counters": map[string]uint64{
			"dispatched":      dispatched,
			"sent":            sent,
			"failed":          failed,
			"suppressed":      suppressed,
			"ledger_failures": ledgerFailures,
		},
	})
}

// SendNotification dispatches a single request and returns its outcome.
func (h *Handlers) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req domain.NotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Recipient() == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	req.Priority = domain.NormalizePriority(string(req.Priority))

	result, err := h.dispatcher.Dispatch(r.Context(), "", []domain.NotificationRequest{req})
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Results[0])
}

// batchRequest is the direct batch invocation payload.
type batchRequest struct {
	BatchID  string                       `json:"batchId"`
	Requests []domain.NotificationRequest `json:"requests"`
}

// SendBatch dispatches a batch and returns the full per-item detail.
func (h *Handlers) SendBatch(w http.ResponseWriter, r *http.Request) {
	var batch batchRequest
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	for i := range batch.Requests {
		batch.Requests[i].Priority = domain.NormalizePriority(string(batch.Requests[i].Priority))
	}

	result, err := h.dispatcher.Dispatch(r.Context(), batch.BatchID, batch.Requests)
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// IngestEvents accepts one event or an array of events from the upstream
// bus, routes them to requests, and dispatches.
func (h *Handlers) IngestEvents(w http.ResponseWriter, r *http.Request) {
	body := json.NewDecoder(r.Body)

	var evs []events.Event
	var raw json.RawMessage
	if err := body.Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(raw, &evs); err != nil {
			writeError(w, http.StatusBadRequest, "invalid event array")
			return
		}
	} else {
		var ev events.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			writeError(w, http.StatusBadRequest, "invalid event")
			return
		}
		evs = []events.Event{ev}
	}

	requests := events.RouteBatch(evs)
	if len(requests) == 0 {
		writeError(w, http.StatusBadRequest, "no routable events (missing email addresses)")
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), "", requests)
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) writeDispatchError(w http.ResponseWriter, err error) {
	var verr *dispatch.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Error())
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusRequestTimeout, "batch cancelled")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// ListSuppressions returns every current suppression record.
func (h *Handlers) ListSuppressions(w http.ResponseWriter, r *http.Request) {
	recs, err := h.suppressions.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []domain.SuppressionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"suppressions": recs, "count": len(recs)})
}

// suppressRequest is the operator suppression payload.
type suppressRequest struct {
	Email   string `json:"email"`
	Reason  string `json:"reason"`
	Subtype string `json:"subtype"`
	Note    string `json:"note"`
}

// AddSuppression lets an operator suppress an address directly.
func (h *Handlers) AddSuppression(w http.ResponseWriter, r *http.Request) {
	var req suppressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	reason := domain.SuppressionReason(strings.ToLower(req.Reason))
	if reason != domain.ReasonBounce && reason != domain.ReasonComplaint {
		writeError(w, http.StatusBadRequest, "reason must be bounce or complaint")
		return
	}

	err := h.suppressions.Suppress(r.Context(), req.Email, reason, domain.BounceSubtype(req.Subtype), req.Note, "operator")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSuppression returns one record, 404 when the address is clear.
func (h *Handlers) GetSuppression(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	rec, err := h.suppressions.Get(r.Context(), address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "address not suppressed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// RemoveSuppression is the explicit operator override.
func (h *Handlers) RemoveSuppression(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	err := h.suppressions.Unsuppress(r.Context(), address)
	if errors.Is(err, suppression.ErrNotFound) {
		writeError(w, http.StatusNotFound, "address not suppressed")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDeliveries exposes a recipient's recent ledger entries.
func (h *Handlers) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	recipient := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("recipient")))
	if recipient == "" {
		writeError(w, http.StatusBadRequest, "recipient query parameter is required")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	recs, err := h.store.ListDeliveries(r.Context(), recipient, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []domain.DeliveryRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deliveries": recs, "count": len(recs)})
}
