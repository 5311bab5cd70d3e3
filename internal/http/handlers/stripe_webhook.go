package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jmylchreest/herbscan-api/internal/metrics"
	"github.com/jmylchreest/herbscan-api/internal/service"
)

// maxWebhookBodySize bounds webhook payloads read into memory.
const maxWebhookBodySize = 256 * 1024

// EventReconciler applies a signed Stripe event.
type EventReconciler interface {
	Reconcile(ctx context.Context, payload []byte, sigHeader string) (*service.Outcome, error)
}

// StripeWebhookHandler handles Stripe webhook events.
type StripeWebhookHandler struct {
	reconciler EventReconciler
	logger     *slog.Logger
}

// NewStripeWebhookHandler creates a new Stripe webhook handler.
func NewStripeWebhookHandler(reconciler EventReconciler, logger *slog.Logger) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		reconciler: reconciler,
		logger:     logger.With("component", "stripe_webhook"),
	}
}

// HandleWebhook processes incoming Stripe webhooks. It is a raw HTTP handler because
// signature verification needs the exact request bytes.
//
// 400 tells Stripe the event will never succeed, 500 asks for a retry and 200 is an
// acknowledgement, including for events that were ignored or could not be correlated.
func (h *StripeWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		status = http.StatusBadRequest
		writeError(w, status, "failed to read body")
		return
	}

	out, err := h.reconciler.Reconcile(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if out != nil && out.EventType != "" {
		eventType = out.EventType
	}

	switch {
	case err == nil:
	case errors.Is(err, service.ErrAuthentication):
		h.logger.Warn("rejected webhook", "error", err)
		status = http.StatusBadRequest
		writeError(w, status, "invalid signature")
		return
	case errors.Is(err, service.ErrMalformedPayload):
		h.logger.Warn("rejected webhook", "type", eventType, "error", err)
		status = http.StatusBadRequest
		writeError(w, status, "invalid payload")
		return
	default:
		h.logger.Error("failed to reconcile webhook", "type", eventType, "error", err)
		status = http.StatusInternalServerError
		writeError(w, status, "internal error")
		return
	}

	writeJSON(w, status, map[string]bool{"received": true})
}
