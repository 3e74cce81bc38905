package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/sokoniapp/sokoni/internal/cache"
	"github.com/sokoniapp/sokoni/internal/checkout"
	"github.com/sokoniapp/sokoni/internal/gateway"
)

// webhookIdempotencyTTL is how long webhook event IDs are kept for
// deduplication.
const webhookIdempotencyTTL = 24 * time.Hour

// GatewayWebhook receives provider notifications about checkout sessions.
// The webhook is a push-path optimization: the same settlement runs through
// the callback and the reconciler, so a missed webhook is never fatal.
func (h *Handlers) GatewayWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)

	event, err := gateway.ReadWebhookEvent(r, h.config.GatewayWebhookSecret)
	if err != nil {
		logger.Error("failed to read gateway webhook payload", "error", err)
		http.Error(w, "Invalid webhook", http.StatusBadRequest)
		return
	}

	if event == nil || event.ID == "" {
		logger.Error("missing gateway event ID")
		http.Error(w, "Missing event ID", http.StatusBadRequest)
		return
	}

	cacheKey := cache.WebhookKey("gateway", event.ID)
	if _, err := h.cacheProvider.Get(ctx, cacheKey); err == nil {
		logger.Info("webhook already processed", "event_id", event.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	processErr := h.processGatewayEvent(r, event)
	if processErr == nil {
		if err := h.cacheProvider.Set(ctx, cacheKey, "processed", webhookIdempotencyTTL); err != nil {
			logger.Error("failed to mark webhook as processed in cache", "error", err)
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	logger.Error("failed to process gateway webhook", "error", processErr, "type", event.Type)
	http.Error(w, "Processing failed", http.StatusInternalServerError)
}

func (h *Handlers) processGatewayEvent(r *http.Request, event *stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed",
		"checkout.session.expired",
		"checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed":
	default:
		// Unsubscribed event types are acknowledged and dropped.
		return nil
	}

	var session struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("failed to decode event object: %w", err)
	}
	if session.ID == "" {
		return fmt.Errorf("event %s carries no session ID", event.ID)
	}

	_, err := h.orchestrator.CompleteRedirect(r.Context(), session.ID)
	var flowErr *checkout.Error
	if errors.As(err, &flowErr) && flowErr.Kind == checkout.KindNotFound {
		// References we have no order for (another environment, manual test
		// events) are acknowledged so the provider stops retrying.
		h.loggerFromContext(r.Context()).Warn("webhook for unknown reference",
			"event_id", event.ID, "reference", session.ID)
		return nil
	}
	return err
}
