package gateway

import (
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

// ReadWebhookEvent validates the provider signature on an incoming webhook
// request and returns the decoded event. Unsigned or tampered payloads are
// rejected before any body parsing happens downstream.
func ReadWebhookEvent(r *http.Request, secret string) (*stripe.Event, error) {
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		return nil, fmt.Errorf("missing stripe signature header")
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	event, err := webhook.ConstructEvent(payload, signature, secret)
	if err != nil {
		return nil, fmt.Errorf("webhook signature validation failed: %w", err)
	}

	return &event, nil
}
