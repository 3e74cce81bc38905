package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/sokoniapp/sokoni/internal/observability"
)

var decimalHundred = decimal.NewFromInt(100)

const defaultCallTimeout = 10 * time.Second

// StripeGateway implements Gateway on Stripe checkout sessions. The session
// URL is the redirect target and the session ID is the verification
// reference. Every provider call is bounded by callTimeout.
type StripeGateway struct {
	client      *stripe.Client
	callTimeout time.Duration
}

func NewStripeGateway(secretKey string, callTimeout time.Duration) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("secret key is required")
	}
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}

	backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		HTTPClient: observability.NewHTTPClient(0),
	})
	client := stripe.NewClient(secretKey, stripe.WithBackends(backends))

	return &StripeGateway{client: client, callTimeout: callTimeout}, nil
}

func (g *StripeGateway) Initialize(ctx context.Context, params InitializeParams) (*Redirect, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if !params.Amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive")
	}
	if params.CallbackURL == "" {
		return nil, fmt.Errorf("callback URL is required")
	}

	description := params.Description
	if description == "" {
		description = fmt.Sprintf("Order %s", params.OrderID)
	}

	sessionParams := &stripe.CheckoutSessionCreateParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(params.CallbackURL + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(params.CallbackURL + "?session_id={CHECKOUT_SESSION_ID}&cancelled=1"),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency: stripe.String(strings.ToLower(params.Currency)),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String(description),
					},
					UnitAmount: stripe.Int64(minorUnits(params)),
				},
				Quantity: stripe.Int64(1),
			},
		},
		CustomerEmail: stripe.String(params.BuyerEmail),
		Metadata: map[string]string{
			"order_id": params.OrderID.String(),
		},
	}

	if params.BuyerEmail == "" {
		sessionParams.CustomerEmail = nil
	}

	// Route the charge to the seller's connected account when one exists.
	if params.StoreAccountID != "" {
		sessionParams.SetStripeAccount(params.StoreAccountID)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	sess, err := g.client.V1CheckoutSessions.Create(callCtx, sessionParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &Redirect{URL: sess.URL, Reference: sess.ID}, nil
}

func (g *StripeGateway) Verify(ctx context.Context, reference string) (*Verification, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if reference == "" {
		return nil, fmt.Errorf("reference is required")
	}

	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	sess, err := g.client.V1CheckoutSessions.Retrieve(callCtx, reference, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkout session: %w", err)
	}

	verification := &Verification{RawStatus: string(sess.PaymentStatus)}
	switch sess.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		verification.Confirmed = true
	case stripe.CheckoutSessionPaymentStatusUnpaid:
		// The session may still be open; treat as pending until it expires.
		verification.Pending = sess.Status == stripe.CheckoutSessionStatusOpen
	}
	return verification, nil
}

// minorUnits converts a decimal amount to the provider's integer minor
// units. KES and most supported currencies use two decimal places.
func minorUnits(params InitializeParams) int64 {
	return params.Amount.Mul(decimalHundred).IntPart()
}
