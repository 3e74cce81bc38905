// Package gateway talks to the hosted payment provider. The rest of the
// system only sees the Gateway interface; the provider client lives behind
// it so checkout and reconciliation stay provider-agnostic.
package gateway

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InitializeParams carries everything the provider needs to open a hosted
// payment page for one order.
type InitializeParams struct {
	OrderID     uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	Description string

	BuyerName  string
	BuyerEmail string
	BuyerPhone string

	// CallbackURL is where the provider sends the buyer after payment.
	CallbackURL string

	// StoreAccountID routes the charge to the seller's connected account.
	StoreAccountID string
}

// Redirect is the provider's answer to Initialize: where to send the buyer
// and the opaque reference to verify the attempt with later.
type Redirect struct {
	URL       string
	Reference string
}

// Verification reports what the provider knows about a payment attempt.
// Exactly one of Confirmed or Pending is meaningful: Confirmed means money
// moved, Pending means the attempt is still open. Neither set means the
// attempt failed or expired.
type Verification struct {
	Confirmed bool
	Pending   bool
	RawStatus string
}

type Gateway interface {
	Initialize(ctx context.Context, params InitializeParams) (*Redirect, error)
	Verify(ctx context.Context, reference string) (*Verification, error)
}
