// Package session stores in-flight checkout sessions server-side. A session
// is the ephemeral state machine record for one buyer's checkout attempt; it
// is evicted by TTL or destroyed when the attempt reaches a terminal state.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Data is the persisted form of a checkout session. The checkout package
// owns the state values; this package only stores and expires them.
type Data struct {
	State string `json:"state"`

	BuyerName       string `json:"buyer_name"`
	BuyerPhone      string `json:"buyer_phone"`
	BuyerEmail      string `json:"buyer_email"`
	DeliveryAddress string `json:"delivery_address"`

	RefKind string    `json:"ref_kind"`
	RefID   uuid.UUID `json:"ref_id"`
	StoreID uuid.UUID `json:"store_id"`

	// Price snapshot taken when the session was opened, for display only.
	// The ledger re-snapshots at order creation.
	Amount   string `json:"amount"`
	Currency string `json:"currency"`

	MethodID uuid.UUID `json:"method_id"`

	// OrderID is recorded once phase one of a two-phase rail has created the
	// order, so retries reuse it instead of creating a second order.
	OrderID uuid.UUID `json:"order_id"`

	// AttemptKey is the client-scoped idempotency key threaded through order
	// creation.
	AttemptKey string `json:"attempt_key"`

	CreatedAt int64 `json:"created_at"`
}

func (d *Data) Clone() *Data {
	if d == nil {
		return nil
	}
	cloned := *d
	return &cloned
}

// Store is the interface over the memory and redis session backends.
type Store interface {
	Get(ctx context.Context, key string) (*Data, bool)
	Set(ctx context.Context, key string, data *Data, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Close() error
}

// NewSessionID generates an opaque checkout session identifier.
func NewSessionID() string {
	return uuid.NewString()
}
