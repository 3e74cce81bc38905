package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Store struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	OwnerEmail string    `json:"owner_email"`
	Currency   string    `json:"currency"`

	// Gateway credentials for the hosted rail. The secret is encrypted at
	// rest and only decrypted by the store repository.
	GatewayAccountID string `json:"gateway_account_id"`
	GatewaySecret    string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Store) AcceptsHostedPayments() bool {
	return s != nil && s.GatewayAccountID != ""
}

type Product struct {
	ID        uuid.UUID       `json:"id"`
	StoreID   uuid.UUID       `json:"store_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Published bool            `json:"published"`
	// Stock is nil when the seller does not track inventory.
	Stock     *int      `json:"stock"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *Product) Purchasable() bool {
	if p == nil || !p.Published {
		return false
	}
	return p.Stock == nil || *p.Stock > 0
}

type PaymentLink struct {
	ID        uuid.UUID       `json:"id"`
	StoreID   uuid.UUID       `json:"store_id"`
	Title     string          `json:"title"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Active    bool            `json:"active"`
	ExpiresAt time.Time       `json:"expires_at"`
	CreatedAt time.Time       `json:"created_at"`
}

func (l *PaymentLink) Purchasable(now time.Time) bool {
	if l == nil || !l.Active {
		return false
	}
	return l.ExpiresAt.IsZero() || now.Before(l.ExpiresAt)
}
