// Package catalog resolves checkout references to sellable listings and holds
// the wallet-provider registry used for proof-code validation.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/sokoniapp/sokoni/internal/models"
)

var ErrListingNotFound = errors.New("listing not found")

// Listing is a read-only snapshot of whatever a checkout reference points at.
// Prices here are display values; the ledger re-reads the price inside its
// own transaction when the order row is created.
type Listing struct {
	Reference   models.Reference
	StoreID     uuid.UUID
	Title       string
	Price       decimal.Decimal
	Currency    string
	Purchasable bool
}

// Resolver maps a checkout reference to a listing snapshot.
type Resolver interface {
	Resolve(ctx context.Context, ref models.Reference) (*Listing, error)
}

type listingSource interface {
	GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	GetPaymentLink(ctx context.Context, linkID uuid.UUID) (*models.PaymentLink, error)
}

type dbResolver struct {
	source          listingSource
	defaultCurrency string
	now             func() time.Time
}

// NewResolver builds a database-backed resolver. Listings without an explicit
// currency fall back to defaultCurrency.
func NewResolver(source listingSource, defaultCurrency string) Resolver {
	return &dbResolver{source: source, defaultCurrency: defaultCurrency, now: time.Now}
}

func (r *dbResolver) Resolve(ctx context.Context, ref models.Reference) (*Listing, error) {
	switch ref.Kind {
	case models.RefProduct:
		product, err := r.source.GetProduct(ctx, ref.ID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		if err != nil {
			return nil, err
		}
		return &Listing{
			Reference:   ref,
			StoreID:     product.StoreID,
			Title:       product.Name,
			Price:       product.Price,
			Currency:    r.currency(product.Currency),
			Purchasable: product.Purchasable(),
		}, nil

	case models.RefPaymentLink:
		link, err := r.source.GetPaymentLink(ctx, ref.ID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		if err != nil {
			return nil, err
		}
		return &Listing{
			Reference:   ref,
			StoreID:     link.StoreID,
			Title:       link.Title,
			Price:       link.Amount,
			Currency:    r.currency(link.Currency),
			Purchasable: link.Purchasable(r.now()),
		}, nil

	default:
		return nil, ErrListingNotFound
	}
}

func (r *dbResolver) currency(c string) string {
	if c == "" {
		return r.defaultCurrency
	}
	return c
}
