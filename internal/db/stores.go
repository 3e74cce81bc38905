package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sokoniapp/sokoni/internal/crypto"
	"github.com/sokoniapp/sokoni/internal/models"
)

var ErrStoreNotFound = errors.New("store not found")

// StoreStore persists sellers' stores, their catalog entries and their
// configured payment method options. Gateway secrets are encrypted at rest.
type StoreStore struct {
	pool      *pgxpool.Pool
	encryptor crypto.Encryptor
}

func NewStoreStore(pool *pgxpool.Pool, encryptor crypto.Encryptor) (*StoreStore, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	return &StoreStore{pool: pool, encryptor: encryptor}, nil
}

func (s *StoreStore) GetByID(ctx context.Context, storeID uuid.UUID) (*models.Store, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, slug, owner_email, currency, gateway_account_id,
		       gateway_secret, created_at, updated_at
		FROM stores WHERE id = $1
	`, storeID)
	return s.scanStore(row)
}

// UpdateGatewayCredentials rotates a store's gateway account and secret.
// The secret is encrypted before it touches the database.
func (s *StoreStore) UpdateGatewayCredentials(ctx context.Context, storeID uuid.UUID, accountID, secret string) error {
	encryptedSecret := ""
	if secret != "" {
		var err error
		encryptedSecret, err = s.encryptor.Encrypt(secret)
		if err != nil {
			return fmt.Errorf("failed to encrypt gateway secret: %w", err)
		}
	}

	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE stores
		SET gateway_account_id = $1, gateway_secret = $2, updated_at = NOW()
		WHERE id = $3
	`, accountID, encryptedSecret, storeID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrStoreNotFound
	}
	return nil
}

func (s *StoreStore) scanStore(row pgx.Row) (*models.Store, error) {
	var store models.Store
	var gatewayAccountID, gatewaySecret pgtype.Text
	var createdAt, updatedAt pgtype.Timestamptz

	err := row.Scan(&store.ID, &store.Name, &store.Slug, &store.OwnerEmail,
		&store.Currency, &gatewayAccountID, &gatewaySecret, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStoreNotFound
	}
	if err != nil {
		return nil, err
	}

	store.GatewayAccountID = gatewayAccountID.String
	if gatewaySecret.Valid && gatewaySecret.String != "" {
		decrypted, decErr := s.encryptor.Decrypt(gatewaySecret.String)
		if decErr != nil {
			return nil, fmt.Errorf("failed to decrypt gateway secret: %w", decErr)
		}
		store.GatewaySecret = decrypted
	}
	store.CreatedAt = createdAt.Time
	store.UpdatedAt = updatedAt.Time
	return &store, nil
}

// ListPaymentMethods returns the seller-configured payment destinations for a
// store. Read-only to the checkout flow.
func (s *StoreStore) ListPaymentMethods(ctx context.Context, storeID uuid.UUID) ([]*models.PaymentMethod, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, store_id, kind, provider, wallet_family, destination, account_label
		FROM payment_methods
		WHERE store_id = $1
		ORDER BY provider
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var methods []*models.PaymentMethod
	for rows.Next() {
		method, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, err
		}
		methods = append(methods, method)
	}
	return methods, rows.Err()
}

func (s *StoreStore) GetPaymentMethod(ctx context.Context, methodID uuid.UUID) (*models.PaymentMethod, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, store_id, kind, provider, wallet_family, destination, account_label
		FROM payment_methods
		WHERE id = $1
	`, methodID)
	return scanPaymentMethod(row)
}

func scanPaymentMethod(row pgx.Row) (*models.PaymentMethod, error) {
	var method models.PaymentMethod
	var kind string
	var walletFamily, destination, accountLabel pgtype.Text

	err := row.Scan(&method.ID, &method.StoreID, &kind, &method.Provider,
		&walletFamily, &destination, &accountLabel)
	if err != nil {
		return nil, err
	}

	method.Kind = models.MethodKind(kind)
	method.WalletFamily = walletFamily.String
	method.Destination = destination.String
	method.AccountLabel = accountLabel.String
	return &method, nil
}

// GetProduct reads a catalog product without touching stock.
func (s *StoreStore) GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, store_id, name, price::text, currency, published, stock, created_at
		FROM products WHERE id = $1
	`, productID)

	var product models.Product
	var priceText string
	var stock pgtype.Int4
	var createdAt pgtype.Timestamptz

	err := row.Scan(&product.ID, &product.StoreID, &product.Name, &priceText,
		&product.Currency, &product.Published, &stock, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pgx.ErrNoRows
	}
	if err != nil {
		return nil, err
	}

	product.Price, err = decimal.NewFromString(priceText)
	if err != nil {
		return nil, fmt.Errorf("invalid stored price %q: %w", priceText, err)
	}
	if stock.Valid {
		value := int(stock.Int32)
		product.Stock = &value
	}
	product.CreatedAt = createdAt.Time
	return &product, nil
}

// GetPaymentLink reads a payment link.
func (s *StoreStore) GetPaymentLink(ctx context.Context, linkID uuid.UUID) (*models.PaymentLink, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, store_id, title, amount::text, currency, active, expires_at, created_at
		FROM payment_links WHERE id = $1
	`, linkID)

	var link models.PaymentLink
	var amountText string
	var expiresAt, createdAt pgtype.Timestamptz

	err := row.Scan(&link.ID, &link.StoreID, &link.Title, &amountText,
		&link.Currency, &link.Active, &expiresAt, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pgx.ErrNoRows
	}
	if err != nil {
		return nil, err
	}

	link.Amount, err = decimal.NewFromString(amountText)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amountText, err)
	}
	if expiresAt.Valid {
		link.ExpiresAt = expiresAt.Time
	}
	link.CreatedAt = createdAt.Time
	return &link, nil
}
