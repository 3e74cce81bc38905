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

	"github.com/sokoniapp/sokoni/internal/models"
)

// OrderStore is the canonical ledger for orders. Status transitions are
// guarded UPDATEs over a forward-only lattice; writes that would move an
// order backward affect zero rows and surface ErrInvalidStatusTransition.
type OrderStore struct {
	pool *pgxpool.Pool
}

var (
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrNotPurchasable          = errors.New("referenced item is not purchasable")
	ErrOrderNotFound           = errors.New("order not found")
)

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderColumns = `
	id, store_id, order_number, buyer_name, buyer_phone, buyer_email,
	delivery_address, amount::text, currency, ref_kind, ref_id,
	payment_method, status, idempotency_key, gateway_reference,
	proof_code, payer_phone, payer_name, declared_amount::text,
	rejection_reason, tracking_number, carrier,
	created_at, paid_at, shipped_at, rejected_at, delivered_at`

// Create persists a new order for the given checkout attempt. The price and
// currency are snapshotted from the referenced product or payment link inside
// the same transaction; for stock-tracked products the availability check and
// decrement are one conditional UPDATE. A repeated idempotency key returns
// the order created by the first attempt and reports created=false.
func (s *OrderStore) Create(ctx context.Context, order *models.Order) (bool, error) {
	if order.IdempotencyKey == "" {
		return false, fmt.Errorf("idempotency key is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	amount, currency, storeID, err := snapshotReference(ctx, tx, order.Reference)
	if err != nil {
		return false, err
	}
	order.Amount = amount
	order.Currency = currency
	order.StoreID = storeID

	row := tx.QueryRow(ctx, `
		INSERT INTO orders (
			store_id, buyer_name, buyer_phone, buyer_email, delivery_address,
			amount, currency, ref_kind, ref_id, payment_method, status,
			idempotency_key
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id, order_number, created_at
	`,
		order.StoreID, order.BuyerName, order.BuyerPhone, order.BuyerEmail,
		order.DeliveryAddress, order.Amount.String(), order.Currency,
		string(order.Reference.Kind), order.Reference.ID, order.PaymentMethod,
		string(models.StatusPending), order.IdempotencyKey,
	)

	var orderNumber int32
	var createdAt pgtype.Timestamptz
	err = row.Scan(&order.ID, &orderNumber, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Duplicate attempt: undo the snapshot (and any stock decrement) and
		// hand back the order the first attempt created.
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return false, fmt.Errorf("failed to roll back duplicate create: %w", rbErr)
		}
		existing, getErr := s.GetByIdempotencyKey(ctx, order.IdempotencyKey)
		if getErr != nil {
			return false, fmt.Errorf("failed to load deduplicated order: %w", getErr)
		}
		*order = *existing
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit order: %w", err)
	}

	order.OrderNumber = int(orderNumber)
	order.Status = models.StatusPending
	order.CreatedAt = createdAt.Time
	return true, nil
}

func snapshotReference(ctx context.Context, tx pgx.Tx, ref models.Reference) (decimal.Decimal, string, uuid.UUID, error) {
	var amountText, currency string
	var storeID uuid.UUID

	switch ref.Kind {
	case models.RefProduct:
		// Availability check and decrement are a single conditional update so
		// concurrent buyers cannot both pass a read-then-write check.
		err := tx.QueryRow(ctx, `
			UPDATE products
			SET stock = CASE WHEN stock IS NULL THEN NULL ELSE stock - 1 END
			WHERE id = $1 AND published AND (stock IS NULL OR stock > 0)
			RETURNING price::text, currency, store_id
		`, ref.ID).Scan(&amountText, &currency, &storeID)
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, "", uuid.Nil, ErrNotPurchasable
		}
		if err != nil {
			return decimal.Zero, "", uuid.Nil, fmt.Errorf("failed to snapshot product: %w", err)
		}
	case models.RefPaymentLink:
		err := tx.QueryRow(ctx, `
			SELECT amount::text, currency, store_id
			FROM payment_links
			WHERE id = $1 AND active AND (expires_at IS NULL OR expires_at > NOW())
		`, ref.ID).Scan(&amountText, &currency, &storeID)
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, "", uuid.Nil, ErrNotPurchasable
		}
		if err != nil {
			return decimal.Zero, "", uuid.Nil, fmt.Errorf("failed to snapshot payment link: %w", err)
		}
	default:
		return decimal.Zero, "", uuid.Nil, fmt.Errorf("unknown reference kind: %s", ref.Kind)
	}

	amount, err := decimal.NewFromString(amountText)
	if err != nil {
		return decimal.Zero, "", uuid.Nil, fmt.Errorf("invalid amount %q: %w", amountText, err)
	}
	return amount, currency, storeID, nil
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	return scanOrder(row)
}

func (s *OrderStore) GetByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE idempotency_key = $1`, key)
	return scanOrder(row)
}

// GetByGatewayReference resolves an order from the reference string the
// gateway echoes back in redirect callbacks and webhooks.
func (s *OrderStore) GetByGatewayReference(ctx context.Context, reference string) (*models.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE gateway_reference = $1`, reference)
	return scanOrder(row)
}

// AttachProof records the buyer's proof-of-payment and moves the order to
// under_review. The proof is immutable afterwards: a second attach affects
// zero rows.
func (s *OrderStore) AttachProof(ctx context.Context, orderID uuid.UUID, proof models.ProofSubmission) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $1, proof_code = $2, payer_phone = $3, payer_name = $4,
		    declared_amount = $5
		WHERE id = $6 AND status = 'pending'
	`, StatusUnderReview, proof.Code, proof.PayerPhone, proof.PayerName,
		proof.DeclaredAmount.String(), orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected pending", ErrInvalidStatusTransition)
	}
	return nil
}

// MarkPendingVerification records the gateway reference for a hosted-redirect
// attempt. Re-initializing after a failure replaces the reference.
func (s *OrderStore) MarkPendingVerification(ctx context.Context, orderID uuid.UUID, reference string) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $1, gateway_reference = $2, rejection_reason = NULL
		WHERE id = $3 AND status IN ('pending', 'failed', 'pending_verification')
	`, StatusPendingVerification, reference, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected pending/failed/pending_verification", ErrInvalidStatusTransition)
	}
	return nil
}

// MarkCompleted settles the order. Completing an already-completed order is a
// no-op success so gateway verification stays idempotent.
func (s *OrderStore) MarkCompleted(ctx context.Context, orderID uuid.UUID) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $1, paid_at = COALESCE(paid_at, NOW()), rejection_reason = NULL
		WHERE id = $2 AND status IN ('pending', 'pending_verification', 'under_review', 'completed')
	`, StatusCompleted, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected pending/pending_verification/under_review/completed", ErrInvalidStatusTransition)
	}
	return nil
}

func (s *OrderStore) MarkFailed(ctx context.Context, orderID uuid.UUID, reason string) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $1, rejection_reason = $3
		WHERE id = $2 AND status IN ('pending', 'pending_verification', 'failed')
	`, StatusFailed, orderID, reason)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected pending/pending_verification/failed", ErrInvalidStatusTransition)
	}
	return nil
}

// MarkRejected is the reviewer's terminal verdict on a manual submission.
func (s *OrderStore) MarkRejected(ctx context.Context, orderID uuid.UUID, reason string) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $1, rejection_reason = $3, rejected_at = NOW()
		WHERE id = $2 AND status = 'under_review'
	`, StatusRejected, orderID, reason)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected under_review", ErrInvalidStatusTransition)
	}
	return nil
}

// Reopen is the explicit admin override moving an order back from
// under_review to pending. The attached proof is kept for audit.
func (s *OrderStore) Reopen(ctx context.Context, orderID uuid.UUID) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $1
		WHERE id = $2 AND status = 'under_review'
	`, StatusPending, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected under_review", ErrInvalidStatusTransition)
	}
	return nil
}

func (s *OrderStore) MarkShipped(ctx context.Context, orderID uuid.UUID, trackingNumber, carrier string) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $1, tracking_number = $2, carrier = $3, shipped_at = NOW()
		WHERE id = $4 AND status = 'completed'
	`, StatusShipped, trackingNumber, carrier, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected completed", ErrInvalidStatusTransition)
	}
	return nil
}

func (s *OrderStore) MarkDelivered(ctx context.Context, orderID uuid.UUID) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $1, delivered_at = NOW()
		WHERE id = $2 AND status = 'shipped'
	`, StatusDelivered, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected shipped", ErrInvalidStatusTransition)
	}
	return nil
}

// ListAwaitingVerification returns hosted-rail orders still parked on gateway
// confirmation, oldest first, for the reconciliation poller.
func (s *OrderStore) ListAwaitingVerification(ctx context.Context, limit int) ([]*models.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = 'pending_verification' AND gateway_reference <> ''
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var order models.Order
	var orderNumber int32
	var buyerEmail, deliveryAddress, refKind, gatewayReference pgtype.Text
	var proofCode, payerPhone, payerName, declaredAmount pgtype.Text
	var rejectionReason, trackingNumber, carrier pgtype.Text
	var amountText, status string
	var createdAt, paidAt, shippedAt, rejectedAt, deliveredAt pgtype.Timestamptz

	err := row.Scan(
		&order.ID, &order.StoreID, &orderNumber, &order.BuyerName,
		&order.BuyerPhone, &buyerEmail, &deliveryAddress, &amountText,
		&order.Currency, &refKind, &order.Reference.ID, &order.PaymentMethod,
		&status, &order.IdempotencyKey, &gatewayReference, &proofCode,
		&payerPhone, &payerName, &declaredAmount, &rejectionReason,
		&trackingNumber, &carrier, &createdAt, &paidAt, &shippedAt,
		&rejectedAt, &deliveredAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	order.OrderNumber = int(orderNumber)
	order.Status = models.OrderStatus(status)
	order.Reference.Kind = models.ReferenceKind(refKind.String)

	order.Amount, err = decimal.NewFromString(amountText)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amountText, err)
	}
	if declaredAmount.Valid && declaredAmount.String != "" {
		order.DeclaredAmount, err = decimal.NewFromString(declaredAmount.String)
		if err != nil {
			return nil, fmt.Errorf("invalid stored declared amount %q: %w", declaredAmount.String, err)
		}
	}

	order.BuyerEmail = buyerEmail.String
	order.DeliveryAddress = deliveryAddress.String
	order.GatewayReference = gatewayReference.String
	order.ProofCode = proofCode.String
	order.PayerPhone = payerPhone.String
	order.PayerName = payerName.String
	order.RejectionReason = rejectionReason.String
	order.TrackingNumber = trackingNumber.String
	order.Carrier = carrier.String

	order.CreatedAt = createdAt.Time
	if paidAt.Valid {
		order.PaidAt = paidAt.Time
	}
	if shippedAt.Valid {
		order.ShippedAt = shippedAt.Time
	}
	if rejectedAt.Valid {
		order.RejectedAt = rejectedAt.Time
	}
	if deliveredAt.Valid {
		order.DeliveredAt = deliveredAt.Time
	}

	return &order, nil
}
