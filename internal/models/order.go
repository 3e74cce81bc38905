package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending             OrderStatus = "pending"
	StatusUnderReview         OrderStatus = "under_review"
	StatusPendingVerification OrderStatus = "pending_verification"
	StatusCompleted           OrderStatus = "completed"
	StatusRejected            OrderStatus = "rejected"
	StatusFailed              OrderStatus = "failed"
	StatusShipped             OrderStatus = "shipped"
	StatusDelivered           OrderStatus = "delivered"
)

// IsTerminal reports whether no further payment activity is expected for the
// order. A failed order is not terminal: the buyer may retry the same rail or
// switch rails while the order stays recoverable.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusShipped, StatusDelivered:
		return true
	default:
		return false
	}
}

// AwaitingExternalConfirmation reports whether the order is parked on a
// collaborator decision (reviewer verdict or gateway verification).
func (s OrderStatus) AwaitingExternalConfirmation() bool {
	return s == StatusUnderReview || s == StatusPendingVerification
}

type ReferenceKind string

const (
	RefProduct     ReferenceKind = "product"
	RefPaymentLink ReferenceKind = "payment_link"
)

// Reference points at the purchasable thing a checkout is for.
type Reference struct {
	Kind ReferenceKind `json:"kind"`
	ID   uuid.UUID     `json:"id"`
}

type Order struct {
	ID              uuid.UUID       `json:"id"`
	StoreID         uuid.UUID       `json:"store_id"`
	OrderNumber     int             `json:"order_number"`
	BuyerName       string          `json:"buyer_name"`
	BuyerPhone      string          `json:"buyer_phone"`
	BuyerEmail      string          `json:"buyer_email"`
	DeliveryAddress string          `json:"delivery_address"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Reference       Reference       `json:"reference"`
	PaymentMethod   string          `json:"payment_method"`
	Status          OrderStatus     `json:"status"`
	IdempotencyKey  string          `json:"idempotency_key"`

	// Hosted rail: the gateway's reference for the checkout attempt.
	GatewayReference string `json:"gateway_reference"`

	// Manual rail: immutable once attached.
	ProofCode      string          `json:"proof_code"`
	PayerPhone     string          `json:"payer_phone"`
	PayerName      string          `json:"payer_name"`
	DeclaredAmount decimal.Decimal `json:"declared_amount"`

	RejectionReason string `json:"rejection_reason"`

	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`

	CreatedAt   time.Time `json:"created_at"`
	PaidAt      time.Time `json:"paid_at"`
	ShippedAt   time.Time `json:"shipped_at"`
	RejectedAt  time.Time `json:"rejected_at"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// ProofSubmission is the buyer-entered evidence for a manual payment. The
// code is normalized (trimmed, upper-cased) before storage and comparison.
type ProofSubmission struct {
	Code           string          `json:"code"`
	PayerPhone     string          `json:"payer_phone"`
	PayerName      string          `json:"payer_name"`
	DeclaredAmount decimal.Decimal `json:"declared_amount"`
	MethodTag      string          `json:"method_tag"`
}
