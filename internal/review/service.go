// Package review implements the seller's side of manual payments: inspecting
// submitted proofs and approving, rejecting or reopening them, plus the
// post-payment fulfilment transitions.
package review

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokoniapp/sokoni/internal/catalog"
	"github.com/sokoniapp/sokoni/internal/email"
	"github.com/sokoniapp/sokoni/internal/logging"
	"github.com/sokoniapp/sokoni/internal/models"
	"github.com/sokoniapp/sokoni/internal/paycode"
)

type ledger interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	MarkCompleted(ctx context.Context, orderID uuid.UUID) error
	MarkRejected(ctx context.Context, orderID uuid.UUID, reason string) error
	Reopen(ctx context.Context, orderID uuid.UUID) error
	MarkShipped(ctx context.Context, orderID uuid.UUID, trackingNumber, carrier string) error
	MarkDelivered(ctx context.Context, orderID uuid.UUID) error
}

type storeSource interface {
	GetByID(ctx context.Context, storeID uuid.UUID) (*models.Store, error)
}

// Service drives review decisions. Decisions write to the ledger first;
// buyer notifications are best-effort and never roll a decision back.
type Service struct {
	orders   ledger
	stores   storeSource
	resolver catalog.Resolver
	email    email.Provider
	logger   *slog.Logger
}

func NewService(orders ledger, stores storeSource, resolver catalog.Resolver, provider email.Provider, logger *slog.Logger) (*Service, error) {
	if orders == nil {
		return nil, fmt.Errorf("order ledger is required")
	}
	if stores == nil {
		return nil, fmt.Errorf("store source is required")
	}
	return &Service{
		orders:   orders,
		stores:   stores,
		resolver: resolver,
		email:    provider,
		logger:   logger,
	}, nil
}

// Inspection is what the reviewer sees: the order plus an advisory signal
// comparing the declared amount against the order total. The signal never
// blocks a decision.
type Inspection struct {
	Order        *models.Order `json:"order"`
	AmountOK     bool          `json:"amount_ok"`
	AmountSignal string        `json:"amount_signal,omitempty"`
}

func (s *Service) Inspect(ctx context.Context, orderID uuid.UUID) (*Inspection, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	inspection := &Inspection{Order: order, AmountOK: true}
	if !order.DeclaredAmount.IsZero() {
		result := paycode.ValidateAmount(order.DeclaredAmount, order.Amount, decimal.Zero)
		inspection.AmountOK = result.Valid
		inspection.AmountSignal = result.Reason
	}
	return inspection, nil
}

// Approve confirms a proof under review and completes the order.
func (s *Service) Approve(ctx context.Context, orderID uuid.UUID) error {
	if err := s.orders.MarkCompleted(ctx, orderID); err != nil {
		return err
	}

	logging.FromContext(ctx, s.logger).Info("proof approved", "order_id", orderID)
	s.notify(ctx, orderID, func(info *email.OrderInfo) error {
		return email.SendPaymentReceipt(ctx, s.email, info)
	})
	return nil
}

// Reject declines a proof under review with a reason the buyer will see.
func (s *Service) Reject(ctx context.Context, orderID uuid.UUID, reason string) error {
	if err := s.orders.MarkRejected(ctx, orderID, reason); err != nil {
		return err
	}

	logging.FromContext(ctx, s.logger).Info("proof rejected", "order_id", orderID, "reason", reason)
	s.notify(ctx, orderID, func(info *email.OrderInfo) error {
		return email.SendPaymentRejected(ctx, s.email, info)
	})
	return nil
}

// Reopen returns an under-review order to pending so the buyer can submit a
// corrected proof. Admin override; the previous proof stays on the order.
func (s *Service) Reopen(ctx context.Context, orderID uuid.UUID) error {
	if err := s.orders.Reopen(ctx, orderID); err != nil {
		return err
	}
	logging.FromContext(ctx, s.logger).Info("order reopened", "order_id", orderID)
	return nil
}

// Ship marks a completed order shipped.
func (s *Service) Ship(ctx context.Context, orderID uuid.UUID, trackingNumber, carrier string) error {
	if err := s.orders.MarkShipped(ctx, orderID, trackingNumber, carrier); err != nil {
		return err
	}

	logging.FromContext(ctx, s.logger).Info("order shipped",
		"order_id", orderID, "tracking_number", trackingNumber)
	s.notify(ctx, orderID, func(info *email.OrderInfo) error {
		return email.SendOrderShipped(ctx, s.email, info)
	})
	return nil
}

// Deliver marks a shipped order delivered.
func (s *Service) Deliver(ctx context.Context, orderID uuid.UUID) error {
	if err := s.orders.MarkDelivered(ctx, orderID); err != nil {
		return err
	}
	logging.FromContext(ctx, s.logger).Info("order delivered", "order_id", orderID)
	return nil
}

func (s *Service) notify(ctx context.Context, orderID uuid.UUID, sendFn func(*email.OrderInfo) error) {
	if s.email == nil {
		return
	}
	logger := logging.FromContext(ctx, s.logger)

	info, err := s.orderInfo(ctx, orderID)
	if err != nil {
		logger.Warn("failed to assemble notification", "order_id", orderID, "error", err)
		return
	}
	if err := sendFn(info); err != nil {
		logger.Warn("failed to send notification", "order_id", orderID, "error", err)
	}
}

func (s *Service) orderInfo(ctx context.Context, orderID uuid.UUID) (*email.OrderInfo, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	store, err := s.stores.GetByID(ctx, order.StoreID)
	if err != nil {
		return nil, err
	}

	title := "your order"
	if s.resolver != nil {
		if listing, resolveErr := s.resolver.Resolve(ctx, order.Reference); resolveErr == nil {
			title = listing.Title
		}
	}

	return &email.OrderInfo{
		OrderNumber:     fmt.Sprintf("#%d", order.OrderNumber),
		BuyerName:       order.BuyerName,
		BuyerEmail:      order.BuyerEmail,
		StoreName:       store.Name,
		Title:           title,
		Total:           order.Amount.StringFixed(2),
		Currency:        order.Currency,
		PaymentMethod:   order.PaymentMethod,
		RejectionReason: order.RejectionReason,
		TrackingNumber:  order.TrackingNumber,
		TrackingCarrier: order.Carrier,
	}, nil
}
