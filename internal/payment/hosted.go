package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/sokoniapp/sokoni/internal/db"
	"github.com/sokoniapp/sokoni/internal/gateway"
	"github.com/sokoniapp/sokoni/internal/logging"
	"github.com/sokoniapp/sokoni/internal/models"
	"github.com/sokoniapp/sokoni/internal/observability"
)

// HostedRail moves an order through the external gateway: initialize a
// redirect, park the order in pending_verification, and settle when the
// gateway confirms or denies the attempt.
type HostedRail struct {
	gateway     gateway.Gateway
	ledger      Ledger
	refs        *ReferenceStore
	callbackURL string
	logger      *slog.Logger
}

func NewHostedRail(gw gateway.Gateway, ledger Ledger, refs *ReferenceStore, callbackURL string, logger *slog.Logger) (*HostedRail, error) {
	if gw == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if refs == nil {
		return nil, fmt.Errorf("reference store is required")
	}
	return &HostedRail{
		gateway:     gw,
		ledger:      ledger,
		refs:        refs,
		callbackURL: callbackURL,
		logger:      logger,
	}, nil
}

// Initiate opens a gateway redirect for the order and parks it in
// pending_verification. If the gateway call fails the order is left in
// pending so the buyer can retry or switch method.
func (r *HostedRail) Initiate(ctx context.Context, order *models.Order, storeAccountID string) (string, error) {
	span := sentry.StartSpan(
		ctx,
		"rail.hosted.initiate",
		sentry.WithOpName("rail.hosted"),
		sentry.WithDescription("Initiate"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)

	redirect, err := r.gateway.Initialize(ctx, gateway.InitializeParams{
		OrderID:        order.ID,
		Amount:         order.Amount,
		Currency:       order.Currency,
		Description:    fmt.Sprintf("Order #%d", order.OrderNumber),
		BuyerName:      order.BuyerName,
		BuyerEmail:     order.BuyerEmail,
		BuyerPhone:     order.BuyerPhone,
		CallbackURL:    r.callbackURL,
		StoreAccountID: storeAccountID,
	})
	if err != nil {
		meter.Count("rail.hosted.initialize.failed", 1)
		return "", fmt.Errorf("failed to initialize gateway payment: %w", err)
	}

	if err := r.refs.Put(ctx, redirect.Reference, order.ID); err != nil {
		logging.FromContext(ctx, r.logger).Warn("failed to cache payment reference",
			"order_id", order.ID, "error", err)
	}

	if err := r.ledger.MarkPendingVerification(ctx, order.ID, redirect.Reference); err != nil {
		return "", fmt.Errorf("failed to park order for verification: %w", err)
	}

	order.Status = models.StatusPendingVerification
	order.GatewayReference = redirect.Reference
	meter.Count("rail.hosted.initialized", 1)
	return redirect.URL, nil
}

// VerifyAndSettle asks the gateway about a reference and settles the order
// accordingly. Safe to call repeatedly for the same reference: a settled
// order short-circuits before the gateway round trip, and the completed
// transition itself is idempotent.
func (r *HostedRail) VerifyAndSettle(ctx context.Context, reference string) (*models.Order, error) {
	span := sentry.StartSpan(
		ctx,
		"rail.hosted.verify_and_settle",
		sentry.WithOpName("rail.hosted"),
		sentry.WithDescription("VerifyAndSettle"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)

	order, err := r.findOrder(ctx, reference)
	if err != nil {
		return nil, err
	}

	if order.Status.IsTerminal() {
		return order, nil
	}

	verification, err := r.gateway.Verify(ctx, reference)
	if err != nil {
		meter.Count("rail.hosted.verify.failed", 1)
		return nil, fmt.Errorf("failed to verify payment: %w", err)
	}

	meter.Count("rail.hosted.verified", 1, sentry.WithAttributes(
		attribute.String("gateway_status", verification.RawStatus),
	))

	logger := logging.FromContext(ctx, r.logger)
	switch {
	case verification.Confirmed:
		if err := r.ledger.MarkCompleted(ctx, order.ID); err != nil {
			return nil, err
		}
		order.Status = models.StatusCompleted
		if err := r.refs.Forget(ctx, reference); err != nil {
			logger.Warn("failed to drop payment reference", "reference", reference, "error", err)
		}
		logger.Info("hosted payment confirmed", "order_id", order.ID, "reference", reference)

	case verification.Pending:
		// The buyer may still complete the redirect. Leave the order
		// parked; the reconciler or a later callback resolves it.

	default:
		err := r.ledger.MarkFailed(ctx, order.ID, fmt.Sprintf("gateway status: %s", verification.RawStatus))
		if err != nil && !errors.Is(err, db.ErrInvalidStatusTransition) {
			return nil, err
		}
		if err == nil {
			order.Status = models.StatusFailed
		}
		if err := r.refs.Forget(ctx, reference); err != nil {
			logger.Warn("failed to drop payment reference", "reference", reference, "error", err)
		}
		logger.Info("hosted payment failed", "order_id", order.ID,
			"reference", reference, "gateway_status", verification.RawStatus)
	}

	return order, nil
}

// findOrder resolves a gateway reference to its order, preferring the ledger
// column and falling back to the cached mapping.
func (r *HostedRail) findOrder(ctx context.Context, reference string) (*models.Order, error) {
	order, err := r.ledger.GetByGatewayReference(ctx, reference)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, db.ErrOrderNotFound) {
		return nil, err
	}

	orderID, lookupErr := r.refs.Lookup(ctx, reference)
	if lookupErr != nil || orderID == uuid.Nil {
		return nil, db.ErrOrderNotFound
	}
	return r.ledger.GetByID(ctx, orderID)
}
