package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/sokoniapp/sokoni/internal/logging"
	"github.com/sokoniapp/sokoni/internal/models"
	"github.com/sokoniapp/sokoni/internal/observability"
	"github.com/sokoniapp/sokoni/internal/paycode"
)

// ProofError is a rejected proof submission. Reason is safe to show the
// buyer.
type ProofError struct {
	Field  string
	Reason string
}

func (e *ProofError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ManualRail accepts out-of-band mobile-money payments: the buyer pays the
// seller's wallet directly and submits the transaction code as proof. The
// order then waits for seller review.
type ManualRail struct {
	ledger Ledger
	logger *slog.Logger
}

func NewManualRail(ledger Ledger, logger *slog.Logger) (*ManualRail, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	return &ManualRail{ledger: ledger, logger: logger}, nil
}

// Submit validates the proof against the wallet family's rules and attaches
// it to the order, moving it to under_review. Validation runs before any
// write: a rejected code leaves the order untouched. The returned warning,
// when set, is advisory only.
func (r *ManualRail) Submit(ctx context.Context, orderID uuid.UUID, proof models.ProofSubmission, family paycode.Family) (string, error) {
	span := sentry.StartSpan(
		ctx,
		"rail.manual.submit",
		sentry.WithOpName("rail.manual"),
		sentry.WithDescription("Submit"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	recordRejection := func(field string) {
		meter.Count("rail.manual.rejected", 1, sentry.WithAttributes(
			attribute.String("field", field),
		))
	}

	codeResult := paycode.ValidateCode(proof.Code, family)
	if !codeResult.Valid {
		recordRejection("code")
		return "", &ProofError{Field: "code", Reason: codeResult.Reason}
	}

	if proof.PayerPhone != "" {
		phoneResult := paycode.ValidatePhone(proof.PayerPhone)
		if !phoneResult.Valid {
			recordRejection("payer_phone")
			return "", &ProofError{Field: "payer_phone", Reason: phoneResult.Reason}
		}
		proof.PayerPhone = phoneResult.Normalized
	}

	proof.Code = codeResult.Code
	if err := r.ledger.AttachProof(ctx, orderID, proof); err != nil {
		return "", err
	}

	meter.Count("rail.manual.accepted", 1, sentry.WithAttributes(
		attribute.String("wallet_family", string(family)),
	))
	logging.FromContext(ctx, r.logger).Info("proof submitted for review",
		"order_id", orderID, "wallet_family", string(family), "warning", codeResult.Warning)
	return codeResult.Warning, nil
}
