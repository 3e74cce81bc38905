// Package payment implements the two settlement rails: hosted redirects
// through the external gateway and manual mobile-money proof submission.
package payment

import (
	"context"

	"github.com/google/uuid"

	"github.com/sokoniapp/sokoni/internal/models"
)

type RailKind string

const (
	RailHosted RailKind = "hosted"
	RailManual RailKind = "manual"
)

// Ledger is the slice of the order store the rails need. Rails never read
// catalog data or create orders; they only move existing orders along the
// status lattice.
type Ledger interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetByGatewayReference(ctx context.Context, reference string) (*models.Order, error)
	AttachProof(ctx context.Context, orderID uuid.UUID, proof models.ProofSubmission) error
	MarkPendingVerification(ctx context.Context, orderID uuid.UUID, reference string) error
	MarkCompleted(ctx context.Context, orderID uuid.UUID) error
	MarkFailed(ctx context.Context, orderID uuid.UUID, reason string) error
}
