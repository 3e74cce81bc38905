package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokoniapp/sokoni/internal/cache"
	"github.com/sokoniapp/sokoni/internal/db"
	"github.com/sokoniapp/sokoni/internal/gateway"
	"github.com/sokoniapp/sokoni/internal/models"
)

// fakeLedger mirrors the order store's transition guards in memory.
type fakeLedger struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*models.Order
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{orders: make(map[uuid.UUID]*models.Order)}
}

func (l *fakeLedger) add(order *models.Order) *models.Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.Status == "" {
		order.Status = models.StatusPending
	}
	l.orders[order.ID] = order
	return order
}

func (l *fakeLedger) GetByID(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	order, ok := l.orders[orderID]
	if !ok {
		return nil, db.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (l *fakeLedger) GetByGatewayReference(_ context.Context, reference string) (*models.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, order := range l.orders {
		if order.GatewayReference == reference && reference != "" {
			copied := *order
			return &copied, nil
		}
	}
	return nil, db.ErrOrderNotFound
}

func (l *fakeLedger) AttachProof(_ context.Context, orderID uuid.UUID, proof models.ProofSubmission) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	order, ok := l.orders[orderID]
	if !ok {
		return db.ErrOrderNotFound
	}
	if order.Status != models.StatusPending {
		return db.ErrInvalidStatusTransition
	}
	order.Status = models.StatusUnderReview
	order.ProofCode = proof.Code
	order.PayerPhone = proof.PayerPhone
	order.PayerName = proof.PayerName
	order.DeclaredAmount = proof.DeclaredAmount
	return nil
}

func (l *fakeLedger) MarkPendingVerification(_ context.Context, orderID uuid.UUID, reference string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	order, ok := l.orders[orderID]
	if !ok {
		return db.ErrOrderNotFound
	}
	switch order.Status {
	case models.StatusPending, models.StatusFailed, models.StatusPendingVerification:
	default:
		return db.ErrInvalidStatusTransition
	}
	order.Status = models.StatusPendingVerification
	order.GatewayReference = reference
	return nil
}

func (l *fakeLedger) MarkCompleted(_ context.Context, orderID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	order, ok := l.orders[orderID]
	if !ok {
		return db.ErrOrderNotFound
	}
	switch order.Status {
	case models.StatusPending, models.StatusPendingVerification, models.StatusUnderReview, models.StatusCompleted:
	default:
		return db.ErrInvalidStatusTransition
	}
	if order.PaidAt.IsZero() {
		order.PaidAt = time.Now()
	}
	order.Status = models.StatusCompleted
	return nil
}

func (l *fakeLedger) MarkFailed(_ context.Context, orderID uuid.UUID, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	order, ok := l.orders[orderID]
	if !ok {
		return db.ErrOrderNotFound
	}
	switch order.Status {
	case models.StatusPending, models.StatusPendingVerification, models.StatusFailed:
	default:
		return db.ErrInvalidStatusTransition
	}
	order.Status = models.StatusFailed
	order.RejectionReason = reason
	return nil
}

func (l *fakeLedger) status(orderID uuid.UUID) models.OrderStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.orders[orderID].Status
}

// fakeGateway scripts Initialize and Verify responses per reference.
type fakeGateway struct {
	mu          sync.Mutex
	nextRef     int
	initErr     error
	statuses    map[string]gateway.Verification
	verifyCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{statuses: make(map[string]gateway.Verification)}
}

func (g *fakeGateway) Initialize(_ context.Context, params gateway.InitializeParams) (*gateway.Redirect, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initErr != nil {
		return nil, g.initErr
	}
	g.nextRef++
	ref := fmt.Sprintf("cs_test_%d", g.nextRef)
	g.statuses[ref] = gateway.Verification{Pending: true, RawStatus: "unpaid"}
	return &gateway.Redirect{URL: "https://pay.example.com/" + ref, Reference: ref}, nil
}

func (g *fakeGateway) Verify(_ context.Context, reference string) (*gateway.Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls++
	v, ok := g.statuses[reference]
	if !ok {
		return nil, errors.New("unknown session")
	}
	return &v, nil
}

func (g *fakeGateway) settle(reference string, v gateway.Verification) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[reference] = v
}

func newTestRefStore(t interface{ Fatalf(string, ...any) }) *ReferenceStore {
	provider, err := cache.NewMemoryProvider()
	if err != nil {
		t.Fatalf("cache.NewMemoryProvider() error = %v", err)
	}
	return NewReferenceStore(provider, time.Hour)
}

func pendingOrder(amount string) *models.Order {
	return &models.Order{
		StoreID:  uuid.New(),
		Amount:   decimal.RequireFromString(amount),
		Currency: "KES",
		Status:   models.StatusPending,
	}
}
