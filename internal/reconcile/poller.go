// Package reconcile closes the loop on hosted payments whose redirect-back
// never arrived: it periodically re-verifies orders parked in
// pending_verification against the gateway.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sokoniapp/sokoni/internal/logging"
	"github.com/sokoniapp/sokoni/internal/models"
)

const defaultBatchSize = 50

type ledger interface {
	ListAwaitingVerification(ctx context.Context, limit int) ([]*models.Order, error)
	MarkFailed(ctx context.Context, orderID uuid.UUID, reason string) error
}

type verifier interface {
	VerifyAndSettle(ctx context.Context, reference string) (*models.Order, error)
}

// Poller re-verifies parked orders on an interval. Each order gets a bounded
// number of attempts; once exhausted it is failed so it does not sit in
// pending_verification forever. The buyer can retry a failed order.
type Poller struct {
	orders      ledger
	rail        verifier
	interval    time.Duration
	maxAttempts int
	batchSize   int
	logger      *slog.Logger

	mu       sync.Mutex
	attempts map[uuid.UUID]int
}

type Config struct {
	Orders      ledger
	Rail        verifier
	Interval    time.Duration
	MaxAttempts int
	BatchSize   int
	Logger      *slog.Logger
}

func NewPoller(cfg Config) (*Poller, error) {
	if cfg.Orders == nil {
		return nil, fmt.Errorf("order ledger is required")
	}
	if cfg.Rail == nil {
		return nil, fmt.Errorf("verifier is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be positive")
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &Poller{
		orders:      cfg.Orders,
		rail:        cfg.Rail,
		interval:    cfg.Interval,
		maxAttempts: cfg.MaxAttempts,
		batchSize:   batchSize,
		logger:      cfg.Logger,
		attempts:    make(map[uuid.UUID]int),
	}, nil
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	logger := logging.FromContext(ctx, p.logger)
	logger.Info("reconciliation poller started",
		"interval", p.interval, "max_attempts", p.maxAttempts)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("reconciliation poller stopped")
			return
		case <-ticker.C:
			p.RunCycle(ctx)
		}
	}
}

// RunCycle processes one batch of parked orders.
func (p *Poller) RunCycle(ctx context.Context) {
	logger := logging.FromContext(ctx, p.logger)

	orders, err := p.orders.ListAwaitingVerification(ctx, p.batchSize)
	if err != nil {
		logger.Error("failed to list orders awaiting verification", "error", err)
		return
	}

	// A short listing is the complete set of parked orders, so any counter
	// not in it belongs to an order settled through the callback or webhook.
	if len(orders) < p.batchSize {
		p.prune(orders)
	}

	for _, order := range orders {
		if ctx.Err() != nil {
			return
		}
		p.reconcile(ctx, order)
	}
}

func (p *Poller) reconcile(ctx context.Context, order *models.Order) {
	logger := logging.FromContext(ctx, p.logger)

	attempt := p.bumpAttempts(order.ID)
	if attempt > p.maxAttempts {
		reason := fmt.Sprintf("payment could not be verified after %d attempts, contact support with your order id", p.maxAttempts)
		if err := p.orders.MarkFailed(ctx, order.ID, reason); err != nil {
			logger.Error("failed to time out order", "order_id", order.ID, "error", err)
			return
		}
		p.forget(order.ID)
		logger.Warn("order verification timed out",
			"order_id", order.ID, "reference", order.GatewayReference)
		return
	}

	settled, err := p.rail.VerifyAndSettle(ctx, order.GatewayReference)
	if err != nil {
		logger.Warn("verification attempt failed",
			"order_id", order.ID, "attempt", attempt, "error", err)
		return
	}

	if settled.Status != models.StatusPendingVerification {
		p.forget(order.ID)
		logger.Info("order reconciled",
			"order_id", order.ID, "status", string(settled.Status), "attempt", attempt)
	}
}

func (p *Poller) bumpAttempts(orderID uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts[orderID]++
	return p.attempts[orderID]
}

func (p *Poller) forget(orderID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.attempts, orderID)
}

// prune drops counters for orders absent from the current listing. Without
// it, an order verified here once but settled elsewhere would hold its
// counter for the life of the process.
func (p *Poller) prune(current []*models.Order) {
	listed := make(map[uuid.UUID]struct{}, len(current))
	for _, order := range current {
		listed[order.ID] = struct{}{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for orderID := range p.attempts {
		if _, ok := listed[orderID]; !ok {
			delete(p.attempts, orderID)
		}
	}
}
