// Package handlers provides the HTTP surface: buyer checkout endpoints,
// gateway callbacks and webhooks, order status, and the seller admin API.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sokoniapp/sokoni/internal/cache"
	"github.com/sokoniapp/sokoni/internal/checkout"
	"github.com/sokoniapp/sokoni/internal/config"
	"github.com/sokoniapp/sokoni/internal/db"
	"github.com/sokoniapp/sokoni/internal/logging"
	"github.com/sokoniapp/sokoni/internal/review"
)

const maxWebhookBodyBytes = 1 << 20 // 1 MB

// storeCredentials is the slice of the store repository the admin API needs
// for gateway credential rotation.
type storeCredentials interface {
	UpdateGatewayCredentials(ctx context.Context, storeID uuid.UUID, accountID, secret string) error
}

// Handlers provides HTTP request handlers for the checkout API.
type Handlers struct {
	config        *config.Config
	db            *pgxpool.Pool
	orderStore    *db.OrderStore
	stores        storeCredentials
	cacheProvider cache.Provider
	orchestrator  *checkout.Orchestrator
	reviewService *review.Service
	logger        *slog.Logger
}

type Dependencies struct {
	Config        *config.Config
	DB            *pgxpool.Pool
	OrderStore    *db.OrderStore
	Stores        storeCredentials
	CacheProvider cache.Provider
	Orchestrator  *checkout.Orchestrator
	ReviewService *review.Service
	Logger        *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("handlers dependencies: db is required")
	}
	if deps.OrderStore == nil {
		return nil, fmt.Errorf("handlers dependencies: orderStore is required")
	}
	if deps.Stores == nil {
		return nil, fmt.Errorf("handlers dependencies: stores is required")
	}
	if deps.CacheProvider == nil {
		return nil, fmt.Errorf("handlers dependencies: cacheProvider is required")
	}
	if deps.Orchestrator == nil {
		return nil, fmt.Errorf("handlers dependencies: orchestrator is required")
	}
	if deps.ReviewService == nil {
		return nil, fmt.Errorf("handlers dependencies: reviewService is required")
	}

	return &Handlers{
		config:        deps.Config,
		db:            deps.DB,
		orderStore:    deps.OrderStore,
		stores:        deps.Stores,
		cacheProvider: deps.CacheProvider,
		orchestrator:  deps.Orchestrator,
		reviewService: deps.ReviewService,
		logger:        logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.db.Ping(ctx); err != nil {
		logger.Error("database health check failed", "error", err)
		http.Error(w, "Database unhealthy", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		logger.Error("failed to encode health response", "error", err)
	}
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}
