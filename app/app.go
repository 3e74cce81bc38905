package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sokoniapp/sokoni/internal/cache"
	"github.com/sokoniapp/sokoni/internal/catalog"
	"github.com/sokoniapp/sokoni/internal/checkout"
	"github.com/sokoniapp/sokoni/internal/config"
	"github.com/sokoniapp/sokoni/internal/crypto"
	"github.com/sokoniapp/sokoni/internal/db"
	"github.com/sokoniapp/sokoni/internal/email"
	"github.com/sokoniapp/sokoni/internal/gateway"
	"github.com/sokoniapp/sokoni/internal/handlers"
	"github.com/sokoniapp/sokoni/internal/observability"
	"github.com/sokoniapp/sokoni/internal/payment"
	"github.com/sokoniapp/sokoni/internal/reconcile"
	"github.com/sokoniapp/sokoni/internal/review"
	"github.com/sokoniapp/sokoni/internal/session"
)

// paymentRefTTL is how long the gateway reference -> order mapping is kept.
// Longer than the session TTL so late redirect-backs still resolve.
const paymentRefTTL = 24 * time.Hour

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *pgxpool.Pool
	CacheProvider cache.Provider
	SessionStore  session.Store
	Handlers      *handlers.Handlers

	// Poller is nil when the hosted rail is not configured.
	Poller *reconcile.Poller
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg)
	observability.RegisterMetrics()

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	sessionStore, err := session.NewStore(startupCtx, session.Config{
		Provider:              cfg.SessionStoreProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	cleanup := func() {
		closeSessionStore(logger, sessionStore)
		closeCacheProvider(logger, cacheProvider)
		database.Close()
	}

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	storeStore, err := db.NewStoreStore(database, encryptor)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to initialize store repository: %w", err)
	}
	orderStore := db.NewOrderStore(database)

	registry, err := catalog.LoadRegistry(cfg.WalletConfigPath)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to load wallet registry: %w", err)
	}
	resolver := catalog.NewResolver(storeStore, cfg.DefaultCurrency)

	emailProvider, err := email.NewProvider(email.Config{
		Provider: cfg.EmailProvider,
		APIKey:   cfg.ResendAPIKey,
		From:     cfg.EmailFrom,
	})
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to initialize email provider: %w", err)
	}

	manualRail, err := payment.NewManualRail(orderStore, logger.With("component", "manual_rail"))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to initialize manual rail: %w", err)
	}

	var hostedRail *payment.HostedRail
	if cfg.HostedRailEnabled() {
		stripeGateway, gwErr := gateway.NewStripeGateway(cfg.GatewaySecretKey, cfg.GatewayTimeout)
		if gwErr != nil {
			cleanup()
			return nil, fmt.Errorf("failed to initialize gateway: %w", gwErr)
		}
		refs := payment.NewReferenceStore(cacheProvider, paymentRefTTL)
		callbackURL := strings.TrimRight(cfg.BaseURL, "/") + "/payments/callback"
		hostedRail, err = payment.NewHostedRail(stripeGateway, orderStore, refs, callbackURL,
			logger.With("component", "hosted_rail"))
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to initialize hosted rail: %w", err)
		}
	} else {
		logger.Warn("gateway credentials not set, hosted payments disabled")
	}

	checkoutCfg := checkout.Config{
		Sessions:   sessionStore,
		SessionTTL: cfg.CheckoutSessionTTL,
		Resolver:   resolver,
		Registry:   registry,
		Orders:     orderStore,
		Stores:     storeStore,
		Manual:     manualRail,
		Logger:     logger.With("component", "checkout"),
	}
	if hostedRail != nil {
		checkoutCfg.Hosted = hostedRail
	}
	orchestrator, err := checkout.New(checkoutCfg)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to initialize checkout orchestrator: %w", err)
	}

	reviewService, err := review.NewService(orderStore, storeStore, resolver, emailProvider,
		logger.With("component", "review"))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to initialize review service: %w", err)
	}

	var poller *reconcile.Poller
	if hostedRail != nil {
		poller, err = reconcile.NewPoller(reconcile.Config{
			Orders:      orderStore,
			Rail:        hostedRail,
			Interval:    cfg.ReconcileInterval,
			MaxAttempts: cfg.ReconcileMaxAttempts,
			Logger:      logger.With("component", "reconcile"),
		})
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to initialize reconciliation poller: %w", err)
		}
	}

	h, err := handlers.New(handlers.Dependencies{
		Config:        cfg,
		DB:            database,
		OrderStore:    orderStore,
		Stores:        storeStore,
		CacheProvider: cacheProvider,
		Orchestrator:  orchestrator,
		ReviewService: reviewService,
		Logger:        logger,
	})
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		DB:            database,
		CacheProvider: cacheProvider,
		SessionStore:  sessionStore,
		Handlers:      h,
		Poller:        poller,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.SessionStore != nil {
		closeSessionStore(a.Logger, a.SessionStore)
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	format := strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	default:
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level: cfg.LogLevel,
		}))
	}
}

func closeSessionStore(logger *slog.Logger, store session.Store) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil && logger != nil {
		logger.Warn("failed to close session store", "error", err)
	}
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
