package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	BaseURL     string `env:"BASE_URL,required" validate:"required,url"`

	// Hosted-redirect gateway credentials. The gateway is optional: without
	// a secret key only the manual rail is available.
	GatewaySecretKey     string `env:"GATEWAY_SECRET_KEY"`
	GatewayWebhookSecret string `env:"GATEWAY_WEBHOOK_SECRET"`

	AdminJWTSecret string `env:"ADMIN_JWT_SECRET,required" validate:"required,min=32"`
	EncryptionKey  string `env:"ENCRYPTION_KEY,required" validate:"required,len=32"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	SessionStoreProvider  string `env:"SESSION_STORE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis,required_if=SessionStoreProvider redis"`

	EmailProvider string `env:"EMAIL_PROVIDER" envDefault:"noop" validate:"omitempty,oneof=noop resend"`
	ResendAPIKey  string `env:"RESEND_API_KEY" validate:"required_if=EmailProvider resend"`
	EmailFrom     string `env:"EMAIL_FROM" validate:"required_if=EmailProvider resend,omitempty,email"`

	DefaultCurrency string `env:"DEFAULT_CURRENCY" envDefault:"KES" validate:"len=3"`

	// Path to the wallet-provider registry; empty uses the built-in registry.
	WalletConfigPath string `env:"WALLET_CONFIG_PATH"`

	GatewayTimeout       time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s" validate:"min=1s,max=60s"`
	CheckoutSessionTTL   time.Duration `env:"CHECKOUT_SESSION_TTL" envDefault:"30m" validate:"min=1m"`
	ReconcileInterval    time.Duration `env:"RECONCILE_INTERVAL" envDefault:"10s" validate:"min=1s"`
	ReconcileMaxAttempts int           `env:"RECONCILE_MAX_ATTEMPTS" envDefault:"30" validate:"min=1"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	hasGatewayKey := strings.TrimSpace(c.GatewaySecretKey) != ""
	hasWebhookSecret := strings.TrimSpace(c.GatewayWebhookSecret) != ""
	if hasGatewayKey != hasWebhookSecret {
		return fmt.Errorf("GATEWAY_SECRET_KEY and GATEWAY_WEBHOOK_SECRET must be set together")
	}

	baseURL := strings.TrimSpace(c.BaseURL)
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Hostname() == "" {
		return fmt.Errorf("BASE_URL must be a valid absolute URL")
	}
	if !isLocalHost(parsed.Hostname()) && !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("BASE_URL must use https outside local development")
	}

	return nil
}

// HostedRailEnabled reports whether the hosted-redirect gateway is configured.
func (c *Config) HostedRailEnabled() bool {
	return strings.TrimSpace(c.GatewaySecretKey) != ""
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
