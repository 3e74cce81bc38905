package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		DatabaseURL:          "postgres://localhost:5432/sokoni",
		BaseURL:              "https://pay.sokoni.example",
		GatewaySecretKey:     "sk_test_123",
		GatewayWebhookSecret: "whsec_123",
		AdminJWTSecret:       strings.Repeat("s", 32),
		EncryptionKey:        strings.Repeat("k", 32),
		CacheProvider:        "memory",
		SessionStoreProvider: "memory",
		EmailProvider:        "noop",
		DefaultCurrency:      "KES",
		GatewayTimeout:       10 * time.Second,
		CheckoutSessionTTL:   30 * time.Minute,
		ReconcileInterval:    10 * time.Second,
		ReconcileMaxAttempts: 30,
		LogFormat:            "text",
		Port:                 "8080",
	}
}

func TestValidateEncryptionKeyLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		encryptionKey string
		wantErr       bool
	}{
		{
			name:          "valid 32-byte key",
			encryptionKey: strings.Repeat("k", 32),
			wantErr:       false,
		},
		{
			name:          "invalid short key",
			encryptionKey: "short",
			wantErr:       true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			cfg.EncryptionKey = tt.encryptionKey

			err := cfg.validate()
			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestValidateGatewayCredentialsMustBePaired(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.GatewayWebhookSecret = ""

	err := cfg.validate()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "must be set together") {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.GatewaySecretKey = ""
	if err := cfg.validate(); err != nil {
		t.Fatalf("manual-only config should validate, got %v", err)
	}
	if cfg.HostedRailEnabled() {
		t.Fatal("hosted rail should be disabled without a gateway key")
	}
}

func TestValidateBaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{name: "https is accepted", baseURL: "https://pay.sokoni.example", wantErr: false},
		{name: "http localhost is accepted", baseURL: "http://localhost:8080", wantErr: false},
		{name: "http non-local is rejected", baseURL: "http://pay.sokoni.example", wantErr: true},
		{name: "garbage is rejected", baseURL: "not a url", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			cfg.BaseURL = tt.baseURL

			err := cfg.validate()
			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestValidateSessionStoreProvider(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.SessionStoreProvider = "invalid"

	err := cfg.validate()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "SessionStoreProvider") || !strings.Contains(err.Error(), "oneof") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/sokoni")
	t.Setenv("BASE_URL", "http://localhost:8080")
	t.Setenv("ADMIN_JWT_SECRET", strings.Repeat("s", 32))
	t.Setenv("ENCRYPTION_KEY", strings.Repeat("k", 32))
	t.Setenv("RECONCILE_INTERVAL", "15s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ReconcileInterval != 15*time.Second {
		t.Fatalf("ReconcileInterval = %v, want 15s", cfg.ReconcileInterval)
	}
	if cfg.DefaultCurrency != "KES" {
		t.Fatalf("DefaultCurrency = %q, want KES", cfg.DefaultCurrency)
	}
	if cfg.HostedRailEnabled() {
		t.Fatal("hosted rail should default to disabled")
	}
}
