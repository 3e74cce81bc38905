package cache

// Package cache provides short-lived key/value storage for webhook replay
// suppression and the redirect reference -> order mapping.

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("key not found")

// Provider is the interface over the memory and redis cache backends.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
}

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryProvider()
	case "redis":
		return NewRedisProvider(cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

// WebhookKey dedups gateway webhook deliveries by event ID.
func WebhookKey(source, eventID string) string {
	return fmt.Sprintf("webhook:%s:%s", source, eventID)
}

// PaymentRefKey links a gateway checkout reference back to the order it was
// created for, so a redirect-back callback that carries only the reference
// can be reassociated.
func PaymentRefKey(reference string) string {
	return fmt.Sprintf("payref:%s", reference)
}
