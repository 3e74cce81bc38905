package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sokoniapp/sokoni/internal/cache"
)

// ReferenceStore keeps the gateway reference -> order ID mapping alive while
// a redirect is outstanding. The mapping is a fast path: verification also
// works off the ledger's gateway_reference column, so a cache miss never
// loses an order.
type ReferenceStore struct {
	cache cache.Provider
	ttl   time.Duration
}

func NewReferenceStore(provider cache.Provider, ttl time.Duration) *ReferenceStore {
	return &ReferenceStore{cache: provider, ttl: ttl}
}

func (s *ReferenceStore) Put(ctx context.Context, reference string, orderID uuid.UUID) error {
	if reference == "" {
		return fmt.Errorf("reference is required")
	}
	return s.cache.Set(ctx, cache.PaymentRefKey(reference), orderID.String(), s.ttl)
}

// Lookup returns uuid.Nil with no error when the mapping has expired.
func (s *ReferenceStore) Lookup(ctx context.Context, reference string) (uuid.UUID, error) {
	value, err := s.cache.Get(ctx, cache.PaymentRefKey(reference))
	if errors.Is(err, cache.ErrNotFound) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}

	orderID, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("corrupt reference mapping for %q: %w", reference, err)
	}
	return orderID, nil
}

// Forget drops the mapping once the order reaches a terminal state.
func (s *ReferenceStore) Forget(ctx context.Context, reference string) error {
	return s.cache.Delete(ctx, cache.PaymentRefKey(reference))
}
