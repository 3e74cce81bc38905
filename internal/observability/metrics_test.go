package observability

import (
	"context"
	"testing"

	"github.com/getsentry/sentry-go"
)

func TestWithMeterCarriesMeter(t *testing.T) {
	t.Parallel()

	ctx := WithMeter(context.Background(), sentry.NewMeter(context.Background()))

	if ctx.Value(meterContextKey{}) == nil {
		t.Error("context carries no meter after WithMeter")
	}
	if got := MeterFromContext(ctx); got == nil {
		t.Error("MeterFromContext returned nil for a context with a meter")
	}
}

func TestMeterFromContextWithoutMeter(t *testing.T) {
	t.Parallel()

	if got := MeterFromContext(context.Background()); got == nil {
		t.Error("MeterFromContext returned nil for a bare context")
	}
}

func TestWithMeterNilMeterStoresFallback(t *testing.T) {
	t.Parallel()

	ctx := WithMeter(context.Background(), nil)
	if ctx.Value(meterContextKey{}) == nil {
		t.Error("context carries no meter after WithMeter(ctx, nil)")
	}
}
