package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sokoniapp/sokoni/internal/observability"
)

func TestMetricsContextInjectsMeter(t *testing.T) {
	t.Parallel()

	h := &Handlers{}
	var sawMeter bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawMeter = observability.MeterFromContext(r.Context()) != nil
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()

	h.MetricsContext(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !sawMeter {
		t.Error("handler context carried no meter")
	}
}
