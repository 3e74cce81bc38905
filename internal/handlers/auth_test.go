package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sokoniapp/sokoni/internal/config"
)

const testAdminSecret = "test-admin-secret-0123456789abcdef"

func newAuthTestHandlers() *Handlers {
	return &Handlers{
		config: &config.Config{AdminJWTSecret: testAdminSecret},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func signAdminToken(t *testing.T, secret string, expiresIn time.Duration) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(expiresIn).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestRequireAdmin_ValidToken(t *testing.T) {
	t.Parallel()

	h := newAuthTestHandlers()
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/admin/orders/x/approve", nil)
	req.Header.Set("Authorization", "Bearer "+signAdminToken(t, testAdminSecret, time.Hour))
	rec := httptest.NewRecorder()

	h.RequireAdmin(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
}

func TestRequireAdmin_Rejections(t *testing.T) {
	t.Parallel()

	h := newAuthTestHandlers()

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "empty token", header: "Bearer "},
		{name: "garbage token", header: "Bearer not.a.jwt"},
		{name: "wrong secret", header: "Bearer " + signAdminToken(t, "wrong-secret-0123456789abcdefghij", time.Hour)},
		{name: "expired", header: "Bearer " + signAdminToken(t, testAdminSecret, -time.Hour)},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				t.Error("next handler should not run")
			})

			req := httptest.NewRequest(http.MethodPost, "/admin/orders/x/approve", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()

			h.RequireAdmin(next).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
			}
		})
	}
}

func TestRequireAdmin_RejectsUnsignedAlgorithm(t *testing.T) {
	t.Parallel()

	h := newAuthTestHandlers()

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("next handler should not run")
	})

	req := httptest.NewRequest(http.MethodPost, "/admin/orders/x/approve", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()

	h.RequireAdmin(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}
