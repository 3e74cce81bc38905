package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// RequireAdmin guards the admin API with a bearer token signed with the
// admin JWT secret. Tokens use HMAC signing only; any other method is
// rejected outright.
func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			h.unauthorized(w, r, err)
			return
		}

		parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(h.config.AdminJWTSecret), nil
		}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}), jwt.WithExpirationRequired())
		if err != nil || !parsed.Valid {
			h.unauthorized(w, r, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", fmt.Errorf("missing authorization header")
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("authorization header is not a bearer token")
	}
	return strings.TrimSpace(token), nil
}

func (h *Handlers) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	h.loggerFromContext(r.Context()).Warn("admin request rejected",
		"path", r.URL.Path, "error", err)
	w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
}
