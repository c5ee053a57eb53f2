package middleware

import (
	"net/http"
	"strings"

	"github.com/keydexhq/keydex/internal/api/response"
	"github.com/keydexhq/keydex/internal/auth"
)

// Auth guards admin routes with bearer session tokens.
type Auth struct {
	signer *auth.TokenSigner
}

// NewAuth creates the Auth middleware.
func NewAuth(signer *auth.TokenSigner) *Auth {
	return &Auth{signer: signer}
}

// Authenticate validates the Bearer token and sets the admin claims in
// the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearerToken(r)
		if raw == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		claims, err := a.signer.ParseAndValidate(raw)
		if err != nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid or expired session token", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetAdminClaims(r.Context(), claims)))
	})
}

func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
