package middleware

import (
	"context"
	"net/http"

	"github.com/keydexhq/keydex/internal/auth"
)

type contextKey string

const (
	sourceAddrKey  contextKey = "source_addr"
	visitorHashKey contextKey = "visitor_hash"
	adminClaimsKey contextKey = "admin_claims"
)

func setSourceAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, sourceAddrKey, addr)
}

// GetSourceAddr returns the client source address extracted by the
// Visitor middleware. The second return is false when the middleware did
// not run; an empty address with ok=true is a legitimate value (no
// forwarded-for header).
func GetSourceAddr(r *http.Request) (string, bool) {
	addr, ok := r.Context().Value(sourceAddrKey).(string)
	return addr, ok
}

func setVisitorHash(ctx context.Context, hash string) context.Context {
	return context.WithValue(ctx, visitorHashKey, hash)
}

// GetVisitorHash returns the fingerprint computed by the Visitor middleware.
func GetVisitorHash(r *http.Request) (string, bool) {
	hash, ok := r.Context().Value(visitorHashKey).(string)
	return hash, ok
}

// SetAdminClaims stores validated admin session claims. Exported for tests.
func SetAdminClaims(ctx context.Context, claims auth.Claims) context.Context {
	return context.WithValue(ctx, adminClaimsKey, claims)
}

// GetAdminClaims returns the admin session claims set by the Auth middleware.
func GetAdminClaims(r *http.Request) (auth.Claims, bool) {
	claims, ok := r.Context().Value(adminClaimsKey).(auth.Claims)
	return claims, ok
}
