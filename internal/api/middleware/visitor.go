package middleware

import (
	"net/http"

	"github.com/keydexhq/keydex/internal/fingerprint"
)

// Visitor extracts the client source address from the forwarded-for chain
// and fingerprints it once per request. Handlers and the rate limiter
// read both from the request context.
type Visitor struct {
	hasher *fingerprint.Hasher
}

// NewVisitor creates the Visitor middleware.
func NewVisitor(h *fingerprint.Hasher) *Visitor {
	return &Visitor{hasher: h}
}

// Identify sets source_addr and visitor_hash in the request context. An
// absent forwarded-for header yields an empty address, which still
// fingerprints deterministically (hash of salt alone).
func (v *Visitor) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := fingerprint.SourceAddress(r.Header.Get("X-Forwarded-For"))

		ctx := r.Context()
		ctx = setSourceAddr(ctx, addr)
		ctx = setVisitorHash(ctx, v.hasher.Visitor(addr))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
