// Package fingerprint derives pseudonymous identifiers for visitors and
// one-way hashes for CD keys. Raw addresses and raw keys are never stored;
// only their SHA-256 hex digests leave this package.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Hasher computes salted visitor fingerprints. The salt is process-wide
// configuration, read once at construction.
type Hasher struct {
	salt string
}

// NewHasher creates a Hasher with the given server-side secret salt.
func NewHasher(salt string) *Hasher {
	return &Hasher{salt: salt}
}

// Visitor hashes a source address into a stable 64-char lowercase hex
// fingerprint. An absent address hashes as the empty string, so the
// output length is fixed regardless of input.
func (h *Hasher) Visitor(sourceAddr string) string {
	sum := sha256.Sum256([]byte(sourceAddr + h.salt))
	return fmt.Sprintf("%x", sum)
}

// Key hashes a raw CD key without salt mixing, so two visitors reporting
// the same literal key produce the same digest.
func Key(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return fmt.Sprintf("%x", sum)
}

// SourceAddress extracts the client address from a forwarded-for header
// chain: the first comma-separated token, trimmed. Returns "" when the
// header is absent or blank.
func SourceAddress(forwardedFor string) string {
	first, _, _ := strings.Cut(forwardedFor, ",")
	return strings.TrimSpace(first)
}

// Mask renders a raw key as a display identifier that keeps at most the
// first and last four characters visible.
func Mask(rawKey string) string {
	if len(rawKey) <= 8 {
		return strings.Repeat("*", len(rawKey))
	}
	return rawKey[:4] + strings.Repeat("*", len(rawKey)-8) + rawKey[len(rawKey)-4:]
}
