// Package models contains shared data models used across the Keydex codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types a visitor can assert about a CD key.
const (
	EventKeyWorking      = "report_key_working"
	EventKeyExpired      = "report_key_expired"
	EventKeyLimitReached = "report_key_limit_reached"
)

// ValidEventType reports whether s is one of the three report event types.
func ValidEventType(s string) bool {
	switch s {
	case EventKeyWorking, EventKeyExpired, EventKeyLimitReached:
		return true
	}
	return false
}

// KeyReport records a visitor's assertion about a CD key's working state.
// The raw key is never stored; only its unsalted SHA-256 hex and a display
// mask. VisitorHash is the salted fingerprint of the reporting visitor.
// At most one report exists per (visitor_hash, program_slug, key_hash),
// enforced by a unique index.
type KeyReport struct {
	ID          uuid.UUID `db:"id"           json:"id"`
	ProgramSlug string    `db:"program_slug" json:"program_slug"`
	KeyHash     string    `db:"key_hash"     json:"key_hash"`
	KeyMask     string    `db:"key_mask"     json:"key_mask"`
	EventType   string    `db:"event_type"   json:"event_type"`
	VisitorHash string    `db:"visitor_hash" json:"-"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
}
