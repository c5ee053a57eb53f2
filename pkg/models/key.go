package models

import (
	"time"

	"github.com/google/uuid"
)

// CD-key lifecycle statuses.
const (
	KeyStatusNew     = "new"
	KeyStatusActive  = "active"
	KeyStatusExpired = "expired"
	KeyStatusLimit   = "limit"
)

// ValidKeyStatus reports whether s is one of the four CD-key statuses.
func ValidKeyStatus(s string) bool {
	switch s {
	case KeyStatusNew, KeyStatusActive, KeyStatusExpired, KeyStatusLimit:
		return true
	}
	return false
}

// CDKey is a software license key belonging to a program. Status is driven
// by the validity window (the expiry sweep), by admin override, and
// indirectly by accumulated visitor reports.
type CDKey struct {
	ID          uuid.UUID  `db:"id"           json:"id"`
	ProgramSlug string     `db:"program_slug" json:"program_slug"`
	Key         string     `db:"key"          json:"-"`
	KeyMask     string     `db:"key_mask"     json:"key_mask"`
	Status      string     `db:"status"       json:"status"`
	Version     string     `db:"version"      json:"version"`
	ValidFrom   *time.Time `db:"valid_from"   json:"valid_from,omitempty"`
	ValidUntil  *time.Time `db:"valid_until"  json:"valid_until,omitempty"`
	Notes       string     `db:"notes"        json:"notes"`
	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"   json:"updated_at"`
}
