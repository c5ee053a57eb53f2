package models

import (
	"time"

	"github.com/google/uuid"
)

// Key-suggestion moderation statuses.
const (
	SuggestionPending  = "pending"
	SuggestionApproved = "approved"
	SuggestionRejected = "rejected"
)

// KeySuggestion is a visitor-submitted key awaiting moderation. Approval
// turns it into a CDKey with status "new".
type KeySuggestion struct {
	ID          uuid.UUID  `db:"id"           json:"id"`
	ProgramSlug string     `db:"program_slug" json:"program_slug"`
	Key         string     `db:"key"          json:"key"`
	Notes       string     `db:"notes"        json:"notes"`
	Status      string     `db:"status"       json:"status"`
	VisitorHash string     `db:"visitor_hash" json:"-"`
	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
	ReviewedAt  *time.Time `db:"reviewed_at"  json:"reviewed_at,omitempty"`
}
