package models

import "time"

// Analytics event types recorded by the site.
const (
	EventPageView    = "page_view"
	EventSocialClick = "social_click"
	EventKeyCopy     = "key_copy"
)

// ValidAnalyticsEvent reports whether s is a recordable analytics event.
func ValidAnalyticsEvent(s string) bool {
	switch s {
	case EventPageView, EventSocialClick, EventKeyCopy:
		return true
	}
	return false
}

// AnalyticsCount is an aggregated event counter. Events are counted in
// memory per (event, program, social) and flushed to the store in batches.
type AnalyticsCount struct {
	Event       string    `db:"event"        json:"event"`
	ProgramSlug string    `db:"program_slug" json:"program_slug"`
	Social      string    `db:"social"       json:"social"`
	Count       int64     `db:"count"        json:"count"`
	UpdatedAt   time.Time `db:"updated_at"   json:"updated_at"`
}
