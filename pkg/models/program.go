package models

import (
	"time"

	"github.com/google/uuid"
)

// Program is a software title keys and reports belong to. Referenced by
// slug from every other entity.
type Program struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Slug      string    `db:"slug"       json:"slug"`
	Name      string    `db:"name"       json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
