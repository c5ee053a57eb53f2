package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is a contact-form submission shown in the admin dashboard.
type Message struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	Email     string    `db:"email"      json:"email"`
	Body      string    `db:"body"       json:"body"`
	Read      bool      `db:"read"       json:"read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
