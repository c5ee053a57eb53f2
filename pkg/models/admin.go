package models

import (
	"time"

	"github.com/google/uuid"
)

// AdminUser can moderate suggestions and messages and override key status.
// Only the bcrypt hash of the password is stored.
type AdminUser struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	Username     string    `db:"username"      json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
}
