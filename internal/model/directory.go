package model

import (
	"github.com/google/uuid"
)

// Candidate is a user eligible to receive a notification, as resolved from
// the caller's user/role/permission directory.
type Candidate struct {
	ID    uuid.UUID `db:"id" json:"id"`
	Email string    `db:"email" json:"email"`
	Name  string    `db:"name" json:"name"`
}
