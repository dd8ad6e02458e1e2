package model

import (
	"time"

	"github.com/google/uuid"
)

// TempSubmission holds intake data before a Case is durably created.
type TempSubmission struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Payload   []byte    `db:"payload" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (s *TempSubmission) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
