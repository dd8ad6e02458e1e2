package model

import (
	"time"

	"github.com/google/uuid"
)

type ProfessionalSession struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	ProfessionalID     uuid.UUID  `db:"professional_id" json:"professional_id"`
	Token              string     `db:"token" json:"-"`
	TwoFactorVerified  bool       `db:"two_factor_verified" json:"two_factor_verified"`
	ExpiresAt          time.Time  `db:"expires_at" json:"expires_at"`
	ChallengeHash      string     `db:"challenge_hash" json:"-"`
	ChallengeExpiresAt time.Time  `db:"challenge_expires_at" json:"-"`
	FailedAttempts     int        `db:"failed_attempts" json:"-"`
	RevokedAt          *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

// Usable reports whether the session may gate assignment actions at now.
func (s *ProfessionalSession) Usable(now time.Time) bool {
	return s.Live(now) && s.TwoFactorVerified
}

// Live reports whether the session is neither revoked nor expired at now.
func (s *ProfessionalSession) Live(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
