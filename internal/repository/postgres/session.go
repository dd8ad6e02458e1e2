package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/opinion-api/internal/model"
	"github.com/jwalitptl/opinion-api/internal/repository"
	apperrors "github.com/jwalitptl/opinion-api/pkg/errors"
)

type sessionRepository struct {
	BaseRepository
}

func NewSessionRepository(db *sqlx.DB) repository.SessionRepository {
	return &sessionRepository{NewBaseRepository(db)}
}

const sessionColumns = `
	id, professional_id, token, two_factor_verified, expires_at,
	challenge_hash, challenge_expires_at, failed_attempts, revoked_at, created_at
`

func (r *sessionRepository) Create(ctx context.Context, s *model.ProfessionalSession) error {
	query := `
		INSERT INTO professional_sessions (` + sessionColumns + `)
		VALUES (
			:id, :professional_id, :token, :two_factor_verified, :expires_at,
			:challenge_hash, :challenge_expires_at, :failed_attempts, :revoked_at, :created_at
		)
	`
	if _, err := r.db.NamedExecContext(ctx, query, s); err != nil {
		if isUniqueViolation(err, "") {
			return apperrors.Conflict("session token already exists")
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *sessionRepository) GetByToken(ctx context.Context, token string) (*model.ProfessionalSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM professional_sessions WHERE token = $1`
	var s model.ProfessionalSession
	if err := r.db.GetContext(ctx, &s, query, token); err != nil {
		return nil, notFound(err, "session")
	}
	return &s, nil
}

// UpdateLocked holds a row lock for the whole read-modify-write so a
// verification cannot interleave with a revoke or a second verification.
func (r *sessionRepository) UpdateLocked(ctx context.Context, token string, fn func(*model.ProfessionalSession) error) (*model.ProfessionalSession, error) {
	var (
		out    *model.ProfessionalSession
		result error
	)
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var s model.ProfessionalSession
		query := `SELECT ` + sessionColumns + ` FROM professional_sessions WHERE token = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &s, query, token); err != nil {
			return notFound(err, "session")
		}

		if err := fn(&s); err != nil {
			var keep bool
			result, keep = repository.SplitKeepChanges(err)
			if !keep {
				return result
			}
		}

		update := `
			UPDATE professional_sessions
			SET two_factor_verified = :two_factor_verified,
				expires_at = :expires_at,
				challenge_hash = :challenge_hash,
				challenge_expires_at = :challenge_expires_at,
				failed_attempts = :failed_attempts,
				revoked_at = :revoked_at
			WHERE id = :id
		`
		if _, err := tx.NamedExecContext(ctx, update, &s); err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		out = &s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, result
}

func (r *sessionRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM professional_sessions
		WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)
	`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
