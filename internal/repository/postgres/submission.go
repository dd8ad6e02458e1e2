package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/opinion-api/internal/model"
	"github.com/jwalitptl/opinion-api/internal/repository"
	apperrors "github.com/jwalitptl/opinion-api/pkg/errors"
)

type submissionRepository struct {
	BaseRepository
}

func NewSubmissionRepository(db *sqlx.DB) repository.SubmissionRepository {
	return &submissionRepository{NewBaseRepository(db)}
}

func (r *submissionRepository) Create(ctx context.Context, s *model.TempSubmission) error {
	query := `
		INSERT INTO temp_submissions (id, payload, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, s.ID, s.Payload, s.ExpiresAt, s.CreatedAt); err != nil {
		return fmt.Errorf("failed to stage submission: %w", err)
	}
	return nil
}

func (r *submissionRepository) Get(ctx context.Context, id uuid.UUID) (*model.TempSubmission, error) {
	query := `SELECT id, payload, expires_at, created_at FROM temp_submissions WHERE id = $1`
	var s model.TempSubmission
	if err := r.db.GetContext(ctx, &s, query, id); err != nil {
		return nil, notFound(err, "submission")
	}
	return &s, nil
}

func (r *submissionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM temp_submissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete submission: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("submission", nil)
	}
	return nil
}

func (r *submissionRepository) Consume(ctx context.Context, id uuid.UUID, now time.Time, c *model.Case) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var expiresAt time.Time
		err := tx.GetContext(ctx, &expiresAt, `DELETE FROM temp_submissions WHERE id = $1 RETURNING expires_at`, id)
		if err != nil {
			return notFound(err, "submission")
		}
		// Rolling back keeps the expired row for the sweeper.
		if !now.Before(expiresAt) {
			return apperrors.ExpiredSubmission()
		}
		return insertCase(ctx, tx, c)
	})
}

func (r *submissionRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM temp_submissions WHERE expires_at <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired submissions: %w", err)
	}
	return res.RowsAffected()
}
