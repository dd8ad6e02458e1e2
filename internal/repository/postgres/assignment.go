package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/opinion-api/internal/model"
	"github.com/jwalitptl/opinion-api/internal/repository"
	apperrors "github.com/jwalitptl/opinion-api/pkg/errors"
)

const openAssignmentIndex = "case_assignments_one_open_idx"

type assignmentRepository struct {
	BaseRepository
}

func NewAssignmentRepository(db *sqlx.DB) repository.AssignmentRepository {
	return &assignmentRepository{NewBaseRepository(db)}
}

const assignmentColumns = `id, case_id, professional_id, status, assigned_at, completed_at, updated_at`

// Create relies on the partial unique index over open statuses, so two
// concurrent inserts for one case cannot both commit.
func (r *assignmentRepository) Create(ctx context.Context, a *model.CaseAssignment) error {
	query := `
		INSERT INTO case_assignments (` + assignmentColumns + `)
		VALUES (:id, :case_id, :professional_id, :status, :assigned_at, :completed_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		if isUniqueViolation(err, openAssignmentIndex) {
			return apperrors.Conflict("case already has an open assignment")
		}
		return fmt.Errorf("failed to create assignment: %w", err)
	}
	return nil
}

func (r *assignmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.CaseAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM case_assignments WHERE id = $1`
	var a model.CaseAssignment
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		return nil, notFound(err, "assignment")
	}
	return &a, nil
}

func (r *assignmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.AssignmentStatus, completedAt *time.Time, updatedAt time.Time) (*model.CaseAssignment, error) {
	query := `
		UPDATE case_assignments
		SET status = $1, completed_at = $2, updated_at = $3
		WHERE id = $4 AND status = $5
		RETURNING ` + assignmentColumns

	var a model.CaseAssignment
	err := r.db.GetContext(ctx, &a, query, to, completedAt, updatedAt, id, from)
	if err == nil {
		return &a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update assignment status: %w", err)
	}

	// Distinguish a lost compare-and-swap from an unknown id.
	if _, getErr := r.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, apperrors.Conflict("assignment status changed concurrently")
}

func (r *assignmentRepository) GetOpenByCase(ctx context.Context, caseID uuid.UUID) (*model.CaseAssignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM case_assignments
		WHERE case_id = $1 AND status IN ('ASSIGNED', 'IN_PROGRESS')
	`
	var a model.CaseAssignment
	err := r.db.GetContext(ctx, &a, query, caseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open assignment: %w", err)
	}
	return &a, nil
}

func (r *assignmentRepository) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*model.CaseAssignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM case_assignments
		WHERE case_id = $1
		ORDER BY assigned_at ASC
	`
	var out []*model.CaseAssignment
	if err := r.db.SelectContext(ctx, &out, query, caseID); err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return out, nil
}

func (r *assignmentRepository) CountOpenByProfessional(ctx context.Context, professionalIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int, len(professionalIDs))
	if len(professionalIDs) == 0 {
		return counts, nil
	}

	ids := make([]string, len(professionalIDs))
	for i, id := range professionalIDs {
		ids[i] = id.String()
	}

	query := `
		SELECT professional_id, COUNT(*) AS open_count
		FROM case_assignments
		WHERE professional_id = ANY($1::uuid[]) AND status IN ('ASSIGNED', 'IN_PROGRESS')
		GROUP BY professional_id
	`
	var rows []struct {
		ProfessionalID uuid.UUID `db:"professional_id"`
		OpenCount      int       `db:"open_count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to count open assignments: %w", err)
	}
	for _, row := range rows {
		counts[row.ProfessionalID] = row.OpenCount
	}
	return counts, nil
}
