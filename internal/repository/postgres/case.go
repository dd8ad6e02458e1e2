package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/opinion-api/internal/model"
	"github.com/jwalitptl/opinion-api/internal/repository"
	apperrors "github.com/jwalitptl/opinion-api/pkg/errors"
)

type caseRepository struct {
	BaseRepository
}

func NewCaseRepository(db *sqlx.DB) repository.CaseRepository {
	return &caseRepository{NewBaseRepository(db)}
}

func (r *caseRepository) Create(ctx context.Context, c *model.Case) error {
	return insertCase(ctx, r.db, c)
}

func insertCase(ctx context.Context, db sqlx.ExtContext, c *model.Case) error {
	query := `
		INSERT INTO cases (
			id, case_number, customer_id, patient_name, date_of_birth,
			gender, disease_type, description, consent_accepted,
			created_at, updated_at
		) VALUES (
			:id, :case_number, :customer_id, :patient_name, :date_of_birth,
			:gender, :disease_type, :description, :consent_accepted,
			:created_at, :updated_at
		)
	`
	if _, err := sqlx.NamedExecContext(ctx, db, query, c); err != nil {
		if isUniqueViolation(err, "cases_case_number_key") {
			return apperrors.Conflict("case number already exists")
		}
		return fmt.Errorf("failed to create case: %w", err)
	}
	return nil
}

func (r *caseRepository) Get(ctx context.Context, id uuid.UUID) (*model.Case, error) {
	query := `
		SELECT id, case_number, customer_id, patient_name, date_of_birth,
			   gender, disease_type, description, consent_accepted,
			   created_at, updated_at
		FROM cases
		WHERE id = $1
	`
	var c model.Case
	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		return nil, notFound(err, "case")
	}
	return &c, nil
}
