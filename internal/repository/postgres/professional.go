package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/opinion-api/internal/model"
	"github.com/jwalitptl/opinion-api/internal/repository"
)

type professionalRepository struct {
	BaseRepository
}

func NewProfessionalRepository(db *sqlx.DB) repository.ProfessionalRepository {
	return &professionalRepository{NewBaseRepository(db)}
}

const professionalColumns = `
	id, pro_number, email, name, phone, license_number, license_expiry,
	vetted, level, score, subspecialty, two_factor_method, password_hash,
	COALESCE(documents, 'null'::jsonb) AS documents,
	COALESCE(bank_details, 'null'::jsonb) AS bank_details,
	created_at, updated_at
`

func (r *professionalRepository) Get(ctx context.Context, id uuid.UUID) (*model.MedicalProfessional, error) {
	query := `SELECT ` + professionalColumns + ` FROM medical_professionals WHERE id = $1 AND deleted_at IS NULL`
	var p model.MedicalProfessional
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		return nil, notFound(err, "professional")
	}
	return &p, nil
}

func (r *professionalRepository) GetByEmail(ctx context.Context, email string) (*model.MedicalProfessional, error) {
	query := `SELECT ` + professionalColumns + ` FROM medical_professionals WHERE lower(email) = lower($1) AND deleted_at IS NULL`
	var p model.MedicalProfessional
	if err := r.db.GetContext(ctx, &p, query, email); err != nil {
		return nil, notFound(err, "professional")
	}
	return &p, nil
}

func (r *professionalRepository) ListCandidates(ctx context.Context) ([]*model.MedicalProfessional, error) {
	query := `SELECT ` + professionalColumns + ` FROM medical_professionals WHERE deleted_at IS NULL ORDER BY id`
	var pros []*model.MedicalProfessional
	if err := r.db.SelectContext(ctx, &pros, query); err != nil {
		return nil, fmt.Errorf("failed to list professionals: %w", err)
	}
	return pros, nil
}
