package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/opinion-api/internal/model"
)

// All repository interfaces in one file.
//
// Implementations return pkg/errors NotFound for unknown ids and Conflict when
// an atomic check (open-assignment uniqueness, status compare-and-swap) fails.
type (
	CaseRepository interface {
		Create(ctx context.Context, c *model.Case) error
		Get(ctx context.Context, id uuid.UUID) (*model.Case, error)
	}

	ProfessionalRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.MedicalProfessional, error)
		GetByEmail(ctx context.Context, email string) (*model.MedicalProfessional, error)
		// ListCandidates returns every professional on the roster; eligibility
		// is applied in memory so exclusions can be explained.
		ListCandidates(ctx context.Context) ([]*model.MedicalProfessional, error)
	}

	AssignmentRepository interface {
		// Create inserts an ASSIGNED row atomically with the check that the
		// case has no open assignment.
		Create(ctx context.Context, a *model.CaseAssignment) error
		Get(ctx context.Context, id uuid.UUID) (*model.CaseAssignment, error)
		// UpdateStatus is a compare-and-swap on from.
		UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.AssignmentStatus, completedAt *time.Time, updatedAt time.Time) (*model.CaseAssignment, error)
		GetOpenByCase(ctx context.Context, caseID uuid.UUID) (*model.CaseAssignment, error)
		ListByCase(ctx context.Context, caseID uuid.UUID) ([]*model.CaseAssignment, error)
		CountOpenByProfessional(ctx context.Context, professionalIDs []uuid.UUID) (map[uuid.UUID]int, error)
	}

	SessionRepository interface {
		Create(ctx context.Context, s *model.ProfessionalSession) error
		GetByToken(ctx context.Context, token string) (*model.ProfessionalSession, error)
		// UpdateLocked loads the row under a per-row lock, lets fn mutate it
		// and persists the result. If fn returns an error nothing is written
		// unless the error was produced by KeepChanges.
		UpdateLocked(ctx context.Context, token string, fn func(s *model.ProfessionalSession) error) (*model.ProfessionalSession, error)
		DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	SubmissionRepository interface {
		Create(ctx context.Context, s *model.TempSubmission) error
		Get(ctx context.Context, id uuid.UUID) (*model.TempSubmission, error)
		Delete(ctx context.Context, id uuid.UUID) error
		// Consume removes the submission and inserts c in one atomic step.
		// It fails with NotFound if the submission is gone and with
		// ExpiredSubmission if it expired at or before now; either way no
		// case is written.
		Consume(ctx context.Context, id uuid.UUID, now time.Time, c *model.Case) error
		DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}
)
