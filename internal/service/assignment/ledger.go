package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/opinion-api/internal/model"
	"github.com/jwalitptl/opinion-api/internal/repository"
	"github.com/jwalitptl/opinion-api/pkg/clock"
	apperrors "github.com/jwalitptl/opinion-api/pkg/errors"
	"github.com/jwalitptl/opinion-api/pkg/metrics"
)

// Ledger is the only writer of CaseAssignment rows.
type Ledger struct {
	repo    repository.AssignmentRepository
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewLedger(repo repository.AssignmentRepository, clk clock.Clock, m *metrics.Metrics) *Ledger {
	return &Ledger{repo: repo, clock: clk, metrics: m}
}

// Create opens an ASSIGNED row. It fails with a Conflict error when the case
// already has an open assignment, including one held by the same professional.
func (l *Ledger) Create(ctx context.Context, caseID, professionalID uuid.UUID) (*model.CaseAssignment, error) {
	now := l.clock.Now()
	a := &model.CaseAssignment{
		ID:             uuid.New(),
		CaseID:         caseID,
		ProfessionalID: professionalID,
		Status:         model.AssignmentStatusAssigned,
		AssignedAt:     now,
		UpdatedAt:      now,
	}

	if err := l.repo.Create(ctx, a); err != nil {
		if errors.Is(err, apperrors.ConflictErr) {
			l.metrics.LedgerConflicts.Inc()
		}
		return nil, err
	}
	l.metrics.Transitions.WithLabelValues(string(model.AssignmentStatusAssigned)).Inc()
	return a, nil
}

// Transition moves an assignment along the status machine. The write is a
// compare-and-swap on the status read here, so a concurrent transition makes
// this one fail with Conflict instead of overwriting it.
func (l *Ledger) Transition(ctx context.Context, assignmentID uuid.UUID, to model.AssignmentStatus) (*model.CaseAssignment, error) {
	current, err := l.repo.Get(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(to) {
		return nil, apperrors.InvalidTransition(string(current.Status), string(to))
	}

	now := l.clock.Now()
	var completedAt *time.Time
	if to == model.AssignmentStatusCompleted {
		completedAt = &now
	}

	updated, err := l.repo.UpdateStatus(ctx, assignmentID, current.Status, to, completedAt, now)
	if err != nil {
		if errors.Is(err, apperrors.ConflictErr) {
			l.metrics.LedgerConflicts.Inc()
		}
		return nil, err
	}
	l.metrics.Transitions.WithLabelValues(string(to)).Inc()
	return updated, nil
}

// ActiveAssignmentFor returns the open assignment for a case, or nil.
func (l *Ledger) ActiveAssignmentFor(ctx context.Context, caseID uuid.UUID) (*model.CaseAssignment, error) {
	a, err := l.repo.GetOpenByCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to read active assignment: %w", err)
	}
	return a, nil
}

func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*model.CaseAssignment, error) {
	return l.repo.Get(ctx, id)
}

// ListByCase returns the case's full assignment history, oldest first.
func (l *Ledger) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*model.CaseAssignment, error) {
	return l.repo.ListByCase(ctx, caseID)
}

// OpenLoad counts open assignments per professional.
func (l *Ledger) OpenLoad(ctx context.Context, professionalIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	return l.repo.CountOpenByProfessional(ctx, professionalIDs)
}
