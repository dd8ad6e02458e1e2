// Package assignment selects professionals for cases and tracks the
// resulting assignments through their lifecycle.
package assignment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/opinion-api/internal/model"
	"github.com/jwalitptl/opinion-api/internal/repository"
	"github.com/jwalitptl/opinion-api/internal/service/eligibility"
	"github.com/jwalitptl/opinion-api/pkg/clock"
	apperrors "github.com/jwalitptl/opinion-api/pkg/errors"
	"github.com/jwalitptl/opinion-api/pkg/logger"
	"github.com/jwalitptl/opinion-api/pkg/messaging"
	"github.com/jwalitptl/opinion-api/pkg/metrics"
)

const DefaultMaxAttempts = 3

type Config struct {
	// MaxAttempts bounds how many candidates Assign tries after losing a
	// create race.
	MaxAttempts int
}

type Coordinator struct {
	ledger        *Ledger
	cases         repository.CaseRepository
	professionals repository.ProfessionalRepository
	filter        *eligibility.Filter
	cache         *CandidateCache
	publisher     messaging.Publisher
	clock         clock.Clock
	log           *logger.Logger
	metrics       *metrics.Metrics
	maxAttempts   int
}

func NewCoordinator(
	cfg Config,
	ledger *Ledger,
	cases repository.CaseRepository,
	professionals repository.ProfessionalRepository,
	filter *eligibility.Filter,
	cache *CandidateCache,
	publisher messaging.Publisher,
	clk clock.Clock,
	log *logger.Logger,
	m *metrics.Metrics,
) *Coordinator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Coordinator{
		ledger:        ledger,
		cases:         cases,
		professionals: professionals,
		filter:        filter,
		cache:         cache,
		publisher:     publisher,
		clock:         clk,
		log:           log,
		metrics:       m,
		maxAttempts:   cfg.MaxAttempts,
	}
}

// Assign picks the best eligible professional for the case and opens an
// assignment for them.
func (c *Coordinator) Assign(ctx context.Context, caseID uuid.UUID) (*model.CaseAssignment, error) {
	timer := prometheus.NewTimer(c.metrics.AssignmentLatency)
	defer timer.ObserveDuration()

	a, err := c.assign(ctx, caseID, nil)
	c.metrics.AssignmentAttempts.WithLabelValues(outcome(err)).Inc()
	return a, err
}

func (c *Coordinator) assign(ctx context.Context, caseID uuid.UUID, exclude map[uuid.UUID]bool) (*model.CaseAssignment, error) {
	active, err := c.ledger.ActiveAssignmentFor(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, apperrors.AlreadyAssigned(caseID)
	}

	cs, err := c.cases.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}

	ranked, err := c.rank(ctx, cs, nil)
	if err != nil {
		return nil, err
	}

	attempts := 0
	for _, cand := range ranked {
		if !cand.Eligibility.Eligible {
			break
		}
		if exclude[cand.Professional.ID] {
			continue
		}
		if attempts == c.maxAttempts {
			break
		}
		attempts++

		a, err := c.ledger.Create(ctx, caseID, cand.Professional.ID)
		if err == nil {
			c.log.Info("case assigned",
				"case_id", caseID.String(),
				"professional_id", cand.Professional.ID.String(),
				"attempt", attempts,
			)
			c.publish(ctx, model.EventAssignmentCreated, a)
			return a, nil
		}
		if !errors.Is(err, apperrors.ConflictErr) {
			return nil, err
		}

		// Lost a race. If someone else now holds the case we are done,
		// otherwise the conflicting row has already closed and the next
		// candidate may still win.
		active, err := c.ledger.ActiveAssignmentFor(ctx, caseID)
		if err != nil {
			return nil, err
		}
		if active != nil {
			return nil, apperrors.AlreadyAssigned(caseID)
		}
		c.log.Warn("assignment create conflicted, trying next candidate",
			"case_id", caseID.String(),
			"professional_id", cand.Professional.ID.String(),
			"attempt", attempts,
		)
	}

	if attempts == 0 {
		// The snapshot may predate a newly vetted or licensed professional.
		c.cache.invalidate()
		return nil, apperrors.NoEligibleProfessional(nil)
	}
	return nil, apperrors.NoEligibleProfessional(fmt.Errorf("gave up after %d attempts", attempts))
}

// Candidates returns the whole roster ranked for the case, eligible
// professionals first, each with the reasons it was excluded.
func (c *Coordinator) Candidates(ctx context.Context, caseID uuid.UUID) ([]Candidate, error) {
	cs, err := c.cases.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	active, err := c.ledger.ActiveAssignmentFor(ctx, caseID)
	if err != nil {
		return nil, err
	}
	var open []*model.CaseAssignment
	if active != nil {
		open = append(open, active)
	}
	return c.rank(ctx, cs, open)
}

// History lists every assignment ever made for the case, oldest first.
func (c *Coordinator) History(ctx context.Context, caseID uuid.UUID) ([]*model.CaseAssignment, error) {
	if _, err := c.cases.Get(ctx, caseID); err != nil {
		return nil, err
	}
	return c.ledger.ListByCase(ctx, caseID)
}

func (c *Coordinator) rank(ctx context.Context, cs *model.Case, open []*model.CaseAssignment) ([]Candidate, error) {
	roster, err := c.cache.Roster(ctx, c.professionals.ListCandidates)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}

	ids := make([]uuid.UUID, len(roster))
	for i, p := range roster {
		ids[i] = p.ID
	}
	load, err := c.ledger.OpenLoad(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load open assignment counts: %w", err)
	}

	now := c.clock.Now()
	candidates := make([]Candidate, len(roster))
	for i, p := range roster {
		candidates[i] = Candidate{
			Professional: p,
			OpenLoad:     load[p.ID],
			Eligibility:  c.filter.Check(cs, p, open, now),
		}
	}
	Rank(candidates)
	return candidates, nil
}

// Accept moves the professional's assignment to IN_PROGRESS.
func (c *Coordinator) Accept(ctx context.Context, professionalID, assignmentID uuid.UUID) (*model.CaseAssignment, error) {
	return c.transitionOwned(ctx, professionalID, assignmentID, model.AssignmentStatusInProgress, model.EventAssignmentAccepted)
}

// Complete closes the assignment. The completed event triggers payment.
func (c *Coordinator) Complete(ctx context.Context, professionalID, assignmentID uuid.UUID) (*model.CaseAssignment, error) {
	return c.transitionOwned(ctx, professionalID, assignmentID, model.AssignmentStatusCompleted, model.EventAssignmentCompleted)
}

// Decline closes the assignment and tries to hand the case to someone who
// has not declined it. next is nil when nobody eligible remains.
func (c *Coordinator) Decline(ctx context.Context, professionalID, assignmentID uuid.UUID) (declined, next *model.CaseAssignment, err error) {
	declined, err = c.transitionOwned(ctx, professionalID, assignmentID, model.AssignmentStatusDeclined, model.EventAssignmentDeclined)
	if err != nil {
		return nil, nil, err
	}

	history, err := c.ledger.ListByCase(ctx, declined.CaseID)
	if err != nil {
		return declined, nil, err
	}
	exclude := map[uuid.UUID]bool{professionalID: true}
	for _, a := range history {
		if a.Status == model.AssignmentStatusDeclined {
			exclude[a.ProfessionalID] = true
		}
	}

	next, err = c.assign(ctx, declined.CaseID, exclude)
	c.metrics.AssignmentAttempts.WithLabelValues(outcome(err)).Inc()
	switch {
	case err == nil:
		return declined, next, nil
	case errors.Is(err, apperrors.NoEligibleProfessionalErr), errors.Is(err, apperrors.AlreadyAssignedErr):
		c.log.Warn("case left unassigned after decline",
			"case_id", declined.CaseID.String(),
			"reason", err.Error(),
		)
		return declined, nil, nil
	default:
		return declined, nil, err
	}
}

func (c *Coordinator) transitionOwned(ctx context.Context, professionalID, assignmentID uuid.UUID, to model.AssignmentStatus, event string) (*model.CaseAssignment, error) {
	a, err := c.ledger.Get(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if a.ProfessionalID != professionalID {
		return nil, apperrors.Forbidden("assignment belongs to another professional")
	}

	updated, err := c.ledger.Transition(ctx, assignmentID, to)
	if err != nil {
		return nil, err
	}
	c.publish(ctx, event, updated)
	return updated, nil
}

// publish is best effort: the ledger row is already committed.
func (c *Coordinator) publish(ctx context.Context, eventType string, a *model.CaseAssignment) {
	if c.publisher == nil {
		return
	}
	evt := model.AssignmentEvent{
		Type:           eventType,
		AssignmentID:   a.ID,
		CaseID:         a.CaseID,
		ProfessionalID: a.ProfessionalID,
		Status:         a.Status,
		OccurredAt:     a.UpdatedAt,
	}
	if err := c.publisher.Publish(ctx, messaging.ChannelAssignmentEvents, evt); err != nil {
		c.log.Error(err, "failed to publish assignment event",
			"type", eventType,
			"assignment_id", a.ID.String(),
		)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "assigned"
	case errors.Is(err, apperrors.AlreadyAssignedErr):
		return "already_assigned"
	case errors.Is(err, apperrors.NoEligibleProfessionalErr):
		return "no_eligible"
	case errors.Is(err, apperrors.NotFoundErr):
		return "not_found"
	default:
		return "error"
	}
}
