// Package intake holds unauthenticated case submissions until they are
// confirmed into a Case or expire.
package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/opinion-api/internal/model"
	"github.com/jwalitptl/opinion-api/internal/repository"
	"github.com/jwalitptl/opinion-api/pkg/clock"
	apperrors "github.com/jwalitptl/opinion-api/pkg/errors"
	"github.com/jwalitptl/opinion-api/pkg/logger"
	"github.com/jwalitptl/opinion-api/pkg/metrics"
	"github.com/jwalitptl/opinion-api/pkg/validator"
)

const DefaultTTL = 24 * time.Hour

type Config struct {
	TTL time.Duration
	// MaxPayloadBytes rejects larger payloads. Zero means unlimited.
	MaxPayloadBytes int64
}

type Staging struct {
	cfg         Config
	submissions repository.SubmissionRepository
	validator   validator.Validator
	clock       clock.Clock
	log         *logger.Logger
	metrics     *metrics.Metrics
}

func NewStaging(
	cfg Config,
	submissions repository.SubmissionRepository,
	v validator.Validator,
	clk clock.Clock,
	log *logger.Logger,
	m *metrics.Metrics,
) *Staging {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Staging{
		cfg:         cfg,
		submissions: submissions,
		validator:   v,
		clock:       clk,
		log:         log,
		metrics:     m,
	}
}

// Stage stores an opaque payload and returns its id and expiry.
func (s *Staging) Stage(ctx context.Context, payload []byte) (*model.TempSubmission, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, apperrors.Validation("payload must not be empty", nil)
	}
	if s.cfg.MaxPayloadBytes > 0 && int64(len(payload)) > s.cfg.MaxPayloadBytes {
		return nil, apperrors.Validation(fmt.Sprintf("payload exceeds %d bytes", s.cfg.MaxPayloadBytes), nil)
	}

	now := s.clock.Now()
	sub := &model.TempSubmission{
		ID:        uuid.New(),
		Payload:   append([]byte(nil), payload...),
		ExpiresAt: now.Add(s.cfg.TTL),
		CreatedAt: now,
	}
	if err := s.submissions.Create(ctx, sub); err != nil {
		return nil, err
	}

	s.metrics.IntakeEvents.WithLabelValues("staged").Inc()
	return sub, nil
}

// Materialize returns the exact payload that was staged.
func (s *Staging) Materialize(ctx context.Context, id uuid.UUID) ([]byte, error) {
	sub, err := s.submissions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Expired(s.clock.Now()) {
		return nil, apperrors.ExpiredSubmission()
	}
	return sub.Payload, nil
}

func (s *Staging) Discard(ctx context.Context, id uuid.UUID) error {
	if err := s.submissions.Delete(ctx, id); err != nil {
		return err
	}
	s.metrics.IntakeEvents.WithLabelValues("discarded").Inc()
	return nil
}

// Confirm turns a staged intake into a Case owned by customerID and
// consumes the submission. Of two concurrent confirmations only one creates
// a case; the other sees NotFound.
func (s *Staging) Confirm(ctx context.Context, id, customerID uuid.UUID) (*model.Case, error) {
	if customerID == uuid.Nil {
		return nil, apperrors.Validation("customer_id is required", nil)
	}

	payload, err := s.Materialize(ctx, id)
	if err != nil {
		return nil, err
	}

	var in model.CaseIntake
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return nil, apperrors.Validation("submission is not a valid case intake", err)
	}
	if err := s.validator.Validate(in); err != nil {
		return nil, apperrors.Validation(err.Error(), nil)
	}

	now := s.clock.Now()
	c := &model.Case{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		CaseNumber:      caseNumber(now),
		CustomerID:      customerID,
		PatientName:     strings.TrimSpace(in.PatientName),
		DateOfBirth:     in.DateOfBirth,
		Gender:          in.Gender,
		Description:     in.Description,
		ConsentAccepted: in.ConsentAccepted,
	}
	if d := model.Subspecialty(in.DiseaseType).Normalize(); d != "" {
		c.DiseaseType = &d
	}

	if err := s.submissions.Consume(ctx, id, now, c); err != nil {
		if !errors.Is(err, apperrors.NotFoundErr) && !errors.Is(err, apperrors.ExpiredSubmissionErr) {
			s.log.Error(err, "failed to confirm submission", "submission_id", id.String())
		}
		return nil, err
	}

	s.metrics.IntakeEvents.WithLabelValues("confirmed").Inc()
	s.log.Info("case created from intake",
		"case_id", c.ID.String(),
		"case_number", c.CaseNumber,
	)
	return c, nil
}

// Sweep deletes every submission whose expiry has passed.
func (s *Staging) Sweep(ctx context.Context) (int64, error) {
	n, err := s.submissions.DeleteExpiredBefore(ctx, s.clock.Now())
	if err != nil {
		s.metrics.SweepFailures.WithLabelValues("intake").Inc()
		return 0, err
	}
	s.metrics.SweepRemoved.WithLabelValues("intake").Add(float64(n))
	return n, nil
}

// caseNumber is date-prefixed and carries enough randomness to make a
// collision on the unique index practically impossible.
func caseNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	return fmt.Sprintf("SO-%s-%s", now.Format("20060102"), suffix)
}
