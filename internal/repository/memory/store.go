// Package memory is a process-local store. It gives the same atomicity
// guarantees as the postgres store by serialising every write behind one
// mutex, and backs tests and the "memory" store driver.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/opinion-api/internal/model"
	"github.com/jwalitptl/opinion-api/internal/repository"
	apperrors "github.com/jwalitptl/opinion-api/pkg/errors"
)

type Store struct {
	mu            sync.RWMutex
	cases         map[uuid.UUID]*model.Case
	professionals map[uuid.UUID]*model.MedicalProfessional
	assignments   map[uuid.UUID]*model.CaseAssignment
	sessions      map[string]*model.ProfessionalSession
	submissions   map[uuid.UUID]*model.TempSubmission
}

func NewStore() *Store {
	return &Store{
		cases:         make(map[uuid.UUID]*model.Case),
		professionals: make(map[uuid.UUID]*model.MedicalProfessional),
		assignments:   make(map[uuid.UUID]*model.CaseAssignment),
		sessions:      make(map[string]*model.ProfessionalSession),
		submissions:   make(map[uuid.UUID]*model.TempSubmission),
	}
}

// Cases, Professionals, Assignments, Sessions and Submissions expose the
// store through the repository interfaces.
func (s *Store) Cases() repository.CaseRepository                 { return caseRepo{s} }
func (s *Store) Professionals() repository.ProfessionalRepository { return professionalRepo{s} }
func (s *Store) Assignments() repository.AssignmentRepository     { return assignmentRepo{s} }
func (s *Store) Sessions() repository.SessionRepository           { return sessionRepo{s} }
func (s *Store) Submissions() repository.SubmissionRepository     { return submissionRepo{s} }

// PutProfessional inserts or replaces a professional. Seeding only.
func (s *Store) PutProfessional(p *model.MedicalProfessional) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.professionals[p.ID] = &cp
}

// PutCase inserts or replaces a case without validation. Seeding only.
func (s *Store) PutCase(c *model.Case) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.cases[c.ID] = &cp
}

type caseRepo struct{ s *Store }

func (r caseRepo) Create(ctx context.Context, c *model.Case) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.cases {
		if existing.CaseNumber == c.CaseNumber {
			return apperrors.Conflict("case number already exists")
		}
	}
	cp := *c
	r.s.cases[c.ID] = &cp
	return nil
}

func (r caseRepo) Get(ctx context.Context, id uuid.UUID) (*model.Case, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.cases[id]
	if !ok {
		return nil, apperrors.NotFound("case", nil)
	}
	cp := *c
	return &cp, nil
}

type professionalRepo struct{ s *Store }

func (r professionalRepo) Get(ctx context.Context, id uuid.UUID) (*model.MedicalProfessional, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.professionals[id]
	if !ok {
		return nil, apperrors.NotFound("professional", nil)
	}
	cp := *p
	return &cp, nil
}

func (r professionalRepo) GetByEmail(ctx context.Context, email string) (*model.MedicalProfessional, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.professionals {
		if strings.EqualFold(p.Email, email) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("professional", nil)
}

func (r professionalRepo) ListCandidates(ctx context.Context) ([]*model.MedicalProfessional, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*model.MedicalProfessional, 0, len(r.s.professionals))
	for _, p := range r.s.professionals {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

type assignmentRepo struct{ s *Store }

func (r assignmentRepo) Create(ctx context.Context, a *model.CaseAssignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.assignments {
		if existing.CaseID == a.CaseID && existing.Status.Open() {
			return apperrors.Conflict("case already has an open assignment")
		}
	}
	cp := *a
	r.s.assignments[a.ID] = &cp
	return nil
}

func (r assignmentRepo) Get(ctx context.Context, id uuid.UUID) (*model.CaseAssignment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.assignments[id]
	if !ok {
		return nil, apperrors.NotFound("assignment", nil)
	}
	cp := *a
	return &cp, nil
}

func (r assignmentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.AssignmentStatus, completedAt *time.Time, updatedAt time.Time) (*model.CaseAssignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assignments[id]
	if !ok {
		return nil, apperrors.NotFound("assignment", nil)
	}
	if a.Status != from {
		return nil, apperrors.Conflict("assignment status changed concurrently")
	}
	a.Status = to
	a.CompletedAt = completedAt
	a.UpdatedAt = updatedAt
	cp := *a
	return &cp, nil
}

func (r assignmentRepo) GetOpenByCase(ctx context.Context, caseID uuid.UUID) (*model.CaseAssignment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, a := range r.s.assignments {
		if a.CaseID == caseID && a.Status.Open() {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r assignmentRepo) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*model.CaseAssignment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.CaseAssignment
	for _, a := range r.s.assignments {
		if a.CaseID == caseID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignedAt.Before(out[j].AssignedAt) })
	return out, nil
}

func (r assignmentRepo) CountOpenByProfessional(ctx context.Context, professionalIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	want := make(map[uuid.UUID]bool, len(professionalIDs))
	for _, id := range professionalIDs {
		want[id] = true
	}
	counts := make(map[uuid.UUID]int)
	for _, a := range r.s.assignments {
		if want[a.ProfessionalID] && a.Status.Open() {
			counts[a.ProfessionalID]++
		}
	}
	return counts, nil
}

type sessionRepo struct{ s *Store }

func (r sessionRepo) Create(ctx context.Context, sess *model.ProfessionalSession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sessions[sess.Token]; ok {
		return apperrors.Conflict("session token already exists")
	}
	cp := *sess
	r.s.sessions[sess.Token] = &cp
	return nil
}

func (r sessionRepo) GetByToken(ctx context.Context, token string) (*model.ProfessionalSession, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sess, ok := r.s.sessions[token]
	if !ok {
		return nil, apperrors.NotFound("session", nil)
	}
	cp := *sess
	return &cp, nil
}

func (r sessionRepo) UpdateLocked(ctx context.Context, token string, fn func(*model.ProfessionalSession) error) (*model.ProfessionalSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[token]
	if !ok {
		return nil, apperrors.NotFound("session", nil)
	}
	cp := *sess
	if err := fn(&cp); err != nil {
		err, keep := repository.SplitKeepChanges(err)
		if !keep {
			return nil, err
		}
		*sess = cp
		out := cp
		return &out, err
	}
	*sess = cp
	out := cp
	return &out, nil
}

func (r sessionRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for token, sess := range r.s.sessions {
		if sess.ExpiresAt.Before(cutoff) || (sess.RevokedAt != nil && sess.RevokedAt.Before(cutoff)) {
			delete(r.s.sessions, token)
			n++
		}
	}
	return n, nil
}

type submissionRepo struct{ s *Store }

func (r submissionRepo) Create(ctx context.Context, sub *model.TempSubmission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *sub
	cp.Payload = append([]byte(nil), sub.Payload...)
	r.s.submissions[sub.ID] = &cp
	return nil
}

func (r submissionRepo) Get(ctx context.Context, id uuid.UUID) (*model.TempSubmission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sub, ok := r.s.submissions[id]
	if !ok {
		return nil, apperrors.NotFound("submission", nil)
	}
	cp := *sub
	cp.Payload = append([]byte(nil), sub.Payload...)
	return &cp, nil
}

func (r submissionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.submissions[id]; !ok {
		return apperrors.NotFound("submission", nil)
	}
	delete(r.s.submissions, id)
	return nil
}

func (r submissionRepo) Consume(ctx context.Context, id uuid.UUID, now time.Time, c *model.Case) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.submissions[id]
	if !ok {
		return apperrors.NotFound("submission", nil)
	}
	if sub.Expired(now) {
		return apperrors.ExpiredSubmission()
	}
	for _, existing := range r.s.cases {
		if existing.CaseNumber == c.CaseNumber {
			return apperrors.Conflict("case number already exists")
		}
	}
	cp := *c
	r.s.cases[c.ID] = &cp
	delete(r.s.submissions, id)
	return nil
}

func (r submissionRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, sub := range r.s.submissions {
		if !cutoff.Before(sub.ExpiresAt) {
			delete(r.s.submissions, id)
			n++
		}
	}
	return n, nil
}
