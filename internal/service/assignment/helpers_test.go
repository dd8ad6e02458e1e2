package assignment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	"github.com/jwalitptl/opinion-api/internal/model"
	"github.com/jwalitptl/opinion-api/internal/repository"
	"github.com/jwalitptl/opinion-api/internal/repository/memory"
	"github.com/jwalitptl/opinion-api/internal/service/eligibility"
	"github.com/jwalitptl/opinion-api/pkg/clock"
	"github.com/jwalitptl/opinion-api/pkg/logger"
	"github.com/jwalitptl/opinion-api/pkg/messaging"
	"github.com/jwalitptl/opinion-api/pkg/metrics"
)

var start = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store  *memory.Store
	clock  *clock.ManagedClock
	broker *messaging.InProcessBroker
	ledger *Ledger
	coord  *Coordinator
}

func newFixture(t *testing.T, assignments repository.AssignmentRepository, maxAttempts int) *fixture {
	t.Helper()

	store := memory.NewStore()
	if assignments == nil {
		assignments = store.Assignments()
	}
	clk := clock.NewManaged(start)
	broker := messaging.NewInProcessBroker(zerolog.Nop())
	m := metrics.NewNop()
	ledger := NewLedger(assignments, clk, m)
	coord := NewCoordinator(
		Config{MaxAttempts: maxAttempts},
		ledger,
		store.Cases(),
		store.Professionals(),
		eligibility.NewFilter(nil),
		NewCandidateCache(0),
		broker,
		clk,
		logger.Nop(),
		m,
	)
	t.Cleanup(func() { broker.Close() })

	return &fixture{store: store, clock: clk, broker: broker, ledger: ledger, coord: coord}
}

type proOpt func(*model.MedicalProfessional)

func withScore(s float64) proOpt { return func(p *model.MedicalProfessional) { p.Score = &s } }
func unscored() proOpt         { return func(p *model.MedicalProfessional) { p.Score = nil } }
func unvetted() proOpt         { return func(p *model.MedicalProfessional) { p.Vetted = false } }
func withLevel(l model.Level) proOpt {
	return func(p *model.MedicalProfessional) { p.Level = l }
}
func withSubspecialty(s string) proOpt {
	return func(p *model.MedicalProfessional) { p.Subspecialty = model.Subspecialty(s) }
}

func (f *fixture) addPro(opts ...proOpt) *model.MedicalProfessional {
	score := 50.0
	p := &model.MedicalProfessional{
		Base:            model.Base{ID: uuid.New(), CreatedAt: start, UpdatedAt: start},
		Email:           uuid.NewString() + "@example.com",
		Vetted:          true,
		LicenseExpiry:   start.AddDate(2, 0, 0),
		Level:           model.LevelSenior,
		Score:           &score,
		Subspecialty:    "oncology",
		TwoFactorMethod: model.TwoFactorEmail,
	}
	for _, opt := range opts {
		opt(p)
	}
	f.store.PutProfessional(p)
	return p
}

func (f *fixture) addCase(diseaseType string) *model.Case {
	c := &model.Case{
		Base:            model.Base{ID: uuid.New(), CreatedAt: start, UpdatedAt: start},
		CaseNumber:      "CASE-" + uuid.NewString()[:8],
		CustomerID:      uuid.New(),
		PatientName:     "Jane Roe",
		DateOfBirth:     time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		ConsentAccepted: true,
	}
	if diseaseType != "" {
		d := model.Subspecialty(diseaseType)
		c.DiseaseType = &d
	}
	f.store.PutCase(c)
	return c
}

type mockAssignmentRepo struct {
	mock.Mock
}

func (m *mockAssignmentRepo) Create(ctx context.Context, a *model.CaseAssignment) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *mockAssignmentRepo) Get(ctx context.Context, id uuid.UUID) (*model.CaseAssignment, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(*model.CaseAssignment)
	return a, args.Error(1)
}

func (m *mockAssignmentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.AssignmentStatus, completedAt *time.Time, updatedAt time.Time) (*model.CaseAssignment, error) {
	args := m.Called(ctx, id, from, to, completedAt, updatedAt)
	a, _ := args.Get(0).(*model.CaseAssignment)
	return a, args.Error(1)
}

func (m *mockAssignmentRepo) GetOpenByCase(ctx context.Context, caseID uuid.UUID) (*model.CaseAssignment, error) {
	args := m.Called(ctx, caseID)
	a, _ := args.Get(0).(*model.CaseAssignment)
	return a, args.Error(1)
}

func (m *mockAssignmentRepo) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*model.CaseAssignment, error) {
	args := m.Called(ctx, caseID)
	out, _ := args.Get(0).([]*model.CaseAssignment)
	return out, args.Error(1)
}

func (m *mockAssignmentRepo) CountOpenByProfessional(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error) {
	args := m.Called(ctx, ids)
	out, _ := args.Get(0).(map[uuid.UUID]int)
	return out, args.Error(1)
}

func createdFor(id uuid.UUID) interface{} {
	return mock.MatchedBy(func(a *model.CaseAssignment) bool { return a.ProfessionalID == id })
}
