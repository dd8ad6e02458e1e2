package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	assignmenthandler "github.com/jwalitptl/opinion-api/internal/handler/assignment"
	"github.com/jwalitptl/opinion-api/internal/handler/health"
	intakehandler "github.com/jwalitptl/opinion-api/internal/handler/intake"
	"github.com/jwalitptl/opinion-api/internal/handler/prometheus"
	sessionhandler "github.com/jwalitptl/opinion-api/internal/handler/session"
	"github.com/jwalitptl/opinion-api/internal/middleware"
	"github.com/jwalitptl/opinion-api/internal/model"
	"github.com/jwalitptl/opinion-api/internal/repository/memory"
	"github.com/jwalitptl/opinion-api/internal/service/assignment"
	"github.com/jwalitptl/opinion-api/internal/service/eligibility"
	"github.com/jwalitptl/opinion-api/internal/service/intake"
	"github.com/jwalitptl/opinion-api/internal/service/session"
	"github.com/jwalitptl/opinion-api/pkg/auth"
	"github.com/jwalitptl/opinion-api/pkg/clock"
	apperrors "github.com/jwalitptl/opinion-api/pkg/errors"
	"github.com/jwalitptl/opinion-api/pkg/logger"
	"github.com/jwalitptl/opinion-api/pkg/messaging"
	"github.com/jwalitptl/opinion-api/pkg/metrics"
	"github.com/jwalitptl/opinion-api/pkg/security"
	"github.com/jwalitptl/opinion-api/pkg/validator"
)

const (
	operatorKey = "operator-secret"
	password    = "correct horse battery"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type capturingSender struct {
	mu    sync.Mutex
	codes []string
}

func (s *capturingSender) Send(ctx context.Context, method model.TwoFactorMethod, destination, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = append(s.codes, code)
	return nil
}

func (s *capturingSender) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[len(s.codes)-1]
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Code    int             `json:"code"`
	TraceID string          `json:"trace_id"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	engine *gin.Engine
	store  *memory.Store
	sender *capturingSender
	pro    *model.MedicalProfessional
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	clk := clock.NewManaged(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))
	store := memory.NewStore()
	reg := promclient.NewRegistry()
	m := metrics.New("test", reg)
	log := logger.Nop()
	sender := &capturingSender{}

	hasher := security.NewBcryptHasher(bcrypt.MinCost)
	hash, err := hasher.Hash(password)
	require.NoError(t, err)

	score := 80.0
	pro := &model.MedicalProfessional{
		Base:            model.Base{ID: uuid.New()},
		Email:           "onc@example.com",
		Name:            "Dr. Onc",
		LicenseExpiry:   clk.Now().AddDate(1, 0, 0),
		Vetted:          true,
		Level:           model.LevelExpert,
		Score:           &score,
		Subspecialty:    "oncology",
		TwoFactorMethod: model.TwoFactorEmail,
		PasswordHash:    hash,
	}
	store.PutProfessional(pro)

	authority := session.NewAuthority(
		session.DefaultConfig(),
		store.Sessions(),
		store.Professionals(),
		session.NewPasswordCredentials(store.Professionals(), hasher),
		sender,
		auth.NewHMACSigner("0123456789abcdef0123456789abcdef", "opinion-test"),
		security.NewCodeHasher("code-key"),
		clk,
		log,
		m,
	)
	staging := intake.NewStaging(intake.Config{MaxPayloadBytes: 1 << 16},
		store.Submissions(), validator.New(), clk, log, m)
	ledger := assignment.NewLedger(store.Assignments(), clk, m)
	coordinator := assignment.NewCoordinator(
		assignment.Config{},
		ledger,
		store.Cases(),
		store.Professionals(),
		eligibility.NewFilter(nil),
		assignment.NewCandidateCache(0),
		messaging.NewInProcessBroker(zerolog.Nop()),
		clk,
		log,
		m,
	)

	r := NewRouter(
		middleware.NewAuthMiddleware(authority),
		Handlers{
			Session:    sessionhandler.NewHandler(authority),
			Intake:     intakehandler.NewHandler(staging),
			Assignment: assignmenthandler.NewHandler(coordinator),
			Health:     health.NewHandler(nil),
			Metrics:    prometheus.New("test", reg),
		},
		log,
		RouterConfig{
			RequestTimeout:  5 * time.Second,
			CORSConfig:      middleware.DefaultCORSConfig(),
			OperatorKey:     operatorKey,
			MaxRequestBytes: 1 << 20,
		},
	)
	r.Setup()

	return &testServer{engine: r.Engine(), store: store, sender: sender, pro: pro}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func operator() map[string]string {
	return map[string]string{middleware.HeaderOperatorKey: operatorKey}
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

const intakeJSON = `{
	"patient_name": "Ada Lovelace",
	"date_of_birth": "1980-01-02T00:00:00Z",
	"disease_type": "Oncology",
	"description": "second opinion on staging",
	"consent_accepted": true
}`

func TestEndToEndAssignmentFlow(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, http.MethodPost, "/api/v1/intake", intakeJSON, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var staged intakehandler.StageResponse
	require.NoError(t, json.Unmarshal(env.Data, &staged))
	require.NotEqual(t, uuid.Nil, staged.SubmissionID)

	confirmPath := "/api/v1/operator/intake/" + staged.SubmissionID.String() + "/confirm"
	w, _ = s.do(t, http.MethodPost, confirmPath, map[string]string{"customer_id": uuid.NewString()}, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.do(t, http.MethodPost, confirmPath, map[string]string{"customer_id": uuid.NewString()}, operator())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var cs model.Case
	require.NoError(t, json.Unmarshal(env.Data, &cs))
	require.NotNil(t, cs.DiseaseType)
	assert.Equal(t, model.Subspecialty("oncology"), *cs.DiseaseType)

	w, env = s.do(t, http.MethodPost, "/api/v1/operator/cases/"+cs.ID.String()+"/assignments", nil, operator())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var a model.CaseAssignment
	require.NoError(t, json.Unmarshal(env.Data, &a))
	assert.Equal(t, s.pro.ID, a.ProfessionalID)
	assert.Equal(t, model.AssignmentStatusAssigned, a.Status)

	w, env = s.do(t, http.MethodPost, "/api/v1/operator/cases/"+cs.ID.String()+"/assignments", nil, operator())
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, int(apperrors.ErrAlreadyAssigned), env.Code)

	acceptPath := "/api/v1/assignments/" + a.ID.String() + "/accept"
	w, _ = s.do(t, http.MethodPost, acceptPath, nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = s.do(t, http.MethodPost, "/api/v1/sessions",
		map[string]string{"email": s.pro.Email, "password": password}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var login sessionhandler.LoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &login))
	assert.True(t, login.TwoFactorRequired)

	// pending sessions cannot act on assignments
	w, _ = s.do(t, http.MethodPost, acceptPath, nil, bearer(login.Token))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = s.do(t, http.MethodPost, "/api/v1/sessions/verify",
		map[string]string{"code": s.sender.last()}, bearer(login.Token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = s.do(t, http.MethodPost, acceptPath, nil, bearer(login.Token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &a))
	assert.Equal(t, model.AssignmentStatusInProgress, a.Status)

	w, env = s.do(t, http.MethodPost, "/api/v1/assignments/"+a.ID.String()+"/complete", nil, bearer(login.Token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &a))
	assert.Equal(t, model.AssignmentStatusCompleted, a.Status)
	assert.NotNil(t, a.CompletedAt)

	w, env = s.do(t, http.MethodGet, "/api/v1/operator/cases/"+cs.ID.String()+"/assignments", nil, operator())
	require.Equal(t, http.StatusOK, w.Code)
	var history []model.CaseAssignment
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Len(t, history, 1)

	w, _ = s.do(t, http.MethodDelete, "/api/v1/sessions", nil, bearer(login.Token))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/assignments/"+a.ID.String()+"/complete", nil, bearer(login.Token))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer(t)

	t.Run("bad path id", func(t *testing.T) {
		w, env := s.do(t, http.MethodGet, "/api/v1/operator/cases/not-a-uuid/candidates", nil, operator())
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "error", env.Status)
		assert.Equal(t, int(apperrors.ErrValidation), env.Code)
		assert.NotEmpty(t, env.TraceID)
		assert.Equal(t, env.TraceID, w.Header().Get(middleware.HeaderXRequestID))
	})

	t.Run("unknown case", func(t *testing.T) {
		w, env := s.do(t, http.MethodPost, "/api/v1/operator/cases/"+uuid.NewString()+"/assignments", nil, operator())
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, int(apperrors.ErrNotFound), env.Code)
	})

	t.Run("empty intake", func(t *testing.T) {
		w, _ := s.do(t, http.MethodPost, "/api/v1/intake", "   ", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		w, env := s.do(t, http.MethodPost, "/api/v1/sessions",
			map[string]string{"email": s.pro.Email, "password": "nope"}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, int(apperrors.ErrInvalidCredentials), env.Code)
	})

	t.Run("verify without bearer", func(t *testing.T) {
		w, _ := s.do(t, http.MethodPost, "/api/v1/sessions/verify", map[string]string{"code": "123456"}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("discard unknown submission", func(t *testing.T) {
		w, _ := s.do(t, http.MethodDelete, "/api/v1/intake/"+uuid.NewString(), nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodGet, "/api/v1/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.0", w.Header().Get("X-API-Version"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w, _ = s.do(t, http.MethodGet, "/api/v1/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_http_requests_total")
}
