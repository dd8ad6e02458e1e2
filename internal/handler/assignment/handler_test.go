package assignment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/opinion-api/internal/handler"
	"github.com/jwalitptl/opinion-api/internal/middleware"
	"github.com/jwalitptl/opinion-api/internal/model"
	"github.com/jwalitptl/opinion-api/internal/service/assignment"
	apperrors "github.com/jwalitptl/opinion-api/pkg/errors"
	"github.com/jwalitptl/opinion-api/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockService struct {
	mock.Mock
}

func (m *mockService) Assign(ctx context.Context, caseID uuid.UUID) (*model.CaseAssignment, error) {
	args := m.Called(ctx, caseID)
	a, _ := args.Get(0).(*model.CaseAssignment)
	return a, args.Error(1)
}

func (m *mockService) Candidates(ctx context.Context, caseID uuid.UUID) ([]assignment.Candidate, error) {
	args := m.Called(ctx, caseID)
	c, _ := args.Get(0).([]assignment.Candidate)
	return c, args.Error(1)
}

func (m *mockService) History(ctx context.Context, caseID uuid.UUID) ([]*model.CaseAssignment, error) {
	args := m.Called(ctx, caseID)
	h, _ := args.Get(0).([]*model.CaseAssignment)
	return h, args.Error(1)
}

func (m *mockService) Accept(ctx context.Context, professionalID, assignmentID uuid.UUID) (*model.CaseAssignment, error) {
	args := m.Called(ctx, professionalID, assignmentID)
	a, _ := args.Get(0).(*model.CaseAssignment)
	return a, args.Error(1)
}

func (m *mockService) Complete(ctx context.Context, professionalID, assignmentID uuid.UUID) (*model.CaseAssignment, error) {
	args := m.Called(ctx, professionalID, assignmentID)
	a, _ := args.Get(0).(*model.CaseAssignment)
	return a, args.Error(1)
}

func (m *mockService) Decline(ctx context.Context, professionalID, assignmentID uuid.UUID) (*model.CaseAssignment, *model.CaseAssignment, error) {
	args := m.Called(ctx, professionalID, assignmentID)
	declined, _ := args.Get(0).(*model.CaseAssignment)
	next, _ := args.Get(1).(*model.CaseAssignment)
	return declined, next, args.Error(2)
}

// newEngine mounts the professional routes with proID already authenticated.
func newEngine(svc Service, proID uuid.UUID) *gin.Engine {
	e := gin.New()
	e.Use(middleware.ErrorHandler(logger.Nop()))
	g := e.Group("", func(c *gin.Context) {
		c.Set(handler.ContextProfessionalID, proID)
		c.Next()
	})
	h := NewHandler(svc)
	h.RegisterAssignmentRoutes(g)
	h.RegisterCaseRoutes(g)
	return e
}

func TestDecline(t *testing.T) {
	proID, assignmentID := uuid.New(), uuid.New()

	t.Run("reassigned", func(t *testing.T) {
		svc := new(mockService)
		declined := &model.CaseAssignment{ID: assignmentID, ProfessionalID: proID, Status: model.AssignmentStatusDeclined}
		next := &model.CaseAssignment{ID: uuid.New(), ProfessionalID: uuid.New(), Status: model.AssignmentStatusAssigned}
		svc.On("Decline", mock.Anything, proID, assignmentID).Return(declined, next, nil).Once()

		w := httptest.NewRecorder()
		newEngine(svc, proID).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/assignments/"+assignmentID.String()+"/decline", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Data DeclineResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, model.AssignmentStatusDeclined, body.Data.Declined.Status)
		require.NotNil(t, body.Data.Next)
		assert.Equal(t, next.ID, body.Data.Next.ID)
		svc.AssertExpectations(t)
	})

	t.Run("nobody left", func(t *testing.T) {
		svc := new(mockService)
		declined := &model.CaseAssignment{ID: assignmentID, Status: model.AssignmentStatusDeclined}
		svc.On("Decline", mock.Anything, proID, assignmentID).Return(declined, nil, nil).Once()

		w := httptest.NewRecorder()
		newEngine(svc, proID).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/assignments/"+assignmentID.String()+"/decline", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"next":null`)
	})

	t.Run("not the owner", func(t *testing.T) {
		svc := new(mockService)
		svc.On("Decline", mock.Anything, proID, assignmentID).Return(nil, nil, apperrors.Forbidden("not your assignment")).Once()

		w := httptest.NewRecorder()
		newEngine(svc, proID).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/assignments/"+assignmentID.String()+"/decline", nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestTransitionErrors(t *testing.T) {
	proID, assignmentID := uuid.New(), uuid.New()
	svc := new(mockService)
	svc.On("Complete", mock.Anything, proID, assignmentID).
		Return(nil, apperrors.InvalidTransition("ASSIGNED", "COMPLETED")).Once()

	w := httptest.NewRecorder()
	newEngine(svc, proID).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/assignments/"+assignmentID.String()+"/complete", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), fmt.Sprintf(`"code":%d`, apperrors.ErrInvalidTransition))
	svc.AssertExpectations(t)
}

func TestAssignNoEligible(t *testing.T) {
	caseID := uuid.New()
	svc := new(mockService)
	svc.On("Assign", mock.Anything, caseID).Return(nil, apperrors.NoEligibleProfessional(nil)).Once()

	w := httptest.NewRecorder()
	newEngine(svc, uuid.New()).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cases/"+caseID.String()+"/assignments", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	svc.AssertExpectations(t)
}
