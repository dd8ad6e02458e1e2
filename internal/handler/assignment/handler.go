package assignment

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/opinion-api/internal/handler"
	"github.com/jwalitptl/opinion-api/internal/model"
	"github.com/jwalitptl/opinion-api/internal/service/assignment"
)

type Service interface {
	Assign(ctx context.Context, caseID uuid.UUID) (*model.CaseAssignment, error)
	Candidates(ctx context.Context, caseID uuid.UUID) ([]assignment.Candidate, error)
	History(ctx context.Context, caseID uuid.UUID) ([]*model.CaseAssignment, error)
	Accept(ctx context.Context, professionalID, assignmentID uuid.UUID) (*model.CaseAssignment, error)
	Complete(ctx context.Context, professionalID, assignmentID uuid.UUID) (*model.CaseAssignment, error)
	Decline(ctx context.Context, professionalID, assignmentID uuid.UUID) (declined, next *model.CaseAssignment, err error)
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterCaseRoutes mounts the operator view of a case's assignments.
func (h *Handler) RegisterCaseRoutes(r *gin.RouterGroup) {
	cases := r.Group("/cases/:id")
	{
		cases.POST("/assignments", h.Assign)
		cases.GET("/assignments", h.History)
		cases.GET("/candidates", h.Candidates)
	}
}

// RegisterAssignmentRoutes mounts the actions a verified professional takes
// on their own assignments.
func (h *Handler) RegisterAssignmentRoutes(r *gin.RouterGroup) {
	assignments := r.Group("/assignments/:id")
	{
		assignments.POST("/accept", h.Accept)
		assignments.POST("/complete", h.Complete)
		assignments.POST("/decline", h.Decline)
	}
}

type DeclineResponse struct {
	Declined *model.CaseAssignment `json:"declined"`
	Next     *model.CaseAssignment `json:"next"`
}

func (h *Handler) Assign(c *gin.Context) {
	caseID, err := handler.ParamUUID(c, "id")
	if err != nil {
		handler.Error(c, err)
		return
	}

	a, err := h.svc.Assign(c.Request.Context(), caseID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(a))
}

func (h *Handler) History(c *gin.Context) {
	caseID, err := handler.ParamUUID(c, "id")
	if err != nil {
		handler.Error(c, err)
		return
	}

	list, err := h.svc.History(c.Request.Context(), caseID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(list))
}

func (h *Handler) Candidates(c *gin.Context) {
	caseID, err := handler.ParamUUID(c, "id")
	if err != nil {
		handler.Error(c, err)
		return
	}

	candidates, err := h.svc.Candidates(c.Request.Context(), caseID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(candidates))
}

func (h *Handler) Accept(c *gin.Context) {
	h.transition(c, h.svc.Accept)
}

func (h *Handler) Complete(c *gin.Context) {
	h.transition(c, h.svc.Complete)
}

func (h *Handler) transition(c *gin.Context, fn func(ctx context.Context, professionalID, assignmentID uuid.UUID) (*model.CaseAssignment, error)) {
	id, err := handler.ParamUUID(c, "id")
	if err != nil {
		handler.Error(c, err)
		return
	}

	a, err := fn(c.Request.Context(), handler.ProfessionalID(c), id)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(a))
}

func (h *Handler) Decline(c *gin.Context) {
	id, err := handler.ParamUUID(c, "id")
	if err != nil {
		handler.Error(c, err)
		return
	}

	declined, next, err := h.svc.Decline(c.Request.Context(), handler.ProfessionalID(c), id)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(DeclineResponse{Declined: declined, Next: next}))
}
