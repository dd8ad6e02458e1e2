package intake

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/opinion-api/internal/handler"
	"github.com/jwalitptl/opinion-api/internal/model"
	apperrors "github.com/jwalitptl/opinion-api/pkg/errors"
)

type Service interface {
	Stage(ctx context.Context, payload []byte) (*model.TempSubmission, error)
	Discard(ctx context.Context, id uuid.UUID) error
	Confirm(ctx context.Context, id, customerID uuid.UUID) (*model.Case, error)
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts staging on public and confirmation on operator.
func (h *Handler) RegisterRoutes(public, operator *gin.RouterGroup) {
	public.POST("/intake", h.Stage)
	public.DELETE("/intake/:id", h.Discard)
	operator.POST("/intake/:id/confirm", h.Confirm)
}

type StageResponse struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type ConfirmRequest struct {
	CustomerID uuid.UUID `json:"customer_id" binding:"required"`
}

func (h *Handler) Stage(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, handler.NewErrorResponse("intake payload too large"))
			return
		}
		handler.Error(c, apperrors.Validation("failed to read intake payload", err))
		return
	}

	sub, err := h.svc.Stage(c.Request.Context(), payload)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(StageResponse{
		SubmissionID: sub.ID,
		ExpiresAt:    sub.ExpiresAt,
	}))
}

func (h *Handler) Discard(c *gin.Context) {
	id, err := handler.ParamUUID(c, "id")
	if err != nil {
		handler.Error(c, err)
		return
	}
	if err := h.svc.Discard(c.Request.Context(), id); err != nil {
		handler.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Confirm(c *gin.Context) {
	id, err := handler.ParamUUID(c, "id")
	if err != nil {
		handler.Error(c, err)
		return
	}

	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Error(c, apperrors.Validation("customer_id is required", err))
		return
	}

	cs, err := h.svc.Confirm(c.Request.Context(), id, req.CustomerID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(cs))
}
