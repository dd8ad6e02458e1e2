package session

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/opinion-api/internal/handler"
	"github.com/jwalitptl/opinion-api/internal/model"
	"github.com/jwalitptl/opinion-api/internal/service/session"
	apperrors "github.com/jwalitptl/opinion-api/pkg/errors"
)

// Service is the part of the session authority the HTTP layer drives.
type Service interface {
	LoginByEmail(ctx context.Context, email, proof string) (*session.Issued, error)
	VerifyTwoFactor(ctx context.Context, bearer, code string) (*model.ProfessionalSession, error)
	ResendCode(ctx context.Context, bearer string) error
	Revoke(ctx context.Context, bearer string) error
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts login publicly and the rest behind bearer, which only
// has to extract the token.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, bearer gin.HandlerFunc) {
	sessions := r.Group("/sessions")
	{
		sessions.POST("", h.Login)
		sessions.POST("/verify", bearer, h.Verify)
		sessions.POST("/resend", bearer, h.Resend)
		sessions.DELETE("", bearer, h.Revoke)
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token             string    `json:"token"`
	SessionID         string    `json:"session_id"`
	TwoFactorRequired bool      `json:"two_factor_required"`
	ExpiresAt         time.Time `json:"expires_at"`
}

type VerifyRequest struct {
	Code string `json:"code" binding:"required,numeric"`
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Error(c, apperrors.Validation("email and password are required", err))
		return
	}

	issued, err := h.svc.LoginByEmail(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(LoginResponse{
		Token:             issued.Token,
		SessionID:         issued.Session.ID.String(),
		TwoFactorRequired: !issued.Session.TwoFactorVerified,
		ExpiresAt:         issued.Session.ExpiresAt,
	}))
}

func (h *Handler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Error(c, apperrors.Validation("a numeric code is required", err))
		return
	}

	s, err := h.svc.VerifyTwoFactor(c.Request.Context(), handler.BearerToken(c), req.Code)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(s))
}

func (h *Handler) Resend(c *gin.Context) {
	if err := h.svc.ResendCode(c.Request.Context(), handler.BearerToken(c)); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusAccepted, handler.NewSuccessResponse(gin.H{"sent": true}))
}

func (h *Handler) Revoke(c *gin.Context) {
	if err := h.svc.Revoke(c.Request.Context(), handler.BearerToken(c)); err != nil {
		handler.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
