package middleware

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/opinion-api/internal/handler"
	apperrors "github.com/jwalitptl/opinion-api/pkg/errors"
)

const HeaderOperatorKey = "X-Operator-Key"

// Authorizer resolves a bearer token to a verified professional.
type Authorizer interface {
	Authorize(ctx context.Context, bearer string) (uuid.UUID, error)
}

type AuthMiddleware struct {
	authorizer Authorizer
}

func NewAuthMiddleware(authorizer Authorizer) *AuthMiddleware {
	return &AuthMiddleware{authorizer: authorizer}
}

// Bearer requires an Authorization header and stores its token. It does not
// check the session; pending sessions use it to reach verification.
func (m *AuthMiddleware) Bearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerFrom(c)
		if !ok {
			handler.Error(c, apperrors.Unauthenticated(nil))
			return
		}
		c.Set(handler.ContextBearer, token)
		c.Next()
	}
}

// RequireSession admits only live, two-factor verified sessions.
func (m *AuthMiddleware) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerFrom(c)
		if !ok {
			handler.Error(c, apperrors.Unauthenticated(nil))
			return
		}

		professionalID, err := m.authorizer.Authorize(c.Request.Context(), token)
		if err != nil {
			handler.Error(c, err)
			return
		}

		c.Set(handler.ContextBearer, token)
		c.Set(handler.ContextProfessionalID, professionalID)
		c.Next()
	}
}

// OperatorKey guards operator routes with a static key. An empty key
// disables the routes.
func OperatorKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(HeaderOperatorKey)
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			handler.Error(c, apperrors.Forbidden("operator key required"))
			return
		}
		c.Next()
	}
}

func bearerFrom(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
