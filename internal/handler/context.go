package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/jwalitptl/opinion-api/pkg/errors"
)

// Keys set on the gin context by middleware.
const (
	ContextRequestID      = "request_id"
	ContextBearer         = "bearer_token"
	ContextProfessionalID = "professional_id"
)

func BearerToken(c *gin.Context) string {
	return c.GetString(ContextBearer)
}

// ProfessionalID is set only behind the verified-session middleware.
func ProfessionalID(c *gin.Context) uuid.UUID {
	v, ok := c.Get(ContextProfessionalID)
	if !ok {
		return uuid.Nil
	}
	id, _ := v.(uuid.UUID)
	return id
}

// ParamUUID parses a path parameter, failing with a validation error.
func ParamUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperrors.Validation("invalid "+name, err)
	}
	return id, nil
}
