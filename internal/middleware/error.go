package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/opinion-api/internal/handler"
	apperrors "github.com/jwalitptl/opinion-api/pkg/errors"
	"github.com/jwalitptl/opinion-api/pkg/logger"
)

// ErrorHandler renders the last error recorded on the context. Application
// errors keep their message; anything else becomes a generic 500.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		traceID := c.GetString(handler.ContextRequestID)
		err := c.Errors.Last().Err

		status := http.StatusInternalServerError
		message := "internal server error"
		code := apperrors.ErrInternal

		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			code = appErr.Code
			status = appErr.StatusCode()
			if status < http.StatusInternalServerError {
				message = appErr.Message
			}
		}

		event := log.ZL.Warn()
		if status >= http.StatusInternalServerError {
			event = log.ZL.Error()
		}
		event.
			Err(err).
			Str("trace_id", traceID).
			Str("path", c.Request.URL.Path).
			Str("method", c.Request.Method).
			Str("client_ip", c.ClientIP()).
			Int("status", status).
			Msg("Request error")

		if c.Writer.Written() {
			return
		}

		resp := handler.NewErrorResponse(message)
		resp.Code = int(code)
		resp.TraceID = traceID
		c.JSON(status, resp)
	}
}
