package middleware

import (
	"errors"
	"net/http"
	"time"

	"edgestream/pkg/logger"
	"edgestream/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	RequestIDHeader = "X-Request-ID"
	sessionIDHeader = "X-Session-ID"
)

// RequestIDMiddleware propagates the caller's X-Request-ID or assigns a fresh one,
// storing it on the request context for the loggers.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := utils.SanitizeHeader(c.GetHeader(RequestIDHeader), 64)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// AccessLogMiddleware writes one line per request through the context logger.
// Requests carrying X-Session-ID are tagged with the session.
func AccessLogMiddleware(cl *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		if id := utils.SanitizeHeader(c.GetHeader(sessionIDHeader), 256); id != "" {
			c.Request = c.Request.WithContext(logger.WithSessionID(c.Request.Context(), id))
		}

		c.Next()

		ctx := c.Request.Context()
		status := c.Writer.Status()
		if status >= 500 {
			err := errors.New(http.StatusText(status))
			if last := c.Errors.Last(); last != nil {
				err = last.Err
			}
			cl.LogError(ctx, err, "http_request_failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Int("status_code", status),
			)
			return
		}
		cl.LogRequest(ctx, c.Request.Method, c.Request.URL.Path, status, time.Since(start).Milliseconds())
	}
}
