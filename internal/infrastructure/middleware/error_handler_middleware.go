package middleware

import (
	"net/http"

	"edgestream/pkg/errors"
	"edgestream/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const internalErrorMessage = "Internal server error"

// ErrorHandlerMiddleware renders the last error attached with c.Error. AppErrors keep
// their status, code and headers; anything else becomes a 500.
func ErrorHandlerMiddleware(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		requestID := logger.RequestID(c.Request.Context())

		if appErr := errors.GetAppError(err); appErr != nil {
			fields := []interface{}{
				"code", appErr.Code,
				"message", appErr.Message,
				"status", appErr.HTTPStatus,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"request_id", requestID,
			}
			if appErr.HTTPStatus >= http.StatusInternalServerError {
				log.Errorw("application error", append(fields, "cause", appErr.Cause)...)
			} else {
				log.Debugw("request rejected", fields...)
			}
			writeAppError(c, appErr)
			return
		}

		log.Errorw("unhandled error",
			"error", err.Error(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"request_id", requestID,
		)
		writeAppError(c, errors.NewInternalError(internalErrorMessage))
	}
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Errorw("panic recovered",
					"error", rec,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
					"request_id", logger.RequestID(c.Request.Context()),
				)
				writeAppError(c, errors.NewInternalError(internalErrorMessage))
			}
		}()

		c.Next()
	}
}

// writeAppError renders the flat {error, message, details?} body, sets the error's
// headers and aborts the chain.
func writeAppError(c *gin.Context, appErr *errors.AppError) {
	for k, v := range appErr.Headers {
		c.Header(k, v)
	}

	body := gin.H{
		"error":   string(appErr.Code),
		"message": appErr.Message,
	}
	if len(appErr.Context) > 0 {
		body["details"] = appErr.Context
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus, body)
}
