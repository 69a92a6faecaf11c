package http

import (
	"errors"
	"net/http"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/services"
	apperrors "edgestream/pkg/errors"

	"github.com/gin-gonic/gin"
)

// abortWithError attaches err for ErrorHandlerMiddleware and stops the chain.
func abortWithError(c *gin.Context, err error) {
	_ = c.Error(toAppError(err))
	c.Abort()
}

// toAppError maps domain errors onto the HTTP error taxonomy.
func toAppError(err error) *apperrors.AppError {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrQualityNotFound):
		return apperrors.NewNotFoundError("quality level")
	case errors.Is(err, domain.ErrRangeNotSatisfiable):
		return apperrors.NewRangeNotSatisfiableError(domain.SegmentSizeBytes)
	case errors.Is(err, domain.ErrInvalidRange),
		errors.Is(err, domain.ErrInvalidSegmentID),
		errors.Is(err, domain.ErrInvalidBandwidth),
		errors.Is(err, domain.ErrMissingEvents),
		errors.Is(err, services.ErrTooManyEvents):
		return apperrors.NewValidationError(err.Error())
	case errors.Is(err, domain.ErrInvalidToken):
		return apperrors.NewForbiddenError("Invalid token")
	default:
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "Internal server error", http.StatusInternalServerError)
	}
}
