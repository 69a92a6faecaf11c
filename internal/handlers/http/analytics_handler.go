package http

import (
	"net/http"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/ports"
	apperrors "edgestream/pkg/errors"
	"edgestream/pkg/utils"
	"edgestream/pkg/validation"

	"github.com/gin-gonic/gin"
)

type AnalyticsHandler struct {
	analytics ports.AnalyticsService
}

func NewAnalyticsHandler(analytics ports.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{
		analytics: analytics,
	}
}

func (h *AnalyticsHandler) SetupRoutes(router gin.IRouter) {
	router.POST("/analytics/events", h.PostEvents)
}

type AnalyticsRequest struct {
	SessionID string                  `json:"sessionId"`
	Events    []domain.AnalyticsEvent `json:"events"`
}

func (h *AnalyticsHandler) PostEvents(c *gin.Context) {
	var req AnalyticsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, apperrors.NewValidationError("invalid request body"))
		return
	}

	sessionID := utils.FirstNonEmpty(
		utils.SanitizeHeader(c.GetHeader(HeaderSessionID), 256),
		req.SessionID,
	)
	if err := validation.ValidateSessionID(sessionID); err != nil {
		abortWithError(c, apperrors.NewValidationError(err.Error()))
		return
	}

	result, err := h.analytics.Ingest(c.Request.Context(), domain.SessionID(sessionID), req.Events)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
