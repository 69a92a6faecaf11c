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

type BandwidthHandler struct {
	bandwidth ports.BandwidthService
}

func NewBandwidthHandler(bandwidth ports.BandwidthService) *BandwidthHandler {
	return &BandwidthHandler{
		bandwidth: bandwidth,
	}
}

func (h *BandwidthHandler) SetupRoutes(router gin.IRouter) {
	router.GET("/bandwidth/estimate", h.GetEstimate)
}

func (h *BandwidthHandler) GetEstimate(c *gin.Context) {
	sessionID := utils.SanitizeHeader(c.GetHeader(HeaderSessionID), 256)
	if err := validation.ValidateSessionID(sessionID); err != nil {
		abortWithError(c, apperrors.NewValidationError(err.Error()))
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, h.bandwidth.Estimate(c.Request.Context(), domain.SessionID(sessionID)))
}
