package http

import (
	"net/http"
	"strconv"
	"strings"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/ports"
	"edgestream/internal/infrastructure/middleware"
	apperrors "edgestream/pkg/errors"
	"edgestream/pkg/tracing"
	"edgestream/pkg/utils"
	"edgestream/pkg/validation"

	"github.com/gin-gonic/gin"
)

type SegmentHandler struct {
	segments ports.SegmentService
}

func NewSegmentHandler(segments ports.SegmentService) *SegmentHandler {
	return &SegmentHandler{
		segments: segments,
	}
}

// SetupRoutes registers the segment route behind the given guards, for example the session token check.
func (h *SegmentHandler) SetupRoutes(router gin.IRouter, guards ...gin.HandlerFunc) {
	handlers := append(append([]gin.HandlerFunc{}, guards...), h.GetSegment)
	router.GET("/segment/:contentId/:qualityId/:segment", handlers...)
	router.HEAD("/segment/:contentId/:qualityId/:segment", handlers...)
}

func (h *SegmentHandler) GetSegment(c *gin.Context) {
	contentID := c.Param("contentId")
	if err := validation.ValidateContentID(contentID); err != nil {
		abortWithError(c, apperrors.NewValidationError(err.Error()))
		return
	}

	qualityID, err := strconv.Atoi(c.Param("qualityId"))
	if err != nil {
		abortWithError(c, apperrors.NewValidationError("qualityId must be an integer"))
		return
	}

	segmentID, err := strconv.Atoi(strings.TrimSuffix(c.Param("segment"), ".ts"))
	if err != nil {
		abortWithError(c, apperrors.NewValidationError("segment id must be an integer"))
		return
	}

	ctx := c.Request.Context()
	if claims, ok := middleware.PlaybackClaims(c); ok {
		tracing.AddSpanAttributes(ctx, tracing.DeviceIDKey.String(claims.DeviceID))
	}

	resp, err := h.segments.Serve(ctx, domain.SegmentRequest{
		ContentID:   contentID,
		QualityID:   qualityID,
		SegmentID:   segmentID,
		RangeHeader: c.GetHeader("Range"),
		SessionID:   domain.SessionID(utils.SanitizeHeader(c.GetHeader(HeaderSessionID), 256)),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	for k, v := range resp.Headers {
		c.Header(k, v)
	}
	c.Status(resp.Status)
	if c.Request.Method == http.MethodHead {
		return
	}
	if _, err := c.Writer.Write(resp.Body); err != nil {
		_ = c.Error(err)
	}
}
