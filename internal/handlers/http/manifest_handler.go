package http

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/platform"
	"edgestream/internal/core/ports"
	apperrors "edgestream/pkg/errors"
	"edgestream/pkg/utils"
	"edgestream/pkg/validation"

	"github.com/gin-gonic/gin"
)

const (
	HeaderDeviceType        = "X-Device-Type"
	HeaderBandwidthEstimate = "X-Bandwidth-Estimate"
	HeaderSessionID         = "X-Session-ID"
	HeaderPlatform          = "X-Platform"
	HeaderEdgeLocation      = "X-Edge-Location"
	HeaderCDNCache          = "X-CDN-Cache"

	contentTypeM3U8 = "application/vnd.apple.mpegurl"
)

type ManifestHandler struct {
	manifests ports.ManifestService
}

func NewManifestHandler(manifests ports.ManifestService) *ManifestHandler {
	return &ManifestHandler{
		manifests: manifests,
	}
}

func (h *ManifestHandler) SetupRoutes(router gin.IRouter) {
	manifest := router.Group("/manifest/:contentId")
	{
		manifest.GET("/master.m3u8", h.GetMaster)
		manifest.GET("/video/:qualityId/index.m3u8", h.GetVariant)
	}
}

func (h *ManifestHandler) GetMaster(c *gin.Context) {
	contentID := c.Param("contentId")
	if err := validation.ValidateContentID(contentID); err != nil {
		abortWithError(c, apperrors.NewValidationError(err.Error()))
		return
	}

	sessionID := utils.SanitizeHeader(c.GetHeader(HeaderSessionID), 256)
	if err := validation.ValidateSessionID(sessionID); err != nil {
		abortWithError(c, apperrors.NewValidationError(err.Error()))
		return
	}

	bandwidth, err := parseBandwidthHeader(c.GetHeader(HeaderBandwidthEstimate))
	if err != nil {
		abortWithError(c, err)
		return
	}

	req := domain.MasterRequest{
		ContentID:    contentID,
		BandwidthBps: bandwidth,
		SessionID:    domain.SessionID(sessionID),
		PlatformID:   platformFor(c),
	}
	if device := strings.TrimSpace(c.GetHeader(HeaderDeviceType)); device != "" {
		req.DeviceType = domain.ParseDeviceType(strings.ToLower(device))
	}

	manifest, err := h.manifests.GenerateMaster(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	cacheStatus := "MISS"
	if manifest.CacheHit {
		cacheStatus = "HIT"
	}
	c.Header("Cache-Control", "no-cache")
	c.Header(HeaderCDNCache, cacheStatus)
	c.Header(HeaderEdgeLocation, manifest.EdgeLocation)
	c.Header(HeaderSessionID, string(manifest.SessionID))
	c.Data(http.StatusOK, contentTypeM3U8, []byte(manifest.Playlist))
}

func (h *ManifestHandler) GetVariant(c *gin.Context) {
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

	live, err := parseBoolQuery(c.Query("live"))
	if err != nil {
		abortWithError(c, apperrors.NewValidationError("live must be true or false"))
		return
	}

	playlist, err := h.manifests.GenerateVariant(c.Request.Context(), contentID, qualityID, live)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if live {
		c.Header("Cache-Control", "no-cache")
	} else {
		c.Header("Cache-Control", "public, max-age=300")
	}
	c.Data(http.StatusOK, contentTypeM3U8, []byte(playlist))
}

// parseBandwidthHeader returns nil for an absent header so the session estimate is used.
func parseBandwidthHeader(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	bps, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(bps) || math.IsInf(bps, 0) || bps <= 0 {
		return nil, apperrors.NewValidationError("x-bandwidth-estimate must be a positive number").
			WithContext("header", utils.TruncateString(raw, 32))
	}
	return &bps, nil
}

func parseBoolQuery(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

// platformFor prefers an explicit X-Platform header and otherwise detects from the user agent.
// A desktop user agent yields no platform so the plain device filter applies.
func platformFor(c *gin.Context) string {
	if p := utils.SanitizeHeader(c.GetHeader(HeaderPlatform), 32); p != "" {
		return strings.ToLower(p)
	}
	if id := platform.Detect(c.Request.UserAgent()); id != platform.Desktop {
		return string(id)
	}
	return ""
}
