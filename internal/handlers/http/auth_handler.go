package http

import (
	"errors"
	"net/http"
	"strings"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/ports"
	apperrors "edgestream/pkg/errors"
	"edgestream/pkg/validation"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService ports.AuthService
}

func NewAuthHandler(authService ports.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

func (h *AuthHandler) SetupRoutes(router gin.IRouter) {
	router.POST("/auth/validate", h.Validate)
}

type ValidateRequest struct {
	Token     string `json:"token"`
	ContentID string `json:"contentId"`
	DeviceID  string `json:"deviceId"`
}

// Validate exchanges a playback token for a session token. Rejections keep the
// {valid:false,error} body the player expects instead of the generic error shape.
func (h *AuthHandler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, apperrors.NewValidationError("invalid request format"))
		return
	}

	req.ContentID = strings.TrimSpace(req.ContentID)
	req.DeviceID = strings.TrimSpace(req.DeviceID)

	if err := validation.ValidatePlaybackToken(req.Token, domain.MinPlaybackTokenLength); err != nil {
		rejectToken(c)
		return
	}
	if err := validation.ValidateContentID(req.ContentID); err != nil {
		abortWithError(c, apperrors.NewValidationError(err.Error()))
		return
	}
	if err := validation.ValidateDeviceID(req.DeviceID); err != nil {
		abortWithError(c, apperrors.NewValidationError(err.Error()))
		return
	}

	grant, err := h.authService.ValidatePlayback(c.Request.Context(), domain.PlaybackRequest{
		Token:     req.Token,
		ContentID: req.ContentID,
		DeviceID:  req.DeviceID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidToken) {
			rejectToken(c)
			return
		}
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":            true,
		"sessionToken":     grant.SessionToken,
		"expiresAt":        grant.ExpiresAt,
		"allowedQualities": grant.AllowedQualities,
		"cdnToken":         grant.CDNToken,
	})
}

func rejectToken(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"valid": false,
		"error": "Invalid token",
	})
}
