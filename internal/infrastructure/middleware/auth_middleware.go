package middleware

import (
	"errors"
	"net/http"
	"strings"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/ports"
	"edgestream/internal/core/services"

	"github.com/gin-gonic/gin"
)

// ClaimsKey is the gin context key holding *domain.PlaybackClaims.
const ClaimsKey = "playback_claims"

// sessionToken reads a bearer token from the Authorization header or the "token" query parameter.
func sessionToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		scheme, token, ok := strings.Cut(authHeader, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Query("token")
}

// SessionTokenMiddleware requires a valid playback session token issued for the
// :contentId route parameter. Failures are 403, expired tokens included.
func SessionTokenMiddleware(auth ports.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "FORBIDDEN",
				"message": "session token required",
			})
			return
		}

		claims, err := auth.VerifySessionToken(token)
		if err != nil {
			message := "invalid session token"
			if errors.Is(err, services.ErrExpiredToken) {
				message = "session token expired"
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "FORBIDDEN",
				"message": message,
			})
			return
		}

		if contentID := c.Param("contentId"); contentID != "" && claims.ContentID != contentID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "FORBIDDEN",
				"message": "session token not valid for this content",
			})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// OptionalSessionTokenMiddleware stores claims when a valid token is present and never rejects.
func OptionalSessionTokenMiddleware(auth ports.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := sessionToken(c); token != "" {
			if claims, err := auth.VerifySessionToken(token); err == nil {
				c.Set(ClaimsKey, claims)
			}
		}
		c.Next()
	}
}

// PlaybackClaims returns the claims stored by the session token middleware.
func PlaybackClaims(c *gin.Context) (*domain.PlaybackClaims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*domain.PlaybackClaims)
	return claims, ok
}
