package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"edgestream/internal/core/domain"
	"edgestream/pkg/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrExpiredToken = errors.New("token expired")

// SessionClaims are carried by the playback session token.
type SessionClaims struct {
	ContentID string `json:"contentId"`
	DeviceID  string `json:"deviceId"`
	jwt.RegisteredClaims
}

type AuthService struct {
	jwtSecret     []byte
	cdnSigningKey []byte
	tokenTTL      time.Duration
	ladder        domain.Ladder
	logger        *zap.SugaredLogger
	now           func() time.Time
}

func NewAuthService(jwtSecret, cdnSigningKey string, tokenTTL time.Duration, ladder domain.Ladder, logger *zap.SugaredLogger) *AuthService {
	return &AuthService{
		jwtSecret:     []byte(jwtSecret),
		cdnSigningKey: []byte(cdnSigningKey),
		tokenTTL:      tokenTTL,
		ladder:        ladder,
		logger:        logger,
		now:           time.Now,
	}
}

// ValidatePlayback accepts any token of at least the minimum length and issues a
// signed session token plus a CDN URL token for the content and device.
func (s *AuthService) ValidatePlayback(ctx context.Context, req domain.PlaybackRequest) (*domain.PlaybackGrant, error) {
	token := strings.TrimSpace(req.Token)
	if len(token) < domain.MinPlaybackTokenLength {
		s.logger.Infow("playback token rejected",
			"content_id", req.ContentID,
			"device_id", req.DeviceID,
			"token", utils.MaskSensitive(token, 3),
		)
		return nil, domain.ErrInvalidToken
	}

	now := s.now()
	expiresAt := now.Add(s.tokenTTL).Truncate(time.Second)

	claims := &SessionClaims{
		ContentID: req.ContentID,
		DeviceID:  req.DeviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   req.DeviceID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	sessionToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return &domain.PlaybackGrant{
		SessionToken:     sessionToken,
		ExpiresAt:        expiresAt,
		AllowedQualities: s.ladder.IDs(),
		CDNToken:         s.SignCDNToken(req.ContentID, req.DeviceID, expiresAt),
	}, nil
}

// SignCDNToken is hex(HMAC-SHA256(contentID:deviceID:expiresUnix)).
func (s *AuthService) SignCDNToken(contentID, deviceID string, expiresAt time.Time) string {
	mac := hmac.New(sha256.New, s.cdnSigningKey)
	fmt.Fprintf(mac, "%s:%s:%d", contentID, deviceID, expiresAt.Unix())
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCDNToken checks a CDN token in constant time and rejects expired ones.
func (s *AuthService) VerifyCDNToken(token, contentID, deviceID string, expiresAt time.Time) bool {
	if !s.now().Before(expiresAt) {
		return false
	}
	expected := s.SignCDNToken(contentID, deviceID, expiresAt)
	return hmac.Equal([]byte(token), []byte(expected))
}

func (s *AuthService) VerifySessionToken(tokenString string) (*domain.PlaybackClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, domain.ErrInvalidToken
	}

	out := &domain.PlaybackClaims{
		ContentID: claims.ContentID,
		DeviceID:  claims.DeviceID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
