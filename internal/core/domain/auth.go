package domain

import "time"

const MinPlaybackTokenLength = 10

type PlaybackRequest struct {
	Token     string
	ContentID string
	DeviceID  string
}

type PlaybackGrant struct {
	SessionToken     string    `json:"sessionToken"`
	ExpiresAt        time.Time `json:"expiresAt"`
	AllowedQualities []int     `json:"allowedQualities"`
	CDNToken         string    `json:"cdnToken"`
}

type PlaybackClaims struct {
	ContentID string
	DeviceID  string
	ExpiresAt time.Time
}
