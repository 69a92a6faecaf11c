package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxIDLength = 128

var (
	// ContentIDRegex validates content IDs. They are embedded in segment paths unescaped.
	ContentIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// SessionIDRegex also admits the dots and colons some players put in their ids.
	SessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)
)

// ValidateContentID validates content ID
func ValidateContentID(contentID string) error {
	if contentID == "" {
		return fmt.Errorf("content ID is required")
	}
	if len(contentID) > maxIDLength {
		return fmt.Errorf("content ID is too long (max %d characters)", maxIDLength)
	}
	if !ContentIDRegex.MatchString(contentID) {
		return fmt.Errorf("invalid content ID format")
	}
	return nil
}

// ValidateSessionID validates a client-supplied session ID. Empty is allowed.
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if len(sessionID) > maxIDLength {
		return fmt.Errorf("session ID is too long (max %d characters)", maxIDLength)
	}
	if !SessionIDRegex.MatchString(sessionID) {
		return fmt.Errorf("invalid session ID format")
	}
	return nil
}

// ValidateDeviceID validates device ID
func ValidateDeviceID(deviceID string) error {
	if err := ValidateNonEmptyString(deviceID, "deviceId"); err != nil {
		return err
	}
	return ValidateStringLength(deviceID, 1, 256, "deviceId")
}

// ValidatePlaybackToken checks a playback token's presence and minimum length.
func ValidatePlaybackToken(token string, minLength int) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("token is required")
	}
	if len(token) < minLength {
		return fmt.Errorf("token must be at least %d characters", minLength)
	}
	return nil
}

// ValidateQualityID checks id is a valid index into a ladder of the given size.
func ValidateQualityID(id, ladderSize int) error {
	if id < 0 || id >= ladderSize {
		return fmt.Errorf("quality ID %d out of range [0, %d)", id, ladderSize)
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme (must be http or https)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
