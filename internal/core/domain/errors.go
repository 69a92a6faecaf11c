package domain

import "errors"

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExists       = errors.New("session already exists")
	ErrQualityNotFound     = errors.New("quality level not found")
	ErrInvalidSegmentID    = errors.New("invalid segment id")
	ErrInvalidRange        = errors.New("invalid range header")
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
	ErrInvalidToken        = errors.New("invalid token")
	ErrInvalidBandwidth    = errors.New("invalid bandwidth estimate")
	ErrMissingEvents       = errors.New("events field is required")
	ErrBackendUnavailable  = errors.New("recommendation backend unavailable")
)
