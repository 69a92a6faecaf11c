package domain

import "time"

const DefaultBandwidthBps = 5_000_000

// BandwidthEstimate is the smoothed per-session throughput estimate.
type BandwidthEstimate struct {
	SessionID SessionID `json:"sessionId"`
	Bps       float64   `json:"bps"`
	Samples   int       `json:"samples"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type QualityViability struct {
	ID         int    `json:"id"`
	Bitrate    int    `json:"bitrate"`
	Resolution string `json:"resolution"`
	Viable     bool   `json:"viable"`
}

type BandwidthReport struct {
	EstimatedBandwidth float64            `json:"estimatedBandwidth"`
	RecommendedQuality int                `json:"recommendedQuality"`
	AvailableQualities []QualityViability `json:"availableQualities"`
	Confidence         float64            `json:"confidence"`
	Samples            int                `json:"samples"`
}
