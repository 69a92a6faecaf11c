package domain

import "time"

type EventType string

const (
	EventRebuffer      EventType = "rebuffer"
	EventQualitySwitch EventType = "quality_switch"
	EventBandwidth     EventType = "bandwidth"
	EventPlaybackStart EventType = "playback_start"
	EventPlaybackError EventType = "error"
	EventHeartbeat     EventType = "heartbeat"
)

// AnalyticsEvent is one playback event reported by a player.
type AnalyticsEvent struct {
	Type      EventType              `json:"type"`
	SessionID SessionID              `json:"sessionId"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Number reads a numeric field from Data. JSON numbers decode as float64.
func (e AnalyticsEvent) Number(key string) (float64, bool) {
	v, ok := e.Data[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Recommendation is returned to the player after an analytics batch.
type Recommendation struct {
	Type          string `json:"type"`
	Message       string `json:"message"`
	TargetQuality *int   `json:"targetQuality,omitempty"`
}

const (
	RecommendDecreaseQuality = "decrease_quality"
	RecommendIncreaseQuality = "increase_quality"
	RecommendIncreaseBuffer  = "increase_buffer"
)

type AnalyticsResult struct {
	Received        int              `json:"received"`
	QoEScore        float64          `json:"qoeScore"`
	Recommendations []Recommendation `json:"recommendations"`
}
