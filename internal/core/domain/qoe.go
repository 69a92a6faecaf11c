package domain

// QoEMetrics summarizes the perceived playback quality of a session.
type QoEMetrics struct {
	QualityScore      float64 `json:"qualityScore"`
	RebufferRatio     float64 `json:"rebufferRatio"`
	StartupTimeMs     float64 `json:"startupTimeMs"`
	BitrateStability  float64 `json:"bitrateStability"`
	ThroughputMbps    float64 `json:"throughputMbps"`
	LatencyMs         float64 `json:"latencyMs"`
	ErrorRate         float64 `json:"errorRate"`
	SessionDurationMs float64 `json:"sessionDurationMs"`
	PlatformType      string  `json:"platformType"`
}

const (
	MaxQoEScore     = 5.0
	DefaultQoEScore = 3.0
)
