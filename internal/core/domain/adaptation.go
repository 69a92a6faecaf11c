package domain

import "time"

// PerformanceMetrics is one telemetry sample from the playback device.
type PerformanceMetrics struct {
	Timestamp      time.Time `json:"timestamp"`
	MemoryUsageMB  float64   `json:"memoryUsageMb"`
	CPUUsage       float64   `json:"cpuUsage"` // percent, 0-100
	InputLatencyMs float64   `json:"inputLatencyMs"`
	BufferLength   float64   `json:"bufferLength"` // seconds
	RebufferRatio  float64   `json:"rebufferRatio"`
	DroppedFrames  int       `json:"droppedFrames"`
	CurrentLevel   int       `json:"currentLevel"`
	BandwidthKbps  float64   `json:"bandwidthKbps"`
}

// AdaptationDecision is a single quality change proposed by the decision engine.
type AdaptationDecision struct {
	TargetLevel     int                `json:"targetLevel"`
	PreviousLevel   int                `json:"previousLevel"`
	Reason          string             `json:"reason"`
	Confidence      float64            `json:"confidence"`
	DelayMs         int                `json:"delayMs"`
	IssuedAt        time.Time          `json:"issuedAt"`
	MetricsSnapshot PerformanceMetrics `json:"metricsSnapshot"`
}

const (
	ReasonMemoryPressure = "memory_pressure"
	ReasonCPUOverload    = "cpu_overload"
	ReasonRebuffering    = "excessive_rebuffering"
	ReasonLowBandwidth   = "insufficient_bandwidth"
	ReasonUpgrade        = "upgrade_opportunity"
	ReasonInputLatency   = "input_latency"
	ReasonFatalError     = "fatal_error"
)

// StreamingRecommendation is the backend's view of which level a session should play.
type StreamingRecommendation struct {
	RecommendedLevel   int     `json:"recommendedLevel"`
	EstimatedBandwidth float64 `json:"estimatedBandwidth"`
	Confidence         float64 `json:"confidence"`
	Source             string  `json:"source"`
}

const (
	RecommendationSourceBackend  = "backend"
	RecommendationSourceFallback = "fallback"
)
