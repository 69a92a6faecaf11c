// Package platform holds the static capability and tuning tables for each playback platform.
package platform

import (
	"time"

	"edgestream/internal/core/domain"
)

type ID string

const (
	Tizen     ID = "tizen"
	WebOS     ID = "webos"
	Roku      ID = "roku"
	FireTV    ID = "firetv"
	AndroidTV ID = "androidtv"
	Mobile    ID = "mobile"
	Desktop   ID = "desktop"
)

// Type groups platforms that share adaptation behaviour.
type Type string

const (
	TypeSmartTV Type = "smarttv"
	TypeMobile  Type = "mobile"
	TypeDesktop Type = "desktop"
)

type Capabilities struct {
	MaxMemoryMB   float64 `json:"maxMemoryMb"`
	MaxCPUUsage   float64 `json:"maxCpuUsage"` // percent
	MaxBitrateBps int     `json:"maxBitrate"`
	MaxHeight     int     `json:"maxHeight"`
	HDR           bool    `json:"hdr"`
	HEVC          bool    `json:"hevc"`
}

// HLSTuning is the full set of player tunables handed to the HLS runtime.
type HLSTuning struct {
	// Seconds of forward buffer the player aims for.
	MaxBufferLength float64 `json:"maxBufferLength"`
	// Hard ceiling the forward buffer may grow to.
	MaxMaxBufferLength float64 `json:"maxMaxBufferLength"`
	// Seconds of already-played media kept in memory.
	BackBufferLength float64 `json:"backBufferLength"`
	// Bytes of buffered media before the player stops fetching.
	MaxBufferSize int `json:"maxBufferSize"`

	// Half-lives in seconds for the fast and slow bandwidth EWMAs.
	ABREwmaFastLive float64 `json:"abrEwmaFastLive"`
	ABREwmaSlowLive float64 `json:"abrEwmaSlowLive"`
	ABREwmaFastVoD  float64 `json:"abrEwmaFastVoD"`
	ABREwmaSlowVoD  float64 `json:"abrEwmaSlowVoD"`
	// Bandwidth safety factors applied when staying on and when switching up.
	ABRBandWidthFactor   float64 `json:"abrBandWidthFactor"`
	ABRBandWidthUpFactor float64 `json:"abrBandWidthUpFactor"`

	ManifestLoadingTimeOutMs int `json:"manifestLoadingTimeOut"`
	ManifestLoadingMaxRetry  int `json:"manifestLoadingMaxRetry"`
	FragLoadingTimeOutMs     int `json:"fragLoadingTimeOut"`
	FragLoadingMaxRetry      int `json:"fragLoadingMaxRetry"`

	// Offload transmuxing to a web worker.
	EnableWorker         bool `json:"enableWorker"`
	StartLevel           int  `json:"startLevel"`
	CapLevelToPlayerSize bool `json:"capLevelToPlayerSize"`
	LowLatencyMode       bool `json:"lowLatencyMode"`
}

type PerformanceTargets struct {
	MaxStartupTimeMs    int     `json:"maxStartupTimeMs"`
	MaxRebufferRate     float64 `json:"maxRebufferRate"`
	MinQualityStability float64 `json:"minQualityStability"`
}

// AdaptationRules are the thresholds the decision engine evaluates against.
type AdaptationRules struct {
	MaxMemoryUsageMB   float64       `json:"maxMemoryUsageMb"`
	MaxCPUUsage        float64       `json:"maxCpuUsage"`
	MaxInputLatencyMs  float64       `json:"maxInputLatencyMs"`
	MinBandwidthMbps   float64       `json:"minBandwidthMbps"`
	MaxRebufferRatio   float64       `json:"maxRebufferRatio"`
	BufferTargetSec    float64       `json:"bufferTargetSec"`
	UpgradeCooldown    time.Duration `json:"upgradeCooldown"`
	UpgradeDelay       time.Duration `json:"upgradeDelay"`
	EvaluationInterval time.Duration `json:"evaluationInterval"`
}

type Profile struct {
	ID           ID                 `json:"platformId"`
	Name         string             `json:"name"`
	Type         Type               `json:"platformType"`
	Capabilities Capabilities       `json:"capabilities"`
	HLS          HLSTuning          `json:"hlsConfig"`
	Targets      PerformanceTargets `json:"performanceTargets"`
	Rules        AdaptationRules    `json:"adaptationRules"`
}

// AllowsQuality is the profile's quality ladder filter.
func (p Profile) AllowsQuality(q domain.QualityLevel) bool {
	return q.BitrateBps <= p.Capabilities.MaxBitrateBps && q.Height() <= p.Capabilities.MaxHeight
}

// FilterLadder applies AllowsQuality across a ladder.
func (p Profile) FilterLadder(l domain.Ladder) domain.Ladder {
	return l.Filter(p.AllowsQuality)
}

func (p Profile) IsSmartTV() bool {
	return p.Type == TypeSmartTV
}

// DeviceType maps the platform to the device class used for server-side ladder caps.
func (p Profile) DeviceType() domain.DeviceType {
	switch p.Type {
	case TypeSmartTV:
		return domain.DeviceSmartTV
	case TypeMobile:
		return domain.DeviceMobile
	default:
		return domain.DeviceDesktop
	}
}
