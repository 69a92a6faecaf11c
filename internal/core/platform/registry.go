package platform

import (
	"sort"
	"strings"
	"time"
)

// Registry is an immutable lookup of platform profiles.
type Registry struct {
	profiles map[ID]Profile
}

func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[ID]Profile)}
	for _, p := range defaultProfiles() {
		r.profiles[p.ID] = p
	}
	return r
}

// Get returns the profile for id, or the desktop profile when id is unknown.
func (r *Registry) Get(id string) Profile {
	if p, ok := r.profiles[ID(strings.ToLower(strings.TrimSpace(id)))]; ok {
		return p
	}
	return r.profiles[Desktop]
}

// Lookup reports whether id names a known platform.
func (r *Registry) Lookup(id string) (Profile, bool) {
	p, ok := r.profiles[ID(strings.ToLower(strings.TrimSpace(id)))]
	return p, ok
}

// ForUserAgent detects the platform and returns its profile.
func (r *Registry) ForUserAgent(ua string) Profile {
	return r.Get(string(Detect(ua)))
}

func (r *Registry) List() []Profile {
	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func rulesFor(t Type, caps Capabilities) AdaptationRules {
	rules := AdaptationRules{
		MaxMemoryUsageMB:   caps.MaxMemoryMB,
		MaxCPUUsage:        caps.MaxCPUUsage,
		UpgradeCooldown:    10 * time.Second,
		UpgradeDelay:       8 * time.Second,
		EvaluationInterval: 15 * time.Second,
	}
	switch t {
	case TypeSmartTV:
		rules.MaxInputLatencyMs = 150
		rules.MinBandwidthMbps = 3
		rules.MaxRebufferRatio = 0.02
		rules.BufferTargetSec = 20
	case TypeMobile:
		rules.MaxInputLatencyMs = 100
		rules.MinBandwidthMbps = 1
		rules.MaxRebufferRatio = 0.03
		rules.BufferTargetSec = 15
	default:
		rules.MaxInputLatencyMs = 100
		rules.MinBandwidthMbps = 2
		rules.MaxRebufferRatio = 0.01
		rules.BufferTargetSec = 30
	}
	return rules
}

func defaultProfiles() []Profile {
	profiles := []Profile{
		{
			ID:   Tizen,
			Name: "Samsung Tizen",
			Type: TypeSmartTV,
			Capabilities: Capabilities{
				MaxMemoryMB:   1024,
				MaxCPUUsage:   80,
				MaxBitrateBps: 25_000_000,
				MaxHeight:     2160,
				HDR:           true,
				HEVC:          true,
			},
			HLS: HLSTuning{
				MaxBufferLength:          30,
				MaxMaxBufferLength:       60,
				BackBufferLength:         10,
				MaxBufferSize:            60 * 1000 * 1000,
				ABREwmaFastLive:          3,
				ABREwmaSlowLive:          9,
				ABREwmaFastVoD:           3,
				ABREwmaSlowVoD:           9,
				ABRBandWidthFactor:       0.8,
				ABRBandWidthUpFactor:     0.6,
				ManifestLoadingTimeOutMs: 10000,
				ManifestLoadingMaxRetry:  4,
				FragLoadingTimeOutMs:     20000,
				FragLoadingMaxRetry:      6,
				EnableWorker:             false,
				StartLevel:               -1,
				CapLevelToPlayerSize:     true,
			},
			Targets: PerformanceTargets{MaxStartupTimeMs: 4000, MaxRebufferRate: 0.02, MinQualityStability: 0.85},
		},
		{
			ID:   WebOS,
			Name: "LG webOS",
			Type: TypeSmartTV,
			Capabilities: Capabilities{
				MaxMemoryMB:   768,
				MaxCPUUsage:   75,
				MaxBitrateBps: 20_000_000,
				MaxHeight:     2160,
				HDR:           true,
				HEVC:          true,
			},
			HLS: HLSTuning{
				MaxBufferLength:          25,
				MaxMaxBufferLength:       45,
				BackBufferLength:         10,
				MaxBufferSize:            40 * 1000 * 1000,
				ABREwmaFastLive:          3,
				ABREwmaSlowLive:          9,
				ABREwmaFastVoD:           4,
				ABREwmaSlowVoD:           12,
				ABRBandWidthFactor:       0.8,
				ABRBandWidthUpFactor:     0.65,
				ManifestLoadingTimeOutMs: 10000,
				ManifestLoadingMaxRetry:  4,
				FragLoadingTimeOutMs:     20000,
				FragLoadingMaxRetry:      6,
				EnableWorker:             true,
				StartLevel:               -1,
				CapLevelToPlayerSize:     true,
			},
			Targets: PerformanceTargets{MaxStartupTimeMs: 4000, MaxRebufferRate: 0.02, MinQualityStability: 0.85},
		},
		{
			ID:   Roku,
			Name: "Roku",
			Type: TypeSmartTV,
			Capabilities: Capabilities{
				MaxMemoryMB:   512,
				MaxCPUUsage:   70,
				MaxBitrateBps: 10_000_000,
				MaxHeight:     1080,
				HDR:           false,
				HEVC:          false,
			},
			HLS: HLSTuning{
				MaxBufferLength:          20,
				MaxMaxBufferLength:       30,
				BackBufferLength:         5,
				MaxBufferSize:            20 * 1000 * 1000,
				ABREwmaFastLive:          4,
				ABREwmaSlowLive:          12,
				ABREwmaFastVoD:           4,
				ABREwmaSlowVoD:           15,
				ABRBandWidthFactor:       0.75,
				ABRBandWidthUpFactor:     0.55,
				ManifestLoadingTimeOutMs: 12000,
				ManifestLoadingMaxRetry:  3,
				FragLoadingTimeOutMs:     25000,
				FragLoadingMaxRetry:      4,
				EnableWorker:             false,
				StartLevel:               0,
				CapLevelToPlayerSize:     true,
			},
			Targets: PerformanceTargets{MaxStartupTimeMs: 5000, MaxRebufferRate: 0.03, MinQualityStability: 0.8},
		},
		{
			ID:   FireTV,
			Name: "Amazon Fire TV",
			Type: TypeSmartTV,
			Capabilities: Capabilities{
				MaxMemoryMB:   1024,
				MaxCPUUsage:   80,
				MaxBitrateBps: 20_000_000,
				MaxHeight:     2160,
				HDR:           true,
				HEVC:          true,
			},
			HLS: HLSTuning{
				MaxBufferLength:          30,
				MaxMaxBufferLength:       60,
				BackBufferLength:         15,
				MaxBufferSize:            60 * 1000 * 1000,
				ABREwmaFastLive:          3,
				ABREwmaSlowLive:          9,
				ABREwmaFastVoD:           3,
				ABREwmaSlowVoD:           9,
				ABRBandWidthFactor:       0.85,
				ABRBandWidthUpFactor:     0.7,
				ManifestLoadingTimeOutMs: 10000,
				ManifestLoadingMaxRetry:  4,
				FragLoadingTimeOutMs:     20000,
				FragLoadingMaxRetry:      6,
				EnableWorker:             true,
				StartLevel:               -1,
				CapLevelToPlayerSize:     true,
			},
			Targets: PerformanceTargets{MaxStartupTimeMs: 3500, MaxRebufferRate: 0.02, MinQualityStability: 0.85},
		},
		{
			ID:   AndroidTV,
			Name: "Android TV",
			Type: TypeSmartTV,
			Capabilities: Capabilities{
				MaxMemoryMB:   1536,
				MaxCPUUsage:   85,
				MaxBitrateBps: 25_000_000,
				MaxHeight:     2160,
				HDR:           true,
				HEVC:          true,
			},
			HLS: HLSTuning{
				MaxBufferLength:          30,
				MaxMaxBufferLength:       90,
				BackBufferLength:         20,
				MaxBufferSize:            80 * 1000 * 1000,
				ABREwmaFastLive:          3,
				ABREwmaSlowLive:          9,
				ABREwmaFastVoD:           3,
				ABREwmaSlowVoD:           9,
				ABRBandWidthFactor:       0.9,
				ABRBandWidthUpFactor:     0.7,
				ManifestLoadingTimeOutMs: 10000,
				ManifestLoadingMaxRetry:  4,
				FragLoadingTimeOutMs:     20000,
				FragLoadingMaxRetry:      6,
				EnableWorker:             true,
				StartLevel:               -1,
				CapLevelToPlayerSize:     true,
			},
			Targets: PerformanceTargets{MaxStartupTimeMs: 3500, MaxRebufferRate: 0.015, MinQualityStability: 0.9},
		},
		{
			ID:   Mobile,
			Name: "Mobile",
			Type: TypeMobile,
			Capabilities: Capabilities{
				MaxMemoryMB:   2048,
				MaxCPUUsage:   90,
				MaxBitrateBps: 8_000_000,
				MaxHeight:     1080,
				HDR:           false,
				HEVC:          true,
			},
			HLS: HLSTuning{
				MaxBufferLength:          20,
				MaxMaxBufferLength:       40,
				BackBufferLength:         10,
				MaxBufferSize:            30 * 1000 * 1000,
				ABREwmaFastLive:          2,
				ABREwmaSlowLive:          6,
				ABREwmaFastVoD:           2,
				ABREwmaSlowVoD:           6,
				ABRBandWidthFactor:       0.8,
				ABRBandWidthUpFactor:     0.6,
				ManifestLoadingTimeOutMs: 8000,
				ManifestLoadingMaxRetry:  3,
				FragLoadingTimeOutMs:     15000,
				FragLoadingMaxRetry:      5,
				EnableWorker:             true,
				StartLevel:               -1,
				CapLevelToPlayerSize:     true,
			},
			Targets: PerformanceTargets{MaxStartupTimeMs: 2500, MaxRebufferRate: 0.03, MinQualityStability: 0.8},
		},
		{
			ID:   Desktop,
			Name: "Desktop browser",
			Type: TypeDesktop,
			Capabilities: Capabilities{
				MaxMemoryMB:   4096,
				MaxCPUUsage:   90,
				MaxBitrateBps: 25_000_000,
				MaxHeight:     2160,
				HDR:           true,
				HEVC:          false,
			},
			HLS: HLSTuning{
				MaxBufferLength:          30,
				MaxMaxBufferLength:       600,
				BackBufferLength:         90,
				MaxBufferSize:            60 * 1000 * 1000,
				ABREwmaFastLive:          3,
				ABREwmaSlowLive:          9,
				ABREwmaFastVoD:           3,
				ABREwmaSlowVoD:           9,
				ABRBandWidthFactor:       0.95,
				ABRBandWidthUpFactor:     0.7,
				ManifestLoadingTimeOutMs: 10000,
				ManifestLoadingMaxRetry:  1,
				FragLoadingTimeOutMs:     20000,
				FragLoadingMaxRetry:      6,
				EnableWorker:             true,
				StartLevel:               -1,
				CapLevelToPlayerSize:     false,
			},
			Targets: PerformanceTargets{MaxStartupTimeMs: 2000, MaxRebufferRate: 0.01, MinQualityStability: 0.9},
		},
	}

	for i := range profiles {
		profiles[i].Rules = rulesFor(profiles[i].Type, profiles[i].Capabilities)
	}
	return profiles
}
