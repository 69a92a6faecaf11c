package main

import (
	"math"
	"math/rand"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/platform"
)

// telemetry fakes one device's playback signals. Throughput follows a slow wave so the
// engine sees both headroom and congestion; buffer drains when the bitrate outruns it.
type telemetry struct {
	rng     *rand.Rand
	caps    platform.Capabilities
	ladder  domain.Ladder
	maxBuf  float64
	baseBw  float64 // kbps
	tick    float64
	buffer  float64
	stalled int
	samples int
}

func newTelemetry(profile platform.Profile, ladder domain.Ladder, baseKbps float64, seed int64) *telemetry {
	maxBuf := profile.HLS.MaxBufferLength
	if maxBuf <= 0 {
		maxBuf = 30
	}
	return &telemetry{
		rng:    rand.New(rand.NewSource(seed)),
		caps:   profile.Capabilities,
		ladder: ladder,
		maxBuf: maxBuf,
		baseBw: baseKbps,
	}
}

// next advances one second of playback at level.
func (s *telemetry) next(level int) domain.PerformanceMetrics {
	s.tick++
	s.samples++

	bw := s.baseBw * (1 + 0.6*math.Sin(s.tick/20)) * (0.9 + 0.2*s.rng.Float64())
	if bw < 100 {
		bw = 100
	}

	q, err := s.ladder.Level(level)
	if err != nil {
		q = s.ladder[0]
	}
	bitrateKbps := float64(q.BitrateBps) / 1000

	// one second of wall time downloads bw/bitrate seconds of media and plays one
	s.buffer += bw/bitrateKbps - 1
	s.buffer = math.Max(0, math.Min(s.maxBuf, s.buffer))

	rebuffer := 0.0
	if s.buffer == 0 {
		s.stalled++
		rebuffer = 0.05
	}

	frac := float64(level) / float64(s.ladder.MaxIndex())
	memory := s.caps.MaxMemoryMB * (0.35 + 0.45*frac) * (0.95 + 0.1*s.rng.Float64())
	cpu := s.caps.MaxCPUUsage * (0.25 + 0.5*frac) * (0.9 + 0.2*s.rng.Float64())

	return domain.PerformanceMetrics{
		MemoryUsageMB:  memory,
		CPUUsage:       cpu,
		InputLatencyMs: 40 + cpu*0.8,
		BufferLength:   s.buffer,
		RebufferRatio:  rebuffer,
		CurrentLevel:   level,
		BandwidthKbps:  bw,
	}
}

func (s *telemetry) rebufferRatio() float64 {
	if s.samples == 0 {
		return 0
	}
	return float64(s.stalled) / float64(s.samples)
}
