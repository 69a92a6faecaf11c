package abr

import (
	"math"

	"edgestream/internal/core/domain"
)

// CalculateQoEScore is the player-side score. It weighs rebuffering, startup delay,
// bitrate stability and errors, and is kept separate from the server's event-count score.
//
// RebufferRatio and ErrorRate are fractions; BitrateStability is a percentage.
func CalculateQoEScore(m domain.QoEMetrics) float64 {
	score := domain.MaxQoEScore

	score -= math.Min(2.0, m.RebufferRatio*20)
	score -= math.Min(1.0, math.Max(0, (m.StartupTimeMs-2000)/1000)*0.5)
	score += math.Min(0.5, math.Max(0, (m.BitrateStability-80)/20)*0.5)
	score -= math.Min(1.0, m.ErrorRate*10)

	score = math.Max(0, math.Min(domain.MaxQoEScore, score))
	return math.Round(score*100) / 100
}
