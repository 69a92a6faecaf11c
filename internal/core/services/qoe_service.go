package services

import (
	"context"
	"errors"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/ports"

	"go.uber.org/zap"
)

const (
	rebufferPenalty      = 0.5
	qualitySwitchPenalty = 0.1
	maxQualityBonus      = 0.5
)

// QoEService scores a session from its recorded events on a 0-5 scale.
type QoEService struct {
	sessions  ports.SessionService
	analytics ports.AnalyticsRepository
	ladder    domain.Ladder
	logger    *zap.SugaredLogger
}

func NewQoEService(sessions ports.SessionService, analytics ports.AnalyticsRepository, ladder domain.Ladder, logger *zap.SugaredLogger) *QoEService {
	return &QoEService{
		sessions:  sessions,
		analytics: analytics,
		ladder:    ladder,
		logger:    logger,
	}
}

// Score starts from the maximum, subtracts per rebuffer and quality switch, and
// adds a bonus proportional to the mean quality id reported by the events.
func (s *QoEService) Score(session *domain.Session, events []domain.AnalyticsEvent) float64 {
	if session == nil {
		return domain.DefaultQoEScore
	}

	score := domain.MaxQoEScore
	var qualitySum float64
	var qualityCount int

	for _, ev := range events {
		switch ev.Type {
		case domain.EventRebuffer:
			score -= rebufferPenalty
		case domain.EventQualitySwitch:
			score -= qualitySwitchPenalty
		}
		if q, ok := ev.Number("qualityId"); ok {
			qualitySum += q
			qualityCount++
		}
	}

	if qualityCount > 0 && s.ladder.MaxIndex() > 0 {
		avg := qualitySum / float64(qualityCount)
		score += avg / float64(s.ladder.MaxIndex()) * maxQualityBonus
	}

	return clampScore(score)
}

// ScoreSession loads the session and its event log. Unknown sessions score the default.
func (s *QoEService) ScoreSession(ctx context.Context, id domain.SessionID) float64 {
	if id == "" {
		return domain.DefaultQoEScore
	}

	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			s.logger.Warnw("failed to load session for scoring", "session_id", id, "error", err)
		}
		return domain.DefaultQoEScore
	}

	events, err := s.analytics.ListBySession(ctx, id)
	if err != nil {
		s.logger.Warnw("failed to load events for scoring", "session_id", id, "error", err)
		return domain.DefaultQoEScore
	}

	return s.Score(session, events)
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > domain.MaxQoEScore {
		return domain.MaxQoEScore
	}
	return score
}
