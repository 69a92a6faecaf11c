package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/ports"
	"edgestream/pkg/tracing"

	"go.uber.org/zap"
)

const (
	lowQoEThreshold       = 2.5
	highQoEThreshold      = 4.5
	rebufferBurstPerBatch = 2
)

// ErrTooManyEvents is returned when a batch exceeds the configured per-request limit.
var ErrTooManyEvents = errors.New("too many events in one request")

type AnalyticsService struct {
	repo        ports.AnalyticsRepository
	sessions    ports.SessionService
	bandwidth   ports.BandwidthService
	qoe         ports.QoEService
	publisher   ports.EventPublisher
	maxPerBatch int
	metrics     Metrics
	logger      *zap.SugaredLogger
	now         func() time.Time
}

func NewAnalyticsService(
	repo ports.AnalyticsRepository,
	sessions ports.SessionService,
	bandwidth ports.BandwidthService,
	qoe ports.QoEService,
	publisher ports.EventPublisher,
	maxPerBatch int,
	metrics Metrics,
	logger *zap.SugaredLogger,
) *AnalyticsService {
	return &AnalyticsService{
		repo:        repo,
		sessions:    sessions,
		bandwidth:   bandwidth,
		qoe:         qoe,
		publisher:   publisher,
		maxPerBatch: maxPerBatch,
		metrics:     metricsOrNop(metrics),
		logger:      logger,
		now:         time.Now,
	}
}

// Ingest records a batch of player events, folds bandwidth samples into the estimate,
// and returns the session's updated score with playback recommendations.
// A nil slice means the events field was missing; an empty one is accepted.
func (s *AnalyticsService) Ingest(ctx context.Context, sessionHint domain.SessionID, events []domain.AnalyticsEvent) (*domain.AnalyticsResult, error) {
	if events == nil {
		return nil, domain.ErrMissingEvents
	}
	if s.maxPerBatch > 0 && len(events) > s.maxPerBatch {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyEvents, len(events), s.maxPerBatch)
	}

	sessionID := sessionHint
	if sessionID == "" && len(events) > 0 {
		sessionID = events[0].SessionID
	}

	now := s.now()
	for i := range events {
		if events[i].SessionID == "" {
			events[i].SessionID = sessionID
		}
		if events[i].Timestamp.IsZero() {
			events[i].Timestamp = now
		}
	}

	live := s.touchSessions(ctx, sessionID, events)
	kept := make([]domain.AnalyticsEvent, 0, len(events))
	for _, ev := range events {
		if live[ev.SessionID] {
			kept = append(kept, ev)
		}
	}
	if dropped := len(events) - len(kept); dropped > 0 {
		s.logger.Debugw("dropping analytics for unknown sessions", "session_id", sessionID, "dropped", dropped)
	}

	if len(kept) > 0 {
		if err := s.repo.Append(ctx, kept); err != nil {
			return nil, fmt.Errorf("failed to store analytics events: %w", err)
		}
	}

	rebuffers := 0
	lastQuality := -1
	for _, ev := range events {
		s.metrics.RecordAnalyticsEvent(string(ev.Type))

		switch ev.Type {
		case domain.EventRebuffer:
			rebuffers++
		case domain.EventBandwidth:
			if bps, ok := ev.Number("bandwidth"); ok && live[ev.SessionID] {
				if _, err := s.bandwidth.Update(ctx, ev.SessionID, bps); err != nil {
					s.logger.Debugw("ignoring bandwidth sample", "session_id", ev.SessionID, "error", err)
				}
			}
		}
		if q, ok := ev.Number("qualityId"); ok {
			lastQuality = int(q)
		}
	}

	score := s.qoe.ScoreSession(ctx, sessionID)
	s.metrics.ObserveQoEScore(score)
	tracing.AddSpanAttributes(ctx,
		tracing.SessionIDKey.String(string(sessionID)),
		tracing.QoEScoreKey.Float64(score),
	)
	if live[sessionID] {
		if err := s.publisher.PublishQoEUpdated(ctx, sessionID, score); err != nil {
			s.logger.Warnw("failed to publish qoe update", "session_id", sessionID, "error", err)
		}
	}

	recommended := s.bandwidth.RecommendQuality(s.bandwidth.Get(ctx, sessionID))
	recs := recommend(score, rebuffers, lastQuality, recommended.ID)

	s.logger.Debugw("analytics batch ingested",
		"session_id", sessionID,
		"events", len(events),
		"rebuffers", rebuffers,
		"qoe_score", score,
		"recommendations", len(recs),
	)

	return &domain.AnalyticsResult{
		Received:        len(events),
		QoEScore:        score,
		Recommendations: recs,
	}, nil
}

// touchSessions refreshes the batch's session and every session its events name, and
// reports which ones may keep per-session state. Unknown or evicted ids are not live, so
// nothing is stored for them that a sweep would never reclaim. Other store errors leave
// the session live.
func (s *AnalyticsService) touchSessions(ctx context.Context, sessionID domain.SessionID, events []domain.AnalyticsEvent) map[domain.SessionID]bool {
	ids := make([]domain.SessionID, 0, len(events)+1)
	ids = append(ids, sessionID)
	for _, ev := range events {
		ids = append(ids, ev.SessionID)
	}

	live := make(map[domain.SessionID]bool)
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, seen := live[id]; seen {
			continue
		}
		_, err := s.sessions.Update(ctx, id, nil)
		switch {
		case err == nil:
			live[id] = true
		case errors.Is(err, domain.ErrSessionNotFound):
			live[id] = false
		default:
			s.logger.Warnw("failed to refresh session from analytics", "session_id", id, "error", err)
			live[id] = true
		}
	}
	return live
}

func recommend(score float64, rebuffers, currentQuality, recommendedQuality int) []domain.Recommendation {
	recs := []domain.Recommendation{}

	if score < lowQoEThreshold {
		target := recommendedQuality
		if currentQuality >= 0 && target >= currentQuality && currentQuality > 0 {
			target = currentQuality - 1
		}
		recs = append(recs, domain.Recommendation{
			Type:          domain.RecommendDecreaseQuality,
			Message:       "Playback quality is poor; switch to a lower bitrate",
			TargetQuality: &target,
		})
	}

	if rebuffers > rebufferBurstPerBatch {
		recs = append(recs, domain.Recommendation{
			Type:    domain.RecommendIncreaseBuffer,
			Message: "Frequent rebuffering; increase the forward buffer",
		})
	}

	if score >= highQoEThreshold && rebuffers == 0 && recommendedQuality > currentQuality {
		target := recommendedQuality
		recs = append(recs, domain.Recommendation{
			Type:          domain.RecommendIncreaseQuality,
			Message:       "Bandwidth headroom available; a higher quality is sustainable",
			TargetQuality: &target,
		})
	}

	return recs
}

func (s *AnalyticsService) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}

// Forget drops a session's event log. Used as a session eviction hook.
func (s *AnalyticsService) Forget(ctx context.Context, id domain.SessionID) {
	if err := s.repo.DeleteSession(ctx, id); err != nil {
		s.logger.Warnw("failed to drop analytics events", "session_id", id, "error", err)
	}
}
