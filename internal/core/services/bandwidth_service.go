package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/ports"

	"go.uber.org/zap"
)

const (
	// EMA weights; next = prior*emaPriorWeight + sample*emaSampleWeight.
	emaPriorWeight  = 0.7
	emaSampleWeight = 0.3

	// Recommendations keep 30% headroom under the estimate.
	recommendationSafetyFactor = 0.7

	baseConfidence = 0.5
	maxConfidence  = 0.95
)

type BandwidthService struct {
	repo    ports.BandwidthRepository
	ladder  domain.Ladder
	metrics Metrics
	logger  *zap.SugaredLogger
	now     func() time.Time
}

func NewBandwidthService(repo ports.BandwidthRepository, ladder domain.Ladder, metrics Metrics, logger *zap.SugaredLogger) *BandwidthService {
	return &BandwidthService{
		repo:    repo,
		ladder:  ladder,
		metrics: metricsOrNop(metrics),
		logger:  logger,
		now:     time.Now,
	}
}

// Update folds one throughput observation into the session's estimate and returns the new value.
func (s *BandwidthService) Update(ctx context.Context, id domain.SessionID, observedBps float64) (float64, error) {
	if math.IsNaN(observedBps) || math.IsInf(observedBps, 0) || observedBps <= 0 {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidBandwidth, observedBps)
	}

	est, err := s.repo.Update(ctx, id, func(prior *domain.BandwidthEstimate) *domain.BandwidthEstimate {
		next := &domain.BandwidthEstimate{
			SessionID: id,
			Bps:       observedBps,
			Samples:   1,
			UpdatedAt: s.now(),
		}
		if prior != nil {
			next.Bps = prior.Bps*emaPriorWeight + observedBps*emaSampleWeight
			next.Samples = prior.Samples + 1
		}
		return next
	})
	if err != nil {
		return 0, fmt.Errorf("failed to update bandwidth estimate: %w", err)
	}

	s.metrics.ObserveBandwidthEstimate(est.Bps)
	s.logger.Debugw("bandwidth estimate updated",
		"session_id", id,
		"observed_bps", observedBps,
		"estimate_bps", est.Bps,
		"samples", est.Samples,
	)

	return est.Bps, nil
}

// Get returns the session's estimate, or the default when none is recorded.
func (s *BandwidthService) Get(ctx context.Context, id domain.SessionID) float64 {
	est, _ := s.lookup(ctx, id)
	return est.Bps
}

func (s *BandwidthService) lookup(ctx context.Context, id domain.SessionID) (domain.BandwidthEstimate, bool) {
	fallback := domain.BandwidthEstimate{SessionID: id, Bps: domain.DefaultBandwidthBps}
	if id == "" {
		return fallback, false
	}

	est, err := s.repo.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			s.logger.Warnw("bandwidth lookup failed, using default",
				"session_id", id,
				"error", err,
			)
		}
		return fallback, false
	}
	return *est, true
}

// RecommendQuality picks the highest level whose bitrate fits within 70% of bandwidthBps.
func (s *BandwidthService) RecommendQuality(bandwidthBps float64) domain.QualityLevel {
	return s.ladder.HighestWithin(bandwidthBps * recommendationSafetyFactor)
}

func (s *BandwidthService) Estimate(ctx context.Context, id domain.SessionID) *domain.BandwidthReport {
	est, _ := s.lookup(ctx, id)
	budget := est.Bps * recommendationSafetyFactor

	available := make([]domain.QualityViability, len(s.ladder))
	for i, q := range s.ladder {
		available[i] = domain.QualityViability{
			ID:         q.ID,
			Bitrate:    q.BitrateBps,
			Resolution: q.Resolution,
			Viable:     float64(q.BitrateBps) <= budget,
		}
	}

	return &domain.BandwidthReport{
		EstimatedBandwidth: est.Bps,
		RecommendedQuality: s.RecommendQuality(est.Bps).ID,
		AvailableQualities: available,
		Confidence:         confidenceFor(est.Samples),
		Samples:            est.Samples,
	}
}

func confidenceFor(samples int) float64 {
	c := baseConfidence + 0.1*float64(samples)
	if c > maxConfidence {
		c = maxConfidence
	}
	return math.Round(c*100) / 100
}

// Forget drops a session's estimate. Used as a session eviction hook.
func (s *BandwidthService) Forget(ctx context.Context, id domain.SessionID) {
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Warnw("failed to drop bandwidth estimate", "session_id", id, "error", err)
	}
}
