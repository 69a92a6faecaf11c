package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/platform"
	"edgestream/internal/core/ports"
	"edgestream/internal/infrastructure/streaming"
	"edgestream/pkg/cache"
	"edgestream/pkg/tracing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Master playlists advertise every level up to 1.5x the bandwidth estimate.
const masterBandwidthHeadroom = 1.5

type ManifestService struct {
	ladder    domain.Ladder
	platforms *platform.Registry
	sessions  ports.SessionService
	bandwidth ports.BandwidthService
	edges     ports.EdgeSelector
	publisher ports.EventPublisher
	packager  *streaming.Packager
	variants  *cache.Cache[string]
	metrics   Metrics
	logger    *zap.SugaredLogger
	newID     func() string
}

func NewManifestService(
	ladder domain.Ladder,
	platforms *platform.Registry,
	sessions ports.SessionService,
	bandwidth ports.BandwidthService,
	edges ports.EdgeSelector,
	publisher ports.EventPublisher,
	variantCacheTTL time.Duration,
	metrics Metrics,
	logger *zap.SugaredLogger,
) *ManifestService {
	return &ManifestService{
		ladder:    ladder,
		platforms: platforms,
		sessions:  sessions,
		bandwidth: bandwidth,
		edges:     edges,
		publisher: publisher,
		packager:  streaming.NewPackager(),
		variants:  cache.New[string](variantCacheTTL),
		metrics:   metricsOrNop(metrics),
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// GenerateMaster filters the ladder for the client and binds the request to a session,
// creating one when the id is absent or unknown.
func (s *ManifestService) GenerateMaster(ctx context.Context, req domain.MasterRequest) (*domain.MasterManifest, error) {
	bandwidthBps := s.resolveBandwidth(ctx, req)

	var profile *platform.Profile
	if req.PlatformID != "" {
		if p, ok := s.platforms.Lookup(req.PlatformID); ok {
			profile = &p
		}
	}

	device := req.DeviceType
	if device == "" {
		device = domain.DeviceDesktop
		if profile != nil {
			device = profile.DeviceType()
		}
	}

	maxID := device.MaxQualityID()
	levels := s.ladder.Filter(func(q domain.QualityLevel) bool {
		if float64(q.BitrateBps) > bandwidthBps*masterBandwidthHeadroom || q.ID > maxID {
			return false
		}
		return profile == nil || profile.AllowsQuality(q)
	})

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = domain.SessionID(s.newID())
	}
	edge := s.edges.Select(sessionID)

	cacheHit, err := s.bindSession(ctx, sessionID, req.ContentID, device, edge, levels)
	if err != nil {
		return nil, err
	}

	tracing.AddSpanAttributes(ctx,
		tracing.SessionIDKey.String(string(sessionID)),
		tracing.ContentIDKey.String(req.ContentID),
		tracing.EdgeLocationKey.String(edge),
		tracing.BandwidthKey.Float64(bandwidthBps),
		tracing.PlatformKey.String(req.PlatformID),
	)
	s.metrics.RecordManifest("master")
	s.logger.Debugw("master playlist generated",
		"session_id", sessionID,
		"content_id", req.ContentID,
		"device_type", device,
		"bandwidth_bps", bandwidthBps,
		"qualities", len(levels),
		"edge_location", edge,
		"cache_hit", cacheHit,
	)

	return &domain.MasterManifest{
		Playlist:     s.packager.Master(edge, levels),
		EdgeLocation: edge,
		SessionID:    sessionID,
		CacheHit:     cacheHit,
		Qualities:    levels,
	}, nil
}

func (s *ManifestService) resolveBandwidth(ctx context.Context, req domain.MasterRequest) float64 {
	if req.BandwidthBps != nil {
		return *req.BandwidthBps
	}
	return s.bandwidth.Get(ctx, req.SessionID)
}

// bindSession reports true when an existing session was reused.
func (s *ManifestService) bindSession(
	ctx context.Context,
	id domain.SessionID,
	contentID string,
	device domain.DeviceType,
	edge string,
	levels domain.Ladder,
) (bool, error) {
	ids := levels.IDs()
	apply := func(sess *domain.Session) {
		sess.ContentID = contentID
		sess.DeviceType = device
		sess.EdgeLocation = edge
		sess.QualityIDs = ids
	}

	_, err := s.sessions.Update(ctx, id, apply)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return false, fmt.Errorf("failed to update session: %w", err)
	}

	session := &domain.Session{ID: id}
	apply(session)
	if err := s.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, domain.ErrSessionExists) {
			// Lost a creation race with a concurrent request for the same id.
			if _, err := s.sessions.Update(ctx, id, apply); err != nil {
				return false, fmt.Errorf("failed to update session: %w", err)
			}
			return true, nil
		}
		return false, err
	}

	if err := s.publisher.PublishSessionCreated(ctx, session); err != nil {
		s.logger.Warnw("failed to publish session created", "session_id", id, "error", err)
	}
	return false, nil
}

// GenerateVariant renders the media playlist for one quality. Output is memoized per
// content, quality and mode.
func (s *ManifestService) GenerateVariant(ctx context.Context, contentID string, qualityID int, live bool) (string, error) {
	if _, err := s.ladder.Level(qualityID); err != nil {
		return "", err
	}

	kind := "vod"
	if live {
		kind = "live"
	}
	key := fmt.Sprintf("%s/%d/%s", contentID, qualityID, kind)

	playlist, _, err := s.variants.GetOrLoad(ctx, key, func(context.Context) (string, error) {
		return s.packager.Media(contentID, qualityID, live), nil
	})
	if err != nil {
		return "", err
	}

	s.metrics.RecordManifest("variant_" + kind)
	return playlist, nil
}

func (s *ManifestService) Stop() {
	stats := s.variants.Stats()
	s.logger.Infow("variant playlist cache stopped",
		"entries", stats.Size,
		"hits", stats.Hits,
		"misses", stats.Misses,
	)
	s.variants.Stop()
}
