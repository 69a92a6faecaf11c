package ports

import (
	"context"

	"edgestream/internal/core/domain"
)

type ManifestService interface {
	GenerateMaster(ctx context.Context, req domain.MasterRequest) (*domain.MasterManifest, error)
	GenerateVariant(ctx context.Context, contentID string, qualityID int, live bool) (string, error)
}

type SegmentService interface {
	Serve(ctx context.Context, req domain.SegmentRequest) (*domain.SegmentResponse, error)
}

type SessionService interface {
	Create(ctx context.Context, session *domain.Session) error
	Get(ctx context.Context, id domain.SessionID) (*domain.Session, error)
	Update(ctx context.Context, id domain.SessionID, fn func(*domain.Session)) (*domain.Session, error)
	Count(ctx context.Context) (int, error)
}

type BandwidthService interface {
	Update(ctx context.Context, id domain.SessionID, observedBps float64) (float64, error)
	Get(ctx context.Context, id domain.SessionID) float64
	Estimate(ctx context.Context, id domain.SessionID) *domain.BandwidthReport
	RecommendQuality(bandwidthBps float64) domain.QualityLevel
}

type QoEService interface {
	Score(session *domain.Session, events []domain.AnalyticsEvent) float64
	ScoreSession(ctx context.Context, id domain.SessionID) float64
}

type AnalyticsService interface {
	Ingest(ctx context.Context, sessionHint domain.SessionID, events []domain.AnalyticsEvent) (*domain.AnalyticsResult, error)
	Count(ctx context.Context) (int64, error)
}

type AuthService interface {
	ValidatePlayback(ctx context.Context, req domain.PlaybackRequest) (*domain.PlaybackGrant, error)
	VerifySessionToken(token string) (*domain.PlaybackClaims, error)
}

// EdgeSelector picks the simulated point of presence for a session.
type EdgeSelector interface {
	Select(id domain.SessionID) string
	Locations() []string
}

// EventPublisher fans session lifecycle events out to peer edge instances.
type EventPublisher interface {
	PublishSessionCreated(ctx context.Context, session *domain.Session) error
	PublishQoEUpdated(ctx context.Context, id domain.SessionID, score float64) error
}
