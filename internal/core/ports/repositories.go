package ports

import (
	"context"
	"time"

	"edgestream/internal/core/domain"
)

type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id domain.SessionID) (*domain.Session, error)
	Update(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, id domain.SessionID) error
	Count(ctx context.Context) (int, error)
	// ListIdle returns sessions whose LastSeen is before cutoff.
	ListIdle(ctx context.Context, cutoff time.Time) ([]domain.SessionID, error)
	// Oldest returns the least recently seen session.
	Oldest(ctx context.Context) (domain.SessionID, error)
}

// BandwidthRepository stores one estimate per session. Update applies fn atomically;
// prior is nil when no estimate has been recorded yet.
type BandwidthRepository interface {
	Get(ctx context.Context, id domain.SessionID) (*domain.BandwidthEstimate, error)
	Update(ctx context.Context, id domain.SessionID, fn func(prior *domain.BandwidthEstimate) *domain.BandwidthEstimate) (*domain.BandwidthEstimate, error)
	Delete(ctx context.Context, id domain.SessionID) error
}

type AnalyticsRepository interface {
	Append(ctx context.Context, events []domain.AnalyticsEvent) error
	ListBySession(ctx context.Context, id domain.SessionID) ([]domain.AnalyticsEvent, error)
	DeleteSession(ctx context.Context, id domain.SessionID) error
	Count(ctx context.Context) (int64, error)
}
