package memory

import (
	"context"
	"sync"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/ports"
)

// DefaultMaxEventsPerSession bounds each session's log; older events are dropped first.
const DefaultMaxEventsPerSession = 1000

type MemoryAnalyticsRepository struct {
	events     map[domain.SessionID][]domain.AnalyticsEvent
	total      int64
	maxPerSess int
	mu         sync.RWMutex
}

func NewMemoryAnalyticsRepository(maxPerSession int) ports.AnalyticsRepository {
	if maxPerSession <= 0 {
		maxPerSession = DefaultMaxEventsPerSession
	}
	return &MemoryAnalyticsRepository{
		events:     make(map[domain.SessionID][]domain.AnalyticsEvent),
		maxPerSess: maxPerSession,
	}
}

func (r *MemoryAnalyticsRepository) Append(ctx context.Context, events []domain.AnalyticsEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ev := range events {
		log := append(r.events[ev.SessionID], ev)
		if len(log) > r.maxPerSess {
			log = log[len(log)-r.maxPerSess:]
		}
		r.events[ev.SessionID] = log
		r.total++
	}
	return nil
}

func (r *MemoryAnalyticsRepository) ListBySession(ctx context.Context, id domain.SessionID) ([]domain.AnalyticsEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log := r.events[id]
	out := make([]domain.AnalyticsEvent, len(log))
	copy(out, log)
	return out, nil
}

func (r *MemoryAnalyticsRepository) DeleteSession(ctx context.Context, id domain.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, id)
	return nil
}

// Count is the number of events ever accepted, including ones since trimmed.
func (r *MemoryAnalyticsRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total, nil
}
