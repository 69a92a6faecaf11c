package memory

import (
	"context"
	"sync"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/ports"
)

type MemoryBandwidthRepository struct {
	estimates map[domain.SessionID]domain.BandwidthEstimate
	mu        sync.Mutex
}

func NewMemoryBandwidthRepository() ports.BandwidthRepository {
	return &MemoryBandwidthRepository{
		estimates: make(map[domain.SessionID]domain.BandwidthEstimate),
	}
}

func (r *MemoryBandwidthRepository) Get(ctx context.Context, id domain.SessionID) (*domain.BandwidthEstimate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	est, exists := r.estimates[id]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}
	return &est, nil
}

func (r *MemoryBandwidthRepository) Update(
	ctx context.Context,
	id domain.SessionID,
	fn func(prior *domain.BandwidthEstimate) *domain.BandwidthEstimate,
) (*domain.BandwidthEstimate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var prior *domain.BandwidthEstimate
	if est, exists := r.estimates[id]; exists {
		prior = &est
	}

	next := fn(prior)
	r.estimates[id] = *next

	out := *next
	return &out, nil
}

func (r *MemoryBandwidthRepository) Delete(ctx context.Context, id domain.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.estimates, id)
	return nil
}
