package memory

import (
	"context"
	"sync"
	"time"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/ports"
)

type MemorySessionRepository struct {
	sessions map[domain.SessionID]*domain.Session
	mu       sync.RWMutex
}

func NewMemorySessionRepository() ports.SessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[domain.SessionID]*domain.Session),
	}
}

func (r *MemorySessionRepository) Create(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; exists {
		return domain.ErrSessionExists
	}

	r.sessions[session.ID] = cloneSession(session)
	return nil
}

func (r *MemorySessionRepository) GetByID(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[id]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}

	return cloneSession(session), nil
}

func (r *MemorySessionRepository) Update(ctx context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; !exists {
		return domain.ErrSessionNotFound
	}

	r.sessions[session.ID] = cloneSession(session)
	return nil
}

func (r *MemorySessionRepository) Delete(ctx context.Context, id domain.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; !exists {
		return domain.ErrSessionNotFound
	}

	delete(r.sessions, id)
	return nil
}

func (r *MemorySessionRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions), nil
}

func (r *MemorySessionRepository) ListIdle(ctx context.Context, cutoff time.Time) ([]domain.SessionID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var idle []domain.SessionID
	for id, session := range r.sessions {
		if session.LastSeen.Before(cutoff) {
			idle = append(idle, id)
		}
	}

	return idle, nil
}

func (r *MemorySessionRepository) Oldest(ctx context.Context) (domain.SessionID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		oldestID   domain.SessionID
		oldestSeen time.Time
	)
	for id, session := range r.sessions {
		if oldestID == "" || session.LastSeen.Before(oldestSeen) {
			oldestID = id
			oldestSeen = session.LastSeen
		}
	}

	if oldestID == "" {
		return "", domain.ErrSessionNotFound
	}
	return oldestID, nil
}

// Callers get their own copy so mutations never leak into the map unlocked.
func cloneSession(s *domain.Session) *domain.Session {
	c := *s
	c.QualityIDs = append([]int(nil), s.QualityIDs...)
	return &c
}
