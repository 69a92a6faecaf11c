package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/ports"

	"go.uber.org/zap"
)

const sessionLockStripes = 64

// EvictionHook runs after a session is removed so dependent stores can drop its data.
type EvictionHook func(ctx context.Context, id domain.SessionID)

// SweepLock serializes idle sweeps across instances sharing one session store.
type SweepLock interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	// MaxSessions caps live sessions; the least recently seen one is evicted to make room. 0 disables the cap.
	MaxSessions int
	// SweepLock is optional. Without it every instance sweeps.
	SweepLock SweepLock
}

type SessionService struct {
	repo    ports.SessionRepository
	cfg     SessionConfig
	metrics Metrics
	logger  *zap.SugaredLogger
	now     func() time.Time

	locks [sessionLockStripes]sync.Mutex
	// createMu makes count, evict and insert one step so the cap holds under concurrent creates.
	createMu sync.Mutex

	hooksMu sync.RWMutex
	hooks   []EvictionHook

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSessionService(repo ports.SessionRepository, cfg SessionConfig, metrics Metrics, logger *zap.SugaredLogger) *SessionService {
	return &SessionService{
		repo:    repo,
		cfg:     cfg,
		metrics: metricsOrNop(metrics),
		logger:  logger,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

func (s *SessionService) OnEvict(hook EvictionHook) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, hook)
}

func (s *SessionService) lockFor(id domain.SessionID) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &s.locks[h.Sum32()%sessionLockStripes]
}

func (s *SessionService) Create(ctx context.Context, session *domain.Session) error {
	now := s.now()
	if session.StartTime.IsZero() {
		session.StartTime = now
	}
	session.LastSeen = now

	if err := s.insert(ctx, session); err != nil {
		return err
	}

	s.reportCount(ctx)
	s.logger.Infow("session created",
		"session_id", session.ID,
		"content_id", session.ContentID,
		"device_type", session.DeviceType,
		"edge_location", session.EdgeLocation,
	)
	return nil
}

func (s *SessionService) insert(ctx context.Context, session *domain.Session) error {
	if s.cfg.MaxSessions > 0 {
		s.createMu.Lock()
		defer s.createMu.Unlock()

		if err := s.makeRoom(ctx); err != nil {
			return err
		}
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *SessionService) makeRoom(ctx context.Context) error {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count sessions: %w", err)
	}

	for ; count >= s.cfg.MaxSessions; count-- {
		oldest, err := s.repo.Oldest(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				return nil
			}
			return fmt.Errorf("failed to find oldest session: %w", err)
		}
		s.evict(ctx, oldest, "capacity")
	}
	return nil
}

func (s *SessionService) Get(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	return s.repo.GetByID(ctx, id)
}

// Update applies fn to the stored session and refreshes LastSeen. Updates to the same
// session are serialized.
func (s *SessionService) Update(ctx context.Context, id domain.SessionID, fn func(*domain.Session)) (*domain.Session, error) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if fn != nil {
		fn(session)
	}
	session.ID = id
	session.LastSeen = s.now()

	if err := s.repo.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	return session, nil
}

func (s *SessionService) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Sweep evicts every session idle for longer than the TTL and returns how many were removed.
func (s *SessionService) Sweep(ctx context.Context) (int, error) {
	if s.cfg.TTL <= 0 {
		return 0, nil
	}

	idle, err := s.repo.ListIdle(ctx, s.now().Add(-s.cfg.TTL))
	if err != nil {
		return 0, fmt.Errorf("failed to list idle sessions: %w", err)
	}

	for _, id := range idle {
		s.evict(ctx, id, "idle")
	}
	if len(idle) > 0 {
		s.reportCount(ctx)
		s.logger.Infow("idle sessions swept", "count", len(idle))
	}
	return len(idle), nil
}

func (s *SessionService) evict(ctx context.Context, id domain.SessionID, reason string) {
	if err := s.repo.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		s.logger.Warnw("failed to evict session", "session_id", id, "reason", reason, "error", err)
		return
	}

	s.hooksMu.RLock()
	hooks := append([]EvictionHook(nil), s.hooks...)
	s.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(ctx, id)
	}

	s.metrics.RecordSessionEvicted(reason)
	s.logger.Debugw("session evicted", "session_id", id, "reason", reason)
}

func (s *SessionService) reportCount(ctx context.Context) {
	if n, err := s.repo.Count(ctx); err == nil {
		s.metrics.SetActiveSessions(n)
	}
}

// Start runs the idle sweep on SweepInterval until Stop or ctx is done.
func (s *SessionService) Start(ctx context.Context) {
	if s.cfg.SweepInterval <= 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweepOnce(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// sweepOnce skips the round when another instance holds the sweep lock.
func (s *SessionService) sweepOnce(ctx context.Context) bool {
	if lock := s.cfg.SweepLock; lock != nil {
		held, err := lock.TryLock(ctx)
		if err != nil {
			s.logger.Warnw("sweep lock unavailable", "error", err)
			return false
		}
		if !held {
			return false
		}
		defer func() {
			if err := lock.Unlock(ctx); err != nil {
				s.logger.Warnw("failed to release sweep lock", "error", err)
			}
		}()
	}

	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Errorw("session sweep failed", "error", err)
		return false
	}
	return true
}

func (s *SessionService) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}
