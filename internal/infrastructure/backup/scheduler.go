// Package backup snapshots the in-memory session state so an edge restart does not lose it.
package backup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/ports"
	"edgestream/pkg/backup"
	"edgestream/pkg/retry"

	"go.uber.org/zap"
)

// SessionState is the snapshot payload.
type SessionState struct {
	Sessions  []*domain.Session           `json:"sessions"`
	Bandwidth []*domain.BandwidthEstimate `json:"bandwidth"`
}

type Config struct {
	Interval time.Duration
	Retain   int
	// WriteRetry covers transient storage failures; zero means retry.DefaultConfig.
	WriteRetry retry.Config
}

// Scheduler writes a snapshot every Interval and keeps the newest Retain of them.
type Scheduler struct {
	snapshots *backup.Service
	sessions  ports.SessionRepository
	bandwidth ports.BandwidthRepository
	cfg       Config
	logger    *zap.SugaredLogger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewScheduler(
	snapshots *backup.Service,
	sessions ports.SessionRepository,
	bandwidth ports.BandwidthRepository,
	cfg Config,
	logger *zap.SugaredLogger,
) *Scheduler {
	if cfg.Retain < 1 {
		cfg.Retain = 1
	}
	if cfg.WriteRetry.MaxAttempts == 0 {
		cfg.WriteRetry = retry.DefaultConfig()
	}
	return &Scheduler{
		snapshots: snapshots,
		sessions:  sessions,
		bandwidth: bandwidth,
		cfg:       cfg,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	if s.cfg.Interval <= 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.run(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the ticker and takes one final snapshot with ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	name, n, err := s.Capture(ctx)
	if err != nil {
		s.logger.Errorw("session snapshot failed", "error", err)
		return
	}
	s.logger.Infow("session snapshot written", "snapshot", name, "sessions", n)

	if deleted, err := s.snapshots.Prune(ctx, s.cfg.Retain); err != nil {
		s.logger.Warnw("failed to prune snapshots", "error", err)
	} else if deleted > 0 {
		s.logger.Debugw("old snapshots pruned", "count", deleted)
	}
}

// Capture writes one snapshot and returns its name and session count.
func (s *Scheduler) Capture(ctx context.Context) (string, int, error) {
	state, err := s.collect(ctx)
	if err != nil {
		return "", 0, err
	}
	var name string
	err = retry.Retry(ctx, s.cfg.WriteRetry, func(ctx context.Context) error {
		var werr error
		name, werr = s.snapshots.Write(ctx, state)
		return werr
	})
	if err != nil {
		return "", 0, err
	}
	return name, len(state.Sessions), nil
}

func (s *Scheduler) collect(ctx context.Context) (*SessionState, error) {
	// every session was seen before the far future
	ids, err := s.sessions.ListIdle(ctx, time.Now().Add(100*365*24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	state := &SessionState{
		Sessions:  make([]*domain.Session, 0, len(ids)),
		Bandwidth: make([]*domain.BandwidthEstimate, 0, len(ids)),
	}
	for _, id := range ids {
		session, err := s.sessions.GetByID(ctx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue // evicted mid-snapshot
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read session %s: %w", id, err)
		}
		state.Sessions = append(state.Sessions, session)

		est, err := s.bandwidth.Get(ctx, id)
		if err == nil && est != nil {
			state.Bandwidth = append(state.Bandwidth, est)
		}
	}
	return state, nil
}
