package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/ports"
	"edgestream/pkg/backup"

	"go.uber.org/zap"
)

type RestoreOptions struct {
	// Sessions last seen before now-MaxIdle are not restored. 0 restores everything.
	MaxIdle time.Duration
	// OverwriteExisting replaces sessions already present in the store.
	OverwriteExisting bool
}

type RestoreResult struct {
	Snapshot  string
	TakenAt   time.Time
	Sessions  int
	Skipped   int
	Bandwidth int
}

type RestoreService struct {
	snapshots *backup.Service
	sessions  ports.SessionRepository
	bandwidth ports.BandwidthRepository
	logger    *zap.SugaredLogger
	now       func() time.Time
}

func NewRestoreService(
	snapshots *backup.Service,
	sessions ports.SessionRepository,
	bandwidth ports.BandwidthRepository,
	logger *zap.SugaredLogger,
) *RestoreService {
	return &RestoreService{
		snapshots: snapshots,
		sessions:  sessions,
		bandwidth: bandwidth,
		logger:    logger,
		now:       time.Now,
	}
}

// RestoreLatest loads the newest snapshot. A missing snapshot is not an error; the
// result is then empty.
func (rs *RestoreService) RestoreLatest(ctx context.Context, opts RestoreOptions) (*RestoreResult, error) {
	name, err := rs.snapshots.Latest(ctx)
	if errors.Is(err, backup.ErrNoSnapshot) {
		return &RestoreResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find snapshot: %w", err)
	}
	return rs.Restore(ctx, name, opts)
}

func (rs *RestoreService) Restore(ctx context.Context, name string, opts RestoreOptions) (*RestoreResult, error) {
	var state SessionState
	takenAt, err := rs.snapshots.Read(ctx, name, &state)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{Snapshot: name, TakenAt: takenAt}
	restored := make(map[domain.SessionID]bool, len(state.Sessions))

	var cutoff time.Time
	if opts.MaxIdle > 0 {
		cutoff = rs.now().Add(-opts.MaxIdle)
	}

	for _, session := range state.Sessions {
		if session == nil || session.ID == "" {
			continue
		}
		if !cutoff.IsZero() && session.LastSeen.Before(cutoff) {
			result.Skipped++
			continue
		}

		err := rs.sessions.Create(ctx, session)
		if errors.Is(err, domain.ErrSessionExists) {
			if !opts.OverwriteExisting {
				result.Skipped++
				continue
			}
			err = rs.sessions.Update(ctx, session)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to restore session %s: %w", session.ID, err)
		}
		restored[session.ID] = true
		result.Sessions++
	}

	for _, est := range state.Bandwidth {
		if est == nil || !restored[est.SessionID] {
			continue
		}
		snapshot := *est
		_, err := rs.bandwidth.Update(ctx, est.SessionID, func(prior *domain.BandwidthEstimate) *domain.BandwidthEstimate {
			if prior != nil && !opts.OverwriteExisting {
				return prior
			}
			return &snapshot
		})
		if err != nil {
			return nil, fmt.Errorf("failed to restore bandwidth for %s: %w", est.SessionID, err)
		}
		result.Bandwidth++
	}

	rs.logger.Infow("sessions restored from snapshot",
		"snapshot", name,
		"taken_at", takenAt,
		"sessions", result.Sessions,
		"skipped", result.Skipped,
	)
	return result, nil
}
