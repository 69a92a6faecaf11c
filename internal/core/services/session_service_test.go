package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"edgestream/internal/core/domain"
	"edgestream/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingMetrics struct {
	NopMetrics
	mu      sync.Mutex
	evicted map[string]int
	active  int
}

func (m *recordingMetrics) RecordSessionEvicted(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.evicted == nil {
		m.evicted = map[string]int{}
	}
	m.evicted[reason]++
}

func (m *recordingMetrics) SetActiveSessions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = n
}

func newSessionService(t *testing.T, cfg SessionConfig, metrics Metrics) (*SessionService, *time.Time) {
	t.Helper()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewSessionService(memory.NewMemorySessionRepository(), cfg, metrics, zaptest.NewLogger(t).Sugar())
	svc.now = func() time.Time { return now }
	return svc, &now
}

func TestSessionService_CreateStampsTimes(t *testing.T) {
	svc, now := newSessionService(t, SessionConfig{}, nil)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, &domain.Session{ID: "s1"}))

	got, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.StartTime.Equal(*now))
	assert.True(t, got.LastSeen.Equal(*now))

	assert.ErrorIs(t, svc.Create(ctx, &domain.Session{ID: "s1"}), domain.ErrSessionExists)
}

func TestSessionService_UpdateTouches(t *testing.T) {
	svc, now := newSessionService(t, SessionConfig{}, nil)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, &domain.Session{ID: "s1"}))

	*now = now.Add(time.Minute)
	updated, err := svc.Update(ctx, "s1", func(s *domain.Session) { s.EdgeLocation = "eu-west-1" })
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", updated.EdgeLocation)
	assert.True(t, updated.LastSeen.Equal(*now))

	_, err = svc.Update(ctx, "missing", nil)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionService_ConcurrentUpdatesAreSerialized(t *testing.T) {
	svc, _ := newSessionService(t, SessionConfig{}, nil)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, &domain.Session{ID: "s1"}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Update(ctx, "s1", func(s *domain.Session) { s.QualityIDs = append(s.QualityIDs, i) })
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, got.QualityIDs, 50)
}

func TestSessionService_SweepEvictsIdleAndRunsHooks(t *testing.T) {
	metrics := &recordingMetrics{}
	svc, now := newSessionService(t, SessionConfig{TTL: 30 * time.Minute}, metrics)
	ctx := context.Background()

	var evicted []domain.SessionID
	svc.OnEvict(func(_ context.Context, id domain.SessionID) { evicted = append(evicted, id) })

	require.NoError(t, svc.Create(ctx, &domain.Session{ID: "old"}))
	*now = now.Add(20 * time.Minute)
	require.NoError(t, svc.Create(ctx, &domain.Session{ID: "fresh"}))
	*now = now.Add(15 * time.Minute)

	n, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []domain.SessionID{"old"}, evicted)
	assert.Equal(t, 1, metrics.evicted["idle"])
	assert.Equal(t, 1, metrics.active)

	_, err = svc.Get(ctx, "old")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = svc.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestSessionService_CapacityEvictsLeastRecentlySeen(t *testing.T) {
	metrics := &recordingMetrics{}
	svc, now := newSessionService(t, SessionConfig{MaxSessions: 3}, metrics)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Create(ctx, &domain.Session{ID: domain.SessionID(fmt.Sprintf("s%d", i))}))
		*now = now.Add(time.Second)
	}
	// s0 becomes the most recently seen.
	_, err := svc.Update(ctx, "s0", nil)
	require.NoError(t, err)
	*now = now.Add(time.Second)

	require.NoError(t, svc.Create(ctx, &domain.Session{ID: "s3"}))

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	_, err = svc.Get(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Equal(t, 1, metrics.evicted["capacity"])
}

func TestSessionService_ConcurrentCreatesRespectCapacity(t *testing.T) {
	metrics := &recordingMetrics{}
	svc, _ := newSessionService(t, SessionConfig{MaxSessions: 5}, metrics)
	ctx := context.Background()

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			assert.NoError(t, svc.Create(ctx, &domain.Session{ID: domain.SessionID(fmt.Sprintf("s%d", i))}))
		}(i)
	}
	close(start)
	wg.Wait()

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.Equal(t, 45, metrics.evicted["capacity"])
}

func TestSessionService_StartStop(t *testing.T) {
	svc, _ := newSessionService(t, SessionConfig{TTL: time.Minute, SweepInterval: 10 * time.Millisecond}, nil)
	svc.Start(context.Background())
	svc.Stop()
	svc.Stop()
}

type fakeSweepLock struct {
	held     bool
	err      error
	acquired int
	released int
}

func (l *fakeSweepLock) TryLock(context.Context) (bool, error) {
	if l.err != nil || l.held {
		return false, l.err
	}
	l.acquired++
	return true, nil
}

func (l *fakeSweepLock) Unlock(context.Context) error {
	l.released++
	return nil
}

func TestSessionService_SweepLock(t *testing.T) {
	tests := []struct {
		name      string
		lock      *fakeSweepLock
		wantSwept bool
	}{
		{"acquired", &fakeSweepLock{}, true},
		{"held elsewhere", &fakeSweepLock{held: true}, false},
		{"store down", &fakeSweepLock{err: fmt.Errorf("connection refused")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, now := newSessionService(t, SessionConfig{TTL: time.Minute, SweepLock: tt.lock}, nil)
			ctx := context.Background()
			require.NoError(t, svc.Create(ctx, &domain.Session{ID: "idle"}))
			*now = now.Add(2 * time.Minute)

			assert.Equal(t, tt.wantSwept, svc.sweepOnce(ctx))
			assert.Equal(t, tt.lock.acquired, tt.lock.released)

			_, err := svc.Get(ctx, "idle")
			if tt.wantSwept {
				assert.ErrorIs(t, err, domain.ErrSessionNotFound)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
