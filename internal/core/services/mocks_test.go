package services

import (
	"context"
	"testing"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/platform"
	"edgestream/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"
)

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishSessionCreated(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockEventPublisher) PublishQoEUpdated(ctx context.Context, id domain.SessionID, score float64) error {
	args := m.Called(ctx, id, score)
	return args.Error(0)
}

type fixedEdge string

func (e fixedEdge) Select(domain.SessionID) string { return string(e) }
func (e fixedEdge) Locations() []string             { return []string{string(e)} }

// testStack wires the core services over in-memory repositories.
type testStack struct {
	sessions  *SessionService
	bandwidth *BandwidthService
	qoe       *QoEService
	analytics *AnalyticsService
	manifests *ManifestService
	segments  *SegmentService
	publisher *MockEventPublisher
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()

	publisher := &MockEventPublisher{}
	publisher.On("PublishSessionCreated", mock.Anything, mock.Anything).Return(nil).Maybe()
	publisher.On("PublishQoEUpdated", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	analyticsRepo := memory.NewMemoryAnalyticsRepository(1000)
	sessions := NewSessionService(memory.NewMemorySessionRepository(), SessionConfig{}, nil, logger)
	bandwidth := NewBandwidthService(memory.NewMemoryBandwidthRepository(), domain.DefaultLadder, nil, logger)
	qoe := NewQoEService(sessions, analyticsRepo, domain.DefaultLadder, logger)

	st := &testStack{
		sessions:  sessions,
		bandwidth: bandwidth,
		qoe:       qoe,
		analytics: NewAnalyticsService(analyticsRepo, sessions, bandwidth, qoe, publisher, 100, nil, logger),
		manifests: NewManifestService(domain.DefaultLadder, platform.NewRegistry(), sessions, bandwidth, fixedEdge("us-east-1"), publisher, 0, nil, logger),
		segments:  NewSegmentService(domain.DefaultLadder, sessions, fixedEdge("us-east-1"), 31536000, nil, logger),
		publisher: publisher,
	}
	t.Cleanup(st.manifests.Stop)
	return st
}
