package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"edgestream/internal/infrastructure/repositories/memory"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHealthChecker_AllHealthy(t *testing.T) {
	h := NewHealthChecker()
	h.AddSessionStoreCheck(memory.NewMemorySessionRepository(), time.Second)
	h.AddCheck("noop", time.Second, func(context.Context) error { return nil })

	status := h.CheckAll(context.Background())
	assert.Equal(t, StatusHealthy, status.Status)
	assert.Equal(t, map[string]string{"session_store": StatusHealthy, "noop": StatusHealthy}, status.Checks)
	assert.True(t, h.IsReady(context.Background()))
}

func TestHealthChecker_FailingCheck(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("ok", time.Second, func(context.Context) error { return nil })
	h.AddCheck("store", time.Second, func(context.Context) error { return errors.New("connection refused") })

	status := h.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "connection refused", status.Checks["store"])
	assert.Equal(t, StatusHealthy, status.Checks["ok"])
	assert.False(t, h.IsReady(context.Background()))
}

func TestHealthChecker_Timeout(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := h.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"])
}

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	c.SetActiveSessions(4)
	c.RecordSegment(206, 1000)
	c.RecordSegment(200, 1048576)
	c.RecordManifest("master")
	c.RecordAnalyticsEvent("rebuffer")
	c.RecordAnalyticsEvent("")
	c.RecordSessionEvicted("idle")
	c.ObserveQoEScore(4.5)
	c.ObserveHTTPRequest("GET", "", 404, time.Millisecond)

	assert.Equal(t, 4.0, testutil.ToFloat64(c.activeSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.segmentsServed.WithLabelValues("206")))
	assert.Equal(t, 1049576.0, testutil.ToFloat64(c.segmentBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.analyticsEvents.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sessionsEvicted.WithLabelValues("idle")))

	// A second collector on a fresh registry must not collide.
	assert.NotPanics(t, func() { NewPrometheusCollector(prometheus.NewRegistry()) })
}
