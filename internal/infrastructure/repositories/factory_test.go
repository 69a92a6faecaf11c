package repositories

import (
	"context"
	"testing"

	"edgestream/internal/infrastructure/repositories/memory"
	"edgestream/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRepositoryFactory_MemoryByDefault(t *testing.T) {
	cfg := config.DefaultConfig()
	f := NewRepositoryFactory(cfg, zaptest.NewLogger(t).Sugar())
	defer f.Close()

	assert.False(t, f.UsingRedis())
	assert.Nil(t, f.RedisClient())
	assert.IsType(t, &memory.MemorySessionRepository{}, f.CreateSessionRepository())
	assert.IsType(t, &memory.MemoryBandwidthRepository{}, f.CreateBandwidthRepository())
	assert.IsType(t, &memory.MemoryAnalyticsRepository{}, f.CreateAnalyticsRepository())
	require.NoError(t, f.HealthCheck(context.Background()))
}

func TestRepositoryFactory_FallsBackWhenRedisUnreachable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Address = "127.0.0.1:1"

	f := NewRepositoryFactory(cfg, zaptest.NewLogger(t).Sugar())
	defer f.Close()

	assert.False(t, f.UsingRedis())
	assert.IsType(t, &memory.MemorySessionRepository{}, f.CreateSessionRepository())
}
