package repositories

import (
	"context"
	"time"

	"edgestream/internal/core/ports"
	"edgestream/internal/infrastructure/repositories/memory"
	redisrepo "edgestream/internal/infrastructure/repositories/redis"
	"edgestream/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories, falling back to memory when Redis is disabled or unreachable.
type RepositoryFactory struct {
	useRedis      bool
	redisClient   *redis.Client
	ttl           time.Duration
	maxPerSession int
	logger        *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) *RepositoryFactory {
	factory := &RepositoryFactory{
		useRedis:      cfg.Redis.Enabled,
		ttl:           cfg.Sessions.TTL,
		maxPerSession: cfg.Analytics.MaxEventsPerSession,
		logger:        logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(redisrepo.Options{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory
}

// UsingRedis reports whether repositories are backed by Redis.
func (f *RepositoryFactory) UsingRedis() bool {
	return f.useRedis && f.redisClient != nil
}

// RedisClient returns the shared client, or nil when running on memory repositories.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	if !f.UsingRedis() {
		return nil
	}
	return f.redisClient
}

func (f *RepositoryFactory) CreateSessionRepository() ports.SessionRepository {
	if f.UsingRedis() {
		return redisrepo.NewRedisSessionRepository(f.redisClient, f.ttl)
	}
	return memory.NewMemorySessionRepository()
}

func (f *RepositoryFactory) CreateBandwidthRepository() ports.BandwidthRepository {
	if f.UsingRedis() {
		return redisrepo.NewRedisBandwidthRepository(f.redisClient, f.ttl)
	}
	return memory.NewMemoryBandwidthRepository()
}

func (f *RepositoryFactory) CreateAnalyticsRepository() ports.AnalyticsRepository {
	if f.UsingRedis() {
		return redisrepo.NewRedisAnalyticsRepository(f.redisClient, f.maxPerSession, f.ttl)
	}
	return memory.NewMemoryAnalyticsRepository(f.maxPerSession)
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.UsingRedis() {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
