package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/ports"
	"edgestream/pkg/tracing"

	"github.com/redis/go-redis/v9"
)

// RedisSessionRepository stores sessions as JSON values and indexes them in a
// sorted set scored by last-seen time, which drives idle sweeps and LRU eviction.
type RedisSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionRepository creates the repository. ttl is applied to each session key
// as a backstop so abandoned keys disappear even if no sweeper runs.
func NewRedisSessionRepository(client *redis.Client, ttl time.Duration) ports.SessionRepository {
	return &RedisSessionRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisSessionRepository) Create(ctx context.Context, session *domain.Session) (err error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "session.create", "redis")
	defer func() {
		tracing.RecordError(ctx, err)
		span.End()
	}()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ok, err := r.client.SetNX(ctx, sessionKey(session.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to set session in Redis: %w", err)
	}
	if !ok {
		return domain.ErrSessionExists
	}

	return r.index(ctx, session)
}

func (r *RedisSessionRepository) GetByID(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "session.get", "redis")
	defer span.End()

	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *RedisSessionRepository) Update(ctx context.Context, session *domain.Session) (err error) {
	ctx, span := tracing.TraceStoreOperation(ctx, "session.update", "redis")
	defer func() {
		tracing.RecordError(ctx, err)
		span.End()
	}()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ok, err := r.client.SetXX(ctx, sessionKey(session.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to update session in Redis: %w", err)
	}
	if !ok {
		return domain.ErrSessionNotFound
	}

	return r.index(ctx, session)
}

func (r *RedisSessionRepository) Delete(ctx context.Context, id domain.SessionID) error {
	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, sessionKey(id))
	pipe.ZRem(ctx, sessionIndexKey(), string(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session from Redis: %w", err)
	}
	if del.Val() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *RedisSessionRepository) Count(ctx context.Context) (int, error) {
	n, err := r.client.ZCard(ctx, sessionIndexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return int(n), nil
}

func (r *RedisSessionRepository) ListIdle(ctx context.Context, cutoff time.Time) ([]domain.SessionID, error) {
	members, err := r.client.ZRangeByScore(ctx, sessionIndexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list idle sessions: %w", err)
	}

	ids := make([]domain.SessionID, len(members))
	for i, m := range members {
		ids[i] = domain.SessionID(m)
	}
	return ids, nil
}

func (r *RedisSessionRepository) Oldest(ctx context.Context) (domain.SessionID, error) {
	members, err := r.client.ZRange(ctx, sessionIndexKey(), 0, 0).Result()
	if err != nil {
		return "", fmt.Errorf("failed to read session index: %w", err)
	}
	if len(members) == 0 {
		return "", domain.ErrSessionNotFound
	}
	return domain.SessionID(members[0]), nil
}

func (r *RedisSessionRepository) index(ctx context.Context, session *domain.Session) error {
	err := r.client.ZAdd(ctx, sessionIndexKey(), redis.Z{
		Score:  float64(session.LastSeen.UnixMilli()),
		Member: string(session.ID),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}
	return nil
}
