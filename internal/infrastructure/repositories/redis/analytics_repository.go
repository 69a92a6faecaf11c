package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/ports"
	"edgestream/pkg/optimize"

	"github.com/redis/go-redis/v9"
)

// argPool backs the RPUSH argument lists; a request rarely carries more than a few dozen events.
var argPool = optimize.NewSlicePool[interface{}](64)

// RedisAnalyticsRepository keeps a capped list of events per session plus a global counter.
type RedisAnalyticsRepository struct {
	client        *redis.Client
	maxPerSession int64
	ttl           time.Duration
}

func NewRedisAnalyticsRepository(client *redis.Client, maxPerSession int, ttl time.Duration) ports.AnalyticsRepository {
	return &RedisAnalyticsRepository{
		client:        client,
		maxPerSession: int64(maxPerSession),
		ttl:           ttl,
	}
}

func (r *RedisAnalyticsRepository) Append(ctx context.Context, events []domain.AnalyticsEvent) error {
	if len(events) == 0 {
		return nil
	}

	bySession := make(map[domain.SessionID]*[]interface{})
	defer func() {
		for _, args := range bySession {
			argPool.Put(args)
		}
	}()

	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal analytics event: %w", err)
		}
		args, ok := bySession[ev.SessionID]
		if !ok {
			args = argPool.Get()
			bySession[ev.SessionID] = args
		}
		*args = append(*args, data)
	}

	pipe := r.client.Pipeline()
	for id, payloads := range bySession {
		key := eventsKey(id)
		pipe.RPush(ctx, key, *payloads...)
		pipe.LTrim(ctx, key, -r.maxPerSession, -1)
		pipe.Expire(ctx, key, r.ttl)
	}
	pipe.IncrBy(ctx, eventsTotalKey(), int64(len(events)))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append analytics events: %w", err)
	}
	return nil
}

func (r *RedisAnalyticsRepository) ListBySession(ctx context.Context, id domain.SessionID) ([]domain.AnalyticsEvent, error) {
	raw, err := r.client.LRange(ctx, eventsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list analytics events: %w", err)
	}

	events := make([]domain.AnalyticsEvent, 0, len(raw))
	for _, item := range raw {
		var ev domain.AnalyticsEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func (r *RedisAnalyticsRepository) DeleteSession(ctx context.Context, id domain.SessionID) error {
	if err := r.client.Del(ctx, eventsKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete analytics events: %w", err)
	}
	return nil
}

func (r *RedisAnalyticsRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.client.Get(ctx, eventsTotalKey()).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read analytics counter: %w", err)
	}
	return n, nil
}
