package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 5

type RedisBandwidthRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisBandwidthRepository(client *redis.Client, ttl time.Duration) ports.BandwidthRepository {
	return &RedisBandwidthRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisBandwidthRepository) Get(ctx context.Context, id domain.SessionID) (*domain.BandwidthEstimate, error) {
	data, err := r.client.Get(ctx, bandwidthKey(id)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bandwidth estimate: %w", err)
	}

	var est domain.BandwidthEstimate
	if err := json.Unmarshal(data, &est); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bandwidth estimate: %w", err)
	}
	return &est, nil
}

// Update runs fn inside WATCH/MULTI so concurrent samples for one session never
// overwrite each other.
func (r *RedisBandwidthRepository) Update(
	ctx context.Context,
	id domain.SessionID,
	fn func(prior *domain.BandwidthEstimate) *domain.BandwidthEstimate,
) (*domain.BandwidthEstimate, error) {
	key := bandwidthKey(id)
	var next *domain.BandwidthEstimate

	txf := func(tx *redis.Tx) error {
		var prior *domain.BandwidthEstimate
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == redis.Nil:
		case err != nil:
			return err
		default:
			var est domain.BandwidthEstimate
			if err := json.Unmarshal(data, &est); err != nil {
				return fmt.Errorf("failed to unmarshal bandwidth estimate: %w", err)
			}
			prior = &est
		}

		next = fn(prior)
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal bandwidth estimate: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return next, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, fmt.Errorf("failed to update bandwidth estimate: %w", err)
	}

	return nil, fmt.Errorf("failed to update bandwidth estimate: too much contention on %s", key)
}

func (r *RedisBandwidthRepository) Delete(ctx context.Context, id domain.SessionID) error {
	if err := r.client.Del(ctx, bandwidthKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete bandwidth estimate: %w", err)
	}
	return nil
}
