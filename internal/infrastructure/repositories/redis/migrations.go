package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const schemaVersionKey = keyPrefix + "schema:version"

// step upgrades the keyspace by one schema version.
type step struct {
	version int
	desc    string
	apply   func(ctx context.Context, client *redis.Client) error
}

var steps = []step{
	{
		version: 1,
		desc:    "session index as sorted set",
		apply: func(ctx context.Context, client *redis.Client) error {
			typ, err := client.Type(ctx, sessionIndexKey()).Result()
			if err != nil {
				return err
			}
			// older deployments kept a plain set; it is rebuilt on the next Save
			if typ != "none" && typ != "zset" {
				return client.Del(ctx, sessionIndexKey()).Err()
			}
			return nil
		},
	},
	{
		version: 2,
		desc:    "analytics event counter",
		apply: func(ctx context.Context, client *redis.Client) error {
			return client.SetNX(ctx, eventsTotalKey(), 0, 0).Err()
		},
	},
}

func latestSchemaVersion() int {
	latest := 0
	for _, s := range steps {
		if s.version > latest {
			latest = s.version
		}
	}
	return latest
}

// Migrate brings the Redis keyspace up to the latest schema version.
// Steps are applied in version order and the stored version advances after each one,
// so an interrupted run resumes where it stopped.
func Migrate(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) error {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	stored, err := client.Get(ctx, schemaVersionKey).Int()
	if errors.Is(err, redis.Nil) {
		stored = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	target := latestSchemaVersion()
	if stored >= target {
		logger.Debugw("redis schema current", "version", stored)
		return nil
	}

	pending := make([]step, 0, len(steps))
	for _, s := range steps {
		if s.version > stored {
			pending = append(pending, s)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].version < pending[j].version })

	for _, s := range pending {
		if err := s.apply(ctx, client); err != nil {
			return fmt.Errorf("schema step %d (%s): %w", s.version, s.desc, err)
		}
		if err := client.Set(ctx, schemaVersionKey, s.version, 0).Err(); err != nil {
			return fmt.Errorf("record schema version %d: %w", s.version, err)
		}
		logger.Infow("redis schema step applied", "version", s.version, "step", s.desc)
	}
	return nil
}
