package contextstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kestrelworks/agentops/internal/task"
)

const redisKeyPrefix = "agentops:ctx:"

// Redis is the session-lived context tier, backed by Redis with a TTL.
type Redis struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis connects a Redis-backed store. ttl <= 0 disables expiry.
func NewRedis(redisURL string, ttl time.Duration, logger *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{rdb: rdb, ttl: ttl, logger: logger}, nil
}

func (r *Redis) Get(ctx context.Context, taskID string) (*task.Result, bool, error) {
	data, err := r.rdb.Get(ctx, redisKeyPrefix+taskID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", taskID, err)
	}

	var res task.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, fmt.Errorf("decode result %s: %w", taskID, err)
	}
	return &res, true, nil
}

func (r *Redis) Set(ctx context.Context, taskID string, res *task.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", taskID, err)
	}
	if err := r.rdb.Set(ctx, redisKeyPrefix+taskID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", taskID, err)
	}
	return nil
}

// Close shuts down the Redis connection.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
