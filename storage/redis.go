package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/chemgate/chemgate/types"
)

const runPrefix = "run:"

// RedisStore is a Redis-backed implementation of Storage.
type RedisStore struct {
	client *redis.Client
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// NewRedisStore creates a RedisStore and verifies connectivity.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return &RedisStore{client: client}, nil
}

// withContextError handles context cancellation for operations that only
// return an error.
func withContextError(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}

// SaveRun saves a run to Redis as a JSON blob.
func (s *RedisStore) SaveRun(ctx context.Context, run types.WorkflowRun) error {
	return withContextError(ctx, func() error {
		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("failed to marshal run %d: %v", run.ID, err)
		}
		key := fmt.Sprintf("%s%d", runPrefix, run.ID)
		if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
			return fmt.Errorf("failed to set %s in Redis: %v", key, err)
		}
		return nil
	})
}

// GetRun retrieves a run from Redis.
func (s *RedisStore) GetRun(ctx context.Context, id uint64) (types.WorkflowRun, error) {
	return withContext(ctx, func() (types.WorkflowRun, error) {
		key := fmt.Sprintf("%s%d", runPrefix, id)
		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return types.WorkflowRun{}, fmt.Errorf("%w: id=%d", ErrRunNotFound, id)
		} else if err != nil {
			return types.WorkflowRun{}, fmt.Errorf("failed to get %s from Redis: %v", key, err)
		}

		var run types.WorkflowRun
		if err := json.Unmarshal(data, &run); err != nil {
			return types.WorkflowRun{}, fmt.Errorf("failed to unmarshal %s: %v", key, err)
		}
		return run, nil
	})
}

// ClearTerminal removes completed, failed and aborted runs using pipelining.
func (s *RedisStore) ClearTerminal(ctx context.Context) error {
	return withContextError(ctx, func() error {
		keys, err := s.client.Keys(ctx, runPrefix+"*").Result()
		if err != nil {
			return fmt.Errorf("failed to scan run keys: %v", err)
		}
		if len(keys) == 0 {
			return nil
		}

		pipe := s.client.Pipeline()
		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			} else if err != nil {
				return fmt.Errorf("failed to get %s: %v", key, err)
			}

			var run types.WorkflowRun
			if err := json.Unmarshal(data, &run); err != nil {
				return fmt.Errorf("failed to unmarshal %s: %v", key, err)
			}
			if run.Terminal() {
				pipe.Del(ctx, key)
			}
		}

		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to execute pipeline for deletion: %v", err)
		}
		return nil
	})
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
