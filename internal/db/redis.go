package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore wraps a redis client for widget state and script caching.
type RedisStore struct {
	Client *redis.Client
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(ctx context.Context, addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
	}

	// Add OpenTelemetry instrumentation to Redis client
	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{Client: client}
}

func widgetKey(pageViewID string) string { return "nativery:state:" + pageViewID }

func scriptKey(url string) string { return "script:" + url }

// InitWidgetState stores state for the page view unless one already exists
// and returns whichever state is stored. The first writer wins.
func (r *RedisStore) InitWidgetState(ctx context.Context, pageViewID string, state []byte, ttl time.Duration) ([]byte, error) {
	key := widgetKey(pageViewID)
	ok, err := r.Client.SetNX(ctx, key, state, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("setnx %s: %w", key, err)
	}
	if ok {
		return state, nil
	}
	stored, err := r.Client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return stored, nil
}

// GetScript returns a cached script body.
func (r *RedisStore) GetScript(ctx context.Context, url string) ([]byte, bool, error) {
	body, err := r.Client.Get(ctx, scriptKey(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}

// PutScript caches a script body for ttl.
func (r *RedisStore) PutScript(ctx context.Context, url string, body []byte, ttl time.Duration) error {
	return r.Client.Set(ctx, scriptKey(url), body, ttl).Err()
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
