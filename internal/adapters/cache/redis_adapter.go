package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zatekoja/dearteddy/backend/internal/domain/providers"
	redisclient "github.com/zatekoja/dearteddy/backend/internal/infrastructure/clients/redis"
)

// ErrCacheMiss is returned by Get when the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// RedisAdapter implements providers.CacheProvider on a shared Redis.
type RedisAdapter struct {
	client *redisclient.Client
}

// NewRedisAdapter creates a new Redis cache adapter
func NewRedisAdapter(client *redisclient.Client) providers.CacheProvider {
	return &RedisAdapter{
		client: client,
	}
}

// Get returns ErrCacheMiss when the key is absent or expired.
func (a *RedisAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := a.client.Client().Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrCacheMiss, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}
	return result, nil
}

func (a *RedisAdapter) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	if err := a.client.Client().Set(ctx, key, value, seconds(expirationSeconds)).Err(); err != nil {
		return fmt.Errorf("failed to set in cache: %w", err)
	}
	return nil
}

// SetIfAbsent maps to SETNX; it backs the per-entry in-flight guard and the
// entry cache fill.
func (a *RedisAdapter) SetIfAbsent(ctx context.Context, key string, value []byte, expirationSeconds int) (bool, error) {
	ok, err := a.client.Client().SetNX(ctx, key, value, seconds(expirationSeconds)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set-if-absent in cache: %w", err)
	}
	return ok, nil
}

func (a *RedisAdapter) Delete(ctx context.Context, key string) error {
	if err := a.client.Client().Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete from cache: %w", err)
	}
	return nil
}

// Increment bumps a counter with INCR and starts its expiry on first use.
// The commands go out in one transaction so a counter can never be left
// without a TTL, and the remaining TTL comes back with the count.
func (a *RedisAdapter) Increment(ctx context.Context, key string, expirationSeconds int) (int64, time.Duration, error) {
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := a.client.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, seconds(expirationSeconds))
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	remaining := ttl.Val()
	if remaining < 0 {
		remaining = seconds(expirationSeconds)
	}
	return incr.Val(), remaining, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
