package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis snapshot cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
	TTL      time.Duration
}

// RedisCache stores the last snapshot as JSON under a single key.
type RedisCache struct {
	cli *redis.Client
	key string
	ttl time.Duration
}

// NewRedisCache creates a Redis-backed snapshot cache.
func NewRedisCache(cfg RedisConfig) *RedisCache {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	return NewRedisCacheWithClient(rdb, cfg.Key, cfg.TTL)
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(cli *redis.Client, key string, ttl time.Duration) *RedisCache {
	if key == "" {
		key = "alertdash:snapshot"
	}
	return &RedisCache{cli: cli, key: key, ttl: ttl}
}

// Save writes the snapshot with the configured TTL.
func (r *RedisCache) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := r.cli.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

// Load reads the snapshot; a missing key yields nil, nil.
func (r *RedisCache) Load(ctx context.Context) (*Snapshot, error) {
	data, err := r.cli.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Ping checks the connection.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.cli.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *RedisCache) Close() error {
	return r.cli.Close()
}
