/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-backed cache and lock shared between
// signsync instances.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Key prefixes for Redis cache.
const (
	KeyBaseline      = "signsync:cache:baseline:" // + playlist name
	KeyLockPrefix    = "signsync:lock:"
	DefaultLockTTL   = 30 * time.Second
	lockPollInterval = 100 * time.Millisecond
)

// ErrLockTimeout is returned when a lock could not be acquired before ctx ended.
var ErrLockTimeout = errors.New("lock not acquired")

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// DisableOnError turns the cache off after the first Redis failure.
	DisableOnError bool
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool
}

// New creates a new cache instance. An unreachable Redis yields a disabled
// cache rather than an error.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without shared cache")
		_ = client.Close()
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}
	return true, nil
}

func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}
	return nil
}

func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}
	return nil
}

// BaselineSnapshot is the cached state of the baseline playlist.
type BaselineSnapshot struct {
	PlaylistID int64     `json:"playlist_id"`
	Items      []int64   `json:"items"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// GetBaseline returns the cached baseline for name.
func (c *Cache) GetBaseline(ctx context.Context, name string) (BaselineSnapshot, bool) {
	var snap BaselineSnapshot
	found, err := c.get(ctx, KeyBaseline+name, &snap)
	if err != nil || !found {
		return BaselineSnapshot{}, false
	}
	return snap, true
}

// SetBaseline caches the baseline for ttl.
func (c *Cache) SetBaseline(ctx context.Context, name string, snap BaselineSnapshot, ttl time.Duration) error {
	return c.set(ctx, KeyBaseline+name, snap, ttl)
}

// InvalidateBaseline drops the cached baseline.
func (c *Cache) InvalidateBaseline(ctx context.Context, name string) error {
	return c.delete(ctx, KeyBaseline+name)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Lock acquires a named cross-instance lock, polling until ctx ends. The
// returned func releases it. When Redis is unavailable the lock is granted
// locally, since callers already hold an in-process mutex.
func (c *Cache) Lock(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	if !c.IsAvailable() {
		return func() {}, nil
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}

	key := KeyLockPrefix + name
	token := uuid.NewString()
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			c.handleError(err, "lock")
			return func() {}, nil
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := releaseScript.Run(releaseCtx, c.client, []string{key}, token).Err(); err != nil {
					c.logger.Warn().Err(err).Str("lock", name).Msg("failed to release lock")
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, name)
		case <-ticker.C:
		}
	}
}
