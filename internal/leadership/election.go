/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership elects one instance to run the periodic repair loop.
package leadership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/signsync/internal/telemetry"
)

const (
	defaultElectionKey     = "signsync:leader:repair"
	defaultLeaseDuration   = 15 * time.Second
	defaultRenewalInterval = 5 * time.Second
)

// Lease is the shared lock backing the election.
type Lease interface {
	// Acquire takes or renews the lease for id. It reports whether id holds it.
	Acquire(ctx context.Context, key, id string, ttl time.Duration) (bool, error)
	// Release drops the lease if id still holds it.
	Release(ctx context.Context, key, id string) error
	Close() error
}

// ElectionConfig configures leader election behavior.
type ElectionConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ElectionKey is the Redis key used for leader election.
	ElectionKey string

	// LeaseDuration is how long the leader lease is valid.
	LeaseDuration time.Duration

	// RenewalInterval is how often every instance campaigns. It must be
	// shorter than LeaseDuration.
	RenewalInterval time.Duration

	// InstanceID uniquely identifies this instance.
	InstanceID string
}

func (c *ElectionConfig) applyDefaults() {
	if c.ElectionKey == "" {
		c.ElectionKey = defaultElectionKey
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = defaultLeaseDuration
	}
	if c.RenewalInterval <= 0 {
		c.RenewalInterval = defaultRenewalInterval
	}
	if c.InstanceID == "" {
		c.InstanceID = uuid.NewString()
	}
}

// Election manages distributed leader election.
type Election struct {
	lease  Lease
	config ElectionConfig
	logger zerolog.Logger

	isLeader atomic.Bool
	leaderCh chan bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewElection connects to Redis and creates an election.
func NewElection(config ElectionConfig, logger zerolog.Logger) (*Election, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info().Str("redis_addr", config.RedisAddr).Msg("connected to Redis for leader election")
	return NewElectionWithLease(config, &redisLease{client: client}, logger), nil
}

// NewElectionWithLease creates an election over an existing lease.
func NewElectionWithLease(config ElectionConfig, lease Lease, logger zerolog.Logger) *Election {
	config.applyDefaults()
	return &Election{
		lease:    lease,
		config:   config,
		logger:   logger.With().Str("component", "leader_election").Str("instance_id", config.InstanceID).Logger(),
		leaderCh: make(chan bool, 1),
	}
}

// InstanceID returns this instance's identity.
func (e *Election) InstanceID() string {
	return e.config.InstanceID
}

// Start begins campaigning in the background.
func (e *Election) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return errors.New("election already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	e.logger.Info().Dur("lease_duration", e.config.LeaseDuration).Msg("starting leader election")
	go e.campaignLoop(ctx)
	return nil
}

// Stop ends the campaign and releases leadership if held.
func (e *Election) Stop() error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	if e.isLeader.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.lease.Release(ctx, e.config.ElectionKey, e.config.InstanceID); err != nil {
			e.logger.Error().Err(err).Msg("failed to release leadership lock")
		}
		e.updateLeadershipStatus(false)
	}
	return e.lease.Close()
}

// IsLeader returns whether this instance is currently the leader.
func (e *Election) IsLeader() bool {
	return e.isLeader.Load()
}

// LeaderCh receives leadership changes. Sends are dropped when nobody reads.
func (e *Election) LeaderCh() <-chan bool {
	return e.leaderCh
}

func (e *Election) campaignLoop(ctx context.Context) {
	defer close(e.done)

	e.attemptLeadership(ctx)
	ticker := time.NewTicker(e.config.RenewalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.attemptLeadership(ctx)
		}
	}
}

func (e *Election) attemptLeadership(ctx context.Context) {
	acquired, err := e.lease.Acquire(ctx, e.config.ElectionKey, e.config.InstanceID, e.config.LeaseDuration)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Error().Err(err).Msg("failed to acquire leadership lock")
		}
		e.updateLeadershipStatus(false)
		return
	}
	switch {
	case acquired && !e.isLeader.Load():
		e.logger.Info().Msg("acquired leadership")
	case !acquired && e.isLeader.Load():
		e.logger.Warn().Msg("lost leadership")
	}
	e.updateLeadershipStatus(acquired)
}

func (e *Election) updateLeadershipStatus(isLeader bool) {
	if e.isLeader.Swap(isLeader) == isLeader {
		return
	}
	if isLeader {
		telemetry.LeaderElectionStatus.Set(1)
	} else {
		telemetry.LeaderElectionStatus.Set(0)
	}

	select {
	case e.leaderCh <- isLeader:
	default:
		// Drain the stale value so the latest status wins.
		select {
		case <-e.leaderCh:
		default:
		}
		e.leaderCh <- isLeader
	}
}

type redisLease struct {
	client *redis.Client
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

func (l *redisLease) Acquire(ctx context.Context, key, id string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, id, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("set lock: %w", err)
	}
	if ok {
		return true, nil
	}
	renewed, err := renewScript.Run(ctx, l.client, []string{key}, id, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("renew lock: %w", err)
	}
	return renewed == 1, nil
}

func (l *redisLease) Release(ctx context.Context, key, id string) error {
	if err := releaseScript.Run(ctx, l.client, []string{key}, id).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func (l *redisLease) Close() error {
	return l.client.Close()
}
