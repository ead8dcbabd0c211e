/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Leader reports whether this instance may run the repair loop.
type Leader interface {
	Start(ctx context.Context) error
	Stop() error
	IsLeader() bool
	LeaderCh() <-chan bool
}

// LeaderAwareScheduler wraps a scheduler and only runs when this instance is the leader.
type LeaderAwareScheduler struct {
	scheduler *Service
	election  Leader
	logger    zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	wg      sync.WaitGroup
}

// NewLeaderAware creates a leader-aware scheduler wrapper.
func NewLeaderAware(scheduler *Service, election Leader, logger zerolog.Logger) *LeaderAwareScheduler {
	return &LeaderAwareScheduler{
		scheduler: scheduler,
		election:  election,
		logger:    logger.With().Str("component", "leader_aware_scheduler").Logger(),
	}
}

// Start begins monitoring leadership and manages the repair loop lifecycle.
func (las *LeaderAwareScheduler) Start(ctx context.Context) error {
	las.mu.Lock()
	las.ctx = ctx
	las.stopped = make(chan struct{})
	las.mu.Unlock()

	las.logger.Info().Msg("starting leader-aware scheduler")
	if err := las.election.Start(ctx); err != nil {
		return err
	}

	las.wg.Add(1)
	go las.monitorLeadership(ctx)
	return nil
}

// Stop stops the repair loop and releases leadership.
func (las *LeaderAwareScheduler) Stop() error {
	las.logger.Info().Msg("stopping leader-aware scheduler")

	las.mu.Lock()
	if las.stopped != nil {
		close(las.stopped)
		las.stopped = nil
	}
	las.mu.Unlock()

	las.stopScheduler()
	las.wg.Wait()
	return las.election.Stop()
}

func (las *LeaderAwareScheduler) monitorLeadership(ctx context.Context) {
	defer las.wg.Done()

	las.mu.Lock()
	stopped := las.stopped
	las.mu.Unlock()

	if las.election.IsLeader() {
		las.startScheduler()
	}

	leaderCh := las.election.LeaderCh()
	for {
		select {
		case <-ctx.Done():
			las.stopScheduler()
			return
		case <-stopped:
			return
		case isLeader := <-leaderCh:
			if isLeader {
				las.logger.Info().Msg("became leader, starting repair loop")
				las.startScheduler()
			} else {
				las.logger.Warn().Msg("lost leadership, stopping repair loop")
				las.stopScheduler()
			}
		}
	}
}

func (las *LeaderAwareScheduler) startScheduler() {
	las.mu.Lock()
	defer las.mu.Unlock()
	if las.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(las.ctx)
	las.cancel = cancel

	las.wg.Add(1)
	go func() {
		defer las.wg.Done()
		if err := las.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			las.logger.Error().Err(err).Msg("repair loop error")
		}
	}()
}

func (las *LeaderAwareScheduler) stopScheduler() {
	las.mu.Lock()
	defer las.mu.Unlock()
	if las.cancel != nil {
		las.cancel()
		las.cancel = nil
	}
}

// Running reports whether the repair loop is active on this instance.
func (las *LeaderAwareScheduler) Running() bool {
	las.mu.Lock()
	defer las.mu.Unlock()
	return las.cancel != nil
}

// IsLeader returns whether this instance is the leader.
func (las *LeaderAwareScheduler) IsLeader() bool {
	return las.election.IsLeader()
}
