/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler runs the periodic screen repair batch.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/signsync/internal/engine"
	"github.com/friendsincode/signsync/internal/telemetry"
)

const defaultInterval = 15 * time.Minute

// Repairer runs one repair batch over every linked screen.
type Repairer interface {
	RepairAllScreens(ctx context.Context) (engine.BatchResult, error)
}

// Service ticks the repair batch on a fixed interval.
type Service struct {
	repairer Repairer
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
	last    *engine.BatchResult
	lastAt  time.Time
}

// New constructs the scheduler service.
func New(repairer Repairer, interval time.Duration, logger zerolog.Logger) *Service {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		repairer: repairer,
		interval: interval,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run executes the repair loop until the context is cancelled. The first
// batch starts after one interval.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("repair loop started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("repair loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one batch. Overlapping ticks are skipped.
func (s *Service) tick(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn().Msg("previous repair batch still running, skipping tick")
		telemetry.RepairRunsTotal.WithLabelValues("skipped").Inc()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	started := time.Now()
	res, err := s.repairer.RepairAllScreens(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("repair batch refused")
		telemetry.RepairRunsTotal.WithLabelValues("error").Inc()
		return
	}

	s.mu.Lock()
	s.last, s.lastAt = &res, started
	s.mu.Unlock()

	s.logger.Info().
		Int("total", res.Total).
		Int("success", res.Success).
		Int("failed", res.Failed).
		Str("code", res.Code).
		Dur("took", time.Since(started)).
		Msg("repair batch finished")
}

// Last returns the most recent batch result and when it started.
func (s *Service) Last() (*engine.BatchResult, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.lastAt
}
