/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/signsync/internal/models"
	"github.com/friendsincode/signsync/internal/remote"
	"github.com/friendsincode/signsync/internal/source"
	"github.com/friendsincode/signsync/internal/telemetry"
)

// Recorder persists push and verify results on the local screen record.
type Recorder interface {
	RecordPush(ctx context.Context, screenID string, at time.Time, pushErr error) error
	RecordVerify(ctx context.Context, screenID string, at time.Time, ok bool, detail string) error
}

// Sleeper waits between heal attempts.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps on a real timer.
type TimerSleeper struct{}

// Sleep blocks for d or until ctx is done.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Options tunes the controller.
type Options struct {
	SettleDelay time.Duration
	RetryDelays []time.Duration
	Sleeper     Sleeper
	Recorder    Recorder
	Now         func() time.Time
}

// Controller drives one screen to its expected playlist.
type Controller struct {
	resolver *source.Resolver
	platform remote.Platform
	opts     Options
	logger   zerolog.Logger
}

// NewController creates a controller.
func NewController(resolver *source.Resolver, platform remote.Platform, opts Options, logger zerolog.Logger) *Controller {
	if opts.Sleeper == nil {
		opts.Sleeper = TimerSleeper{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		resolver: resolver,
		platform: platform,
		opts:     opts,
		logger:   logger.With().Str("component", "reconcile").Logger(),
	}
}

// Heal runs RESOLVE_BEFORE and, on mismatch, PATCH_SOURCE, PUSH, WAIT and
// VERIFY until the screen converges or the retry budget is spent. It never
// returns an error; the outcome is on the trace.
func (c *Controller) Heal(ctx context.Context, screen *models.Screen, trigger string) *Trace {
	ctx, span := telemetry.StartSpan(ctx, "reconcile.heal",
		attribute.String("screen_id", screen.ID),
		attribute.String("trigger", trigger))

	tr := &Trace{
		CorrelationID: uuid.NewString(),
		ScreenID:      screen.ID,
		Trigger:       trigger,
		StartedAt:     c.opts.Now(),
	}
	logger := c.logger.With().Str("correlation_id", tr.CorrelationID).Str("screen_id", screen.ID).Logger()

	c.run(ctx, screen, tr, logger)

	tr.FinishedAt = c.opts.Now()
	telemetry.ReconcileOutcomesTotal.WithLabelValues(string(tr.Outcome)).Inc()
	telemetry.ReconcileDuration.Observe(tr.FinishedAt.Sub(tr.StartedAt).Seconds())
	span.SetAttributes(attribute.String("outcome", string(tr.Outcome)))
	var spanErr error
	if tr.Outcome == OutcomeHealFailed {
		spanErr = errors.New(tr.Diagnostic)
	}
	telemetry.EndSpan(span, spanErr)

	event := logger.Info()
	if tr.Outcome == OutcomeHealFailed {
		event = logger.Warn()
	}
	event.Str("outcome", string(tr.Outcome)).
		Int("steps", len(tr.Steps)).
		Dur("took", tr.FinishedAt.Sub(tr.StartedAt)).
		Str("diagnostic", tr.Diagnostic).
		Msg("reconcile finished")
	return tr
}

func (c *Controller) run(ctx context.Context, screen *models.Screen, tr *Trace, logger zerolog.Logger) {
	step := tr.begin(StepResolveBefore, 0, c.opts.Now)
	before, err := c.resolver.Resolve(ctx, screen)
	if err != nil {
		tr.end(step, false, err.Error(), c.opts.Now)
		tr.fail(fmt.Sprintf("resolve before: %v", err))
		return
	}
	tr.Before = &before
	tr.end(step, true, before.Actual.String(), c.opts.Now)

	if !before.HasExpected {
		tr.Outcome = OutcomeNoExpectedPlaylist
		tr.Diagnostic = fmt.Sprintf("no expected playlist; screen reports %s", before.Actual)
		return
	}
	tr.PlaylistID = before.ExpectedPlaylistID
	if !before.Mismatch {
		tr.Outcome = OutcomeAlreadyOK
		tr.After = &before
		return
	}

	expected := before.ExpectedPlaylistID
	target := remote.ContentSource{Kind: remote.SourcePlaylist, ID: expected}
	attempts := 1 + len(c.opts.RetryDelays)
	var last source.Resolution

	for attempt := 1; attempt <= attempts; attempt++ {
		step = tr.begin(StepPatchSource, attempt, c.opts.Now)
		if err := c.platform.SetScreenSource(ctx, screen.RemotePlayerID, target); err != nil {
			tr.end(step, false, err.Error(), c.opts.Now)
			tr.fail(fmt.Sprintf("patch source to playlist %d: %v", expected, err))
			return
		}
		tr.end(step, true, target.String(), c.opts.Now)

		step = tr.begin(StepPush, attempt, c.opts.Now)
		pushErr := c.platform.PushScreen(ctx, screen.RemotePlayerID)
		if pushErr != nil {
			logger.Warn().Err(pushErr).Int("attempt", attempt).Msg("push failed, continuing to verify")
			tr.end(step, false, pushErr.Error(), c.opts.Now)
		} else {
			tr.end(step, true, "", c.opts.Now)
		}
		c.recordPush(ctx, screen.ID, pushErr, logger)

		delay := c.opts.SettleDelay
		if attempt > 1 {
			delay = c.opts.RetryDelays[attempt-2]
		}
		step = tr.begin(StepWait, attempt, c.opts.Now)
		if err := c.opts.Sleeper.Sleep(ctx, delay); err != nil {
			tr.end(step, false, err.Error(), c.opts.Now)
			tr.fail(fmt.Sprintf("wait interrupted: %v", err))
			return
		}
		tr.end(step, true, delay.String(), c.opts.Now)

		step = tr.begin(StepVerify, attempt, c.opts.Now)
		after, err := c.resolver.Resolve(ctx, screen)
		if err != nil {
			tr.end(step, false, err.Error(), c.opts.Now)
			continue
		}
		last = after
		tr.After = &last
		if after.Actual.Kind == remote.SourcePlaylist && after.Actual.ID == expected {
			tr.end(step, true, after.Actual.String(), c.opts.Now)
			tr.Outcome = OutcomeHealed
			c.recordVerify(ctx, screen.ID, true, "", logger)
			return
		}
		tr.end(step, false, after.Actual.String(), c.opts.Now)
	}

	actual := "unknown"
	if tr.After != nil {
		actual = tr.After.Actual.String()
	}
	tr.fail(fmt.Sprintf("expected playlist:%d, actual %s after %d attempts", expected, actual, attempts))
	c.recordVerify(ctx, screen.ID, false, tr.Diagnostic, logger)
}

func (c *Controller) recordPush(ctx context.Context, screenID string, pushErr error, logger zerolog.Logger) {
	if c.opts.Recorder == nil {
		return
	}
	if err := c.opts.Recorder.RecordPush(ctx, screenID, c.opts.Now(), pushErr); err != nil {
		logger.Error().Err(err).Msg("failed to record push result")
	}
}

func (c *Controller) recordVerify(ctx context.Context, screenID string, ok bool, detail string, logger zerolog.Logger) {
	if c.opts.Recorder == nil {
		return
	}
	if err := c.opts.Recorder.RecordVerify(ctx, screenID, c.opts.Now(), ok, detail); err != nil {
		logger.Error().Err(err).Msg("failed to record verify result")
	}
}
