/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package mediaready decides whether remote media can be scheduled.
package mediaready

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/friendsincode/signsync/internal/remote"
)

// Verdict is the readiness classification of a media file.
type Verdict string

const (
	Ready   Verdict = "ready"
	Pending Verdict = "pending"
	Failed  Verdict = "failed"
)

var (
	// ErrNotReady is returned when media did not become ready in time.
	ErrNotReady = errors.New("media not ready")
	// ErrFailed is returned when the platform reports processing failed.
	ErrFailed = errors.New("media processing failed")
)

// Rule maps one signal combination to a verdict. Rules are evaluated in
// order and the first match wins.
type Rule struct {
	Name    string
	Match   func(m remote.Media) bool
	Verdict Verdict
}

func statusIn(m remote.Media, values ...string) bool {
	s := strings.ToLower(strings.TrimSpace(m.Status))
	for _, v := range values {
		if s == v {
			return true
		}
	}
	return false
}

var (
	failedStatuses     = []string{"failed", "error", "rejected", "corrupt"}
	readyStatuses      = []string{"ready", "finished", "done", "processed", "active"}
	processingStatuses = []string{"processing", "uploading", "encoding", "queued", "pending", "converting"}
)

// Rules is the readiness decision table.
var Rules = []Rule{
	{"error_message", func(m remote.Media) bool { return strings.TrimSpace(m.ErrorMessage) != "" }, Failed},
	{"status_failed", func(m remote.Media) bool { return statusIn(m, failedStatuses...) }, Failed},
	{"status_ready_with_file", func(m remote.Media) bool { return statusIn(m, readyStatuses...) && m.FileURL != "" }, Ready},
	{"status_ready_without_file", func(m remote.Media) bool { return statusIn(m, readyStatuses...) }, Pending},
	{"progress_complete_with_file", func(m remote.Media) bool {
		return m.Progress != nil && *m.Progress >= 100 && m.FileURL != ""
	}, Ready},
	{"status_processing", func(m remote.Media) bool { return statusIn(m, processingStatuses...) }, Pending},
	{"unknown", func(remote.Media) bool { return true }, Pending},
}

// Decision is a verdict plus the rule that produced it.
type Decision struct {
	Verdict Verdict `json:"verdict"`
	Rule    string  `json:"rule"`
}

// Evaluate classifies m with Rules.
func Evaluate(m remote.Media) Decision {
	for _, r := range Rules {
		if r.Match(m) {
			return Decision{Verdict: r.Verdict, Rule: r.Name}
		}
	}
	return Decision{Verdict: Pending, Rule: "none"}
}

// DefaultTimeout bounds a wait when the caller passes no positive timeout.
// A zero MaxElapsedTime would make backoff retry forever.
const DefaultTimeout = 2 * time.Minute

// Poller waits for media to become ready with capped exponential backoff.
type Poller struct {
	platform    remote.Platform
	initial     time.Duration
	maxInterval time.Duration
	timeout     time.Duration
	logger      zerolog.Logger
}

// NewPoller creates a poller. timeout bounds the total wait.
func NewPoller(platform remote.Platform, initial, maxInterval, timeout time.Duration, logger zerolog.Logger) *Poller {
	if initial <= 0 {
		initial = time.Second
	}
	if maxInterval <= 0 {
		maxInterval = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Poller{
		platform:    platform,
		initial:     initial,
		maxInterval: maxInterval,
		timeout:     timeout,
		logger:      logger.With().Str("component", "mediaready").Logger(),
	}
}

// WaitReady polls mediaID until it is ready. It fails closed: a timeout,
// cancellation or non-retryable remote error all yield an error.
func (p *Poller) WaitReady(ctx context.Context, mediaID int64) (remote.Media, Decision, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.initial
	exp.MaxInterval = p.maxInterval
	exp.MaxElapsedTime = p.timeout

	var (
		media    remote.Media
		decision Decision
	)
	op := func() error {
		m, err := p.platform.GetMedia(ctx, mediaID)
		if err != nil {
			if remote.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		media = m
		decision = Evaluate(m)
		switch decision.Verdict {
		case Ready:
			return nil
		case Failed:
			return backoff.Permanent(fmt.Errorf("%w: media %d (%s)", ErrFailed, mediaID, decision.Rule))
		default:
			return fmt.Errorf("%w: media %d (%s)", ErrNotReady, mediaID, decision.Rule)
		}
	}

	err := backoff.Retry(op, backoff.WithContext(exp, ctx))
	if err == nil {
		return media, decision, nil
	}
	if errors.Is(err, ErrFailed) {
		return media, decision, err
	}
	if !errors.Is(err, ErrNotReady) {
		err = fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	p.logger.Warn().Err(err).Int64("media_id", mediaID).Msg("media not ready")
	return media, decision, err
}
