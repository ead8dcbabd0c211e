/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/friendsincode/signsync/internal/events"
)

// Event names sent to webhook endpoints.
const (
	EventHealFailed = "heal_failed"
	EventTest       = "test"
)

// Payload is the body sent to webhook endpoints.
type Payload struct {
	Event         string    `json:"event"`
	Timestamp     time.Time `json:"timestamp"`
	ScreenID      string    `json:"screen_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	PlaylistID    int64     `json:"playlist_id,omitempty"`
	Trigger       string    `json:"trigger,omitempty"`
	Diagnostic    string    `json:"diagnostic,omitempty"`
}

// Config configures the notifier.
type Config struct {
	URL        string
	Secret     string
	MaxRetries uint64
	Timeout    time.Duration
}

// Service posts heal failures to an operator endpoint.
type Service struct {
	cfg    Config
	bus    *events.Bus
	logger zerolog.Logger
	client *http.Client
	now    func() time.Time
}

// NewService creates a new webhook service.
func NewService(cfg Config, bus *events.Bus, logger zerolog.Logger) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &Service{
		cfg:    cfg,
		bus:    bus,
		logger: logger.With().Str("component", "webhooks").Logger(),
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

// Start listens for heal failures until ctx is done. Subscriptions are in
// place when Start returns.
func (s *Service) Start(ctx context.Context) {
	healFailed := s.bus.Subscribe(events.EventReconcileHealFailed)

	go func() {
		defer s.bus.Unsubscribe(events.EventReconcileHealFailed, healFailed)
		s.logger.Info().Msg("webhook service started")
		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("webhook service stopping")
				return
			case payload := <-healFailed:
				if err := s.Send(ctx, fromEvent(payload, s.now())); err != nil {
					s.logger.Error().Err(err).Msg("heal failure webhook not delivered")
				}
			}
		}
	}()
}

func fromEvent(p events.Payload, at time.Time) Payload {
	out := Payload{Event: EventHealFailed, Timestamp: at.UTC()}
	out.ScreenID, _ = p["screen_id"].(string)
	out.CorrelationID, _ = p["correlation_id"].(string)
	out.Trigger, _ = p["trigger"].(string)
	out.Diagnostic, _ = p["diagnostic"].(string)
	out.PlaylistID, _ = p["playlist_id"].(int64)
	return out
}

// Send delivers payload, retrying transport errors and 5xx responses.
func (s *Service) Send(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Signsync-Webhook/1.0")
		req.Header.Set("X-Signsync-Event", payload.Event)
		req.Header.Set("X-Signsync-Timestamp", strconv.FormatInt(s.now().Unix(), 10))
		if s.cfg.Secret != "" {
			req.Header.Set("X-Signsync-Signature", Sign(body, s.cfg.Secret))
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500:
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("webhook returned status %d", resp.StatusCode))
		}
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 200 * time.Millisecond
	b := backoff.WithContext(backoff.WithMaxRetries(exp, s.cfg.MaxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return err
	}
	s.logger.Debug().Str("event", payload.Event).Str("screen_id", payload.ScreenID).Msg("webhook delivered")
	return nil
}

// Sign creates an HMAC-SHA256 signature.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// Test sends a test payload to the configured endpoint.
func (s *Service) Test(ctx context.Context) error {
	return s.Send(ctx, Payload{
		Event:      EventTest,
		Timestamp:  s.now().UTC(),
		ScreenID:   "test-screen",
		Diagnostic: "This is a test webhook delivery",
	})
}
