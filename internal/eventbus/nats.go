/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus forwards in-process events to NATS so other systems can
// follow reconciliation activity.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/signsync/internal/events"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	SubjectPrefix string

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "signsync.events",
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// publisher is the part of *nats.Conn the forwarder uses.
type publisher interface {
	Publish(subject string, data []byte) error
}

// Forwarder republishes bus events on NATS subjects.
type Forwarder struct {
	conn   *nats.Conn
	pub    publisher
	bus    *events.Bus
	prefix string
	nodeID string
	logger zerolog.Logger
}

// NewNATSForwarder connects to NATS.
func NewNATSForwarder(cfg NATSConfig, bus *events.Bus, nodeID string, logger zerolog.Logger) (*Forwarder, error) {
	logger = logger.With().Str("component", "nats").Logger()
	conn, err := nats.Connect(cfg.URL,
		nats.Name("signsync-"+nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	f := newForwarder(conn, bus, cfg.SubjectPrefix, nodeID, logger)
	f.conn = conn
	logger.Info().Str("url", conn.ConnectedUrl()).Msg("NATS event forwarder connected")
	return f, nil
}

func newForwarder(pub publisher, bus *events.Bus, prefix, nodeID string, logger zerolog.Logger) *Forwarder {
	if prefix == "" {
		prefix = DefaultNATSConfig().SubjectPrefix
	}
	return &Forwarder{pub: pub, bus: bus, prefix: prefix, nodeID: nodeID, logger: logger}
}

// Subject returns the subject an event type is published on.
func (f *Forwarder) Subject(t events.EventType) string {
	return f.prefix + "." + string(t)
}

// Start subscribes to every event type and forwards until ctx is done.
func (f *Forwarder) Start(ctx context.Context) {
	subs := make(map[events.EventType]events.Subscriber, len(events.All))
	for _, t := range events.All {
		subs[t] = f.bus.Subscribe(t)
	}
	merged := events.Merge(subs)

	go func() {
		<-ctx.Done()
		for t, sub := range subs {
			f.bus.Unsubscribe(t, sub)
		}
	}()

	go func() {
		for env := range merged {
			f.forward(env)
		}
	}()
}

func (f *Forwarder) forward(env events.Envelope) {
	data, err := marshalNATSMessage(env.Type, env.Payload, f.nodeID)
	if err != nil {
		f.logger.Error().Err(err).Str("event_type", string(env.Type)).Msg("failed to marshal NATS message")
		return
	}
	if err := f.pub.Publish(f.Subject(env.Type), data); err != nil {
		f.logger.Warn().Err(err).Str("event_type", string(env.Type)).Msg("failed to publish to NATS")
		return
	}
	f.logger.Debug().Str("event_type", string(env.Type)).Msg("event forwarded to NATS")
}

// Close drains the connection.
func (f *Forwarder) Close() error {
	if f.conn == nil {
		return nil
	}
	return f.conn.Drain()
}

// natsMessage represents a message published to NATS.
type natsMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"` // For deduplication
}

// marshalNATSMessage converts payload to NATS message format.
func marshalNATSMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	msg := natsMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	}
	return json.Marshal(msg)
}

// unmarshalNATSMessage parses a NATS message.
func unmarshalNATSMessage(data []byte) (*natsMessage, error) {
	var msg natsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal nats message: %w", err)
	}
	return &msg, nil
}
