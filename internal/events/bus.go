/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventReconcileAlreadyOK  EventType = "reconcile.already_ok"
	EventReconcileHealed     EventType = "reconcile.healed"
	EventReconcileHealFailed EventType = "reconcile.heal_failed"
	EventReconcileNoPlaylist EventType = "reconcile.no_expected_playlist"

	EventRepairCompleted   EventType = "repair.completed"
	EventAdPublished       EventType = "ad.published"
	EventBaselinePublished EventType = "baseline.published"
	EventLegacyQuarantined EventType = "legacy.quarantined"
	EventLegacyDeleted     EventType = "legacy.deleted"
)

// All lists every event type, for subscribers that forward everything.
var All = []EventType{
	EventReconcileAlreadyOK,
	EventReconcileHealed,
	EventReconcileHealFailed,
	EventReconcileNoPlaylist,
	EventRepairCompleted,
	EventAdPublished,
	EventBaselinePublished,
	EventLegacyQuarantined,
	EventLegacyDeleted,
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 32)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Slow subscribers miss events rather
// than block the publisher.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.subs[eventType] = subs
	close(sub)
}

// Merge fans several subscriptions into one channel of typed envelopes. The
// returned channel closes when every input closes.
func Merge(subs map[EventType]Subscriber) <-chan Envelope {
	out := make(chan Envelope, 32)
	var wg sync.WaitGroup
	for t, sub := range subs {
		wg.Add(1)
		go func(t EventType, sub Subscriber) {
			defer wg.Done()
			for p := range sub {
				out <- Envelope{Type: t, Payload: p}
			}
		}(t, sub)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Envelope pairs a payload with its event type.
type Envelope struct {
	Type    EventType
	Payload Payload
}
