/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/signsync/internal/events"
)

func TestHealFailedEventIsSignedAndDelivered(t *testing.T) {
	got := make(chan Payload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Header.Get("X-Signsync-Signature") != Sign(body, "s3cret") {
			t.Errorf("bad signature %q", r.Header.Get("X-Signsync-Signature"))
		}
		if r.Header.Get("X-Signsync-Event") != EventHealFailed {
			t.Errorf("event header = %q", r.Header.Get("X-Signsync-Event"))
		}
		var p Payload
		if err := json.Unmarshal(body, &p); err != nil {
			t.Errorf("decode: %v", err)
		}
		got <- p
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	bus := events.NewBus()
	svc := NewService(Config{URL: srv.URL, Secret: "s3cret"}, bus, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	bus.Publish(events.EventReconcileHealFailed, events.Payload{
		"screen_id":      "s-1",
		"correlation_id": "cid-1",
		"playlist_id":    int64(42),
		"diagnostic":     "expected playlist:42, actual layout:7 after 4 attempts",
	})

	select {
	case p := <-got:
		if p.ScreenID != "s-1" || p.PlaylistID != 42 || p.CorrelationID != "cid-1" {
			t.Fatalf("payload = %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not delivered")
	}
}

func TestSendRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := NewService(Config{URL: srv.URL}, events.NewBus(), zerolog.Nop())
	if err := svc.Test(context.Background()); err != nil {
		t.Fatalf("Test: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestSendDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	svc := NewService(Config{URL: srv.URL}, events.NewBus(), zerolog.Nop())
	if err := svc.Test(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
}
