/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, h http.Handler, mutate func(*Options)) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	opts := Options{
		BaseURL:        srv.URL,
		Token:          "secret",
		Timeout:        2 * time.Second,
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		HTTPClient:     srv.Client(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := NewClient(opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestGetScreenSendsTokenAndDecodesSource(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token secret" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Path != "/screens/12" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":12,"name":"Lobby","source":{"type":"layout","id":7,"name":"Old"}}`))
	}), nil)

	s, err := c.GetScreen(context.Background(), 12)
	if err != nil {
		t.Fatalf("GetScreen: %v", err)
	}
	if s.Source.Kind != SourceLayout || s.Source.ID != 7 {
		t.Fatalf("unexpected source %+v", s.Source)
	}
}

func TestRetriesOnRateLimitThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"id":1,"name":"P","items":[]}`))
	}), nil)

	if _, err := c.GetPlaylist(context.Background(), 1); err != nil {
		t.Fatalf("GetPlaylist: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestRateLimitExhaustionIsRetryable(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}), func(o *Options) { o.MaxRetries = 2 })

	_, err := c.GetPlaylist(context.Background(), 1)
	if KindOf(err) != KindRateLimited {
		t.Fatalf("expected rate_limited, got %v", err)
	}
	if !IsRetryable(err) {
		t.Fatal("expected retryable error")
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 1 attempt + 2 retries, got %d", calls.Load())
	}
}

func TestClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{"not found", http.StatusNotFound, `{"error":"gone"}`, KindNotFound},
		{"auth", http.StatusUnauthorized, `{"detail":"bad token"}`, KindAuth},
		{"rejected", http.StatusBadRequest, `{"error":"invalid"}`, KindRejected},
		{"html login page", http.StatusOK, `<html><body>Sign in</body></html>`, KindMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}), nil)

			_, err := c.GetMedia(context.Background(), 5)
			if got := KindOf(err); got != tt.want {
				t.Fatalf("kind = %q, want %q (err=%v)", got, tt.want, err)
			}
			if calls.Load() != 1 {
				t.Fatalf("non-retryable failure retried %d times", calls.Load()-1)
			}
		})
	}
}

func TestServerErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":5,"status":"finished"}`))
	}), nil)

	m, err := c.GetMedia(context.Background(), 5)
	if err != nil {
		t.Fatalf("GetMedia: %v", err)
	}
	if m.Status != "finished" {
		t.Fatalf("status = %q", m.Status)
	}
}

func TestListPlaylistsFollowsPagination(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("search") != "SCREEN | a" {
			t.Errorf("search = %q", r.URL.Query().Get("search"))
		}
		page := r.URL.Query().Get("page")
		hasNext := page == "1"
		id := 10
		if page == "2" {
			id = 11
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results":  []map[string]any{{"id": id, "name": "SCREEN | a", "items": []any{}}},
			"has_next": hasNext,
		})
	}), nil)

	got, err := c.ListPlaylists(context.Background(), "SCREEN | a")
	if err != nil {
		t.Fatalf("ListPlaylists: %v", err)
	}
	if len(got) != 2 || got[0].ID != 10 || got[1].ID != 11 {
		t.Fatalf("unexpected playlists %+v", got)
	}
}

func TestSetPlaylistItemsEncodesClosedItemSet(t *testing.T) {
	var body struct {
		Items []map[string]any `json:"items"`
	}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}), nil)

	items := Items{
		MediaItem{MediaID: 3, Priority: 1, Duration: 15 * time.Second},
		WidgetItem{WidgetID: 9, Priority: 2, Duration: 10 * time.Second},
	}
	if err := c.SetPlaylistItems(context.Background(), 4, items); err != nil {
		t.Fatalf("SetPlaylistItems: %v", err)
	}
	if len(body.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(body.Items))
	}
	if body.Items[0]["type"] != "media" || body.Items[0]["duration"] != float64(15) {
		t.Fatalf("unexpected first item %+v", body.Items[0])
	}
	if body.Items[1]["type"] != "widget" || body.Items[1]["priority"] != float64(2) {
		t.Fatalf("unexpected second item %+v", body.Items[1])
	}
}

func TestUnknownItemKindIsMalformed(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":1,"name":"P","items":[{"type":"hologram","id":1}]}`))
	}), nil)

	_, err := c.GetPlaylist(context.Background(), 1)
	if KindOf(err) != KindMalformed {
		t.Fatalf("expected malformed, got %v", err)
	}
}

func TestNullItemsStayNil(t *testing.T) {
	var pl Playlist
	if err := json.Unmarshal([]byte(`{"id":1,"name":"P","items":null}`), &pl); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if pl.Items != nil {
		t.Fatalf("null items decoded as %#v", pl.Items)
	}

	if err := json.Unmarshal([]byte(`{"id":1,"name":"P","items":[]}`), &pl); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if pl.Items == nil || len(pl.Items) != 0 {
		t.Fatalf("empty items decoded as %#v", pl.Items)
	}
}

func TestConcurrencyIsBounded(t *testing.T) {
	var inFlight, peak atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		_, _ = w.Write([]byte(`{"id":1,"status":"finished"}`))
	}), func(o *Options) { o.Concurrency = 2 })

	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		go func(id int64) {
			_, err := c.GetMedia(context.Background(), id)
			errs <- err
		}(int64(i))
	}
	for i := 0; i < 6; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("GetMedia: %v", err)
		}
	}
	if peak.Load() > 2 {
		t.Fatalf("peak concurrency %d exceeds limit", peak.Load())
	}
}

func TestErrorUnwrapsAndFormats(t *testing.T) {
	inner := errors.New("boom")
	err := fmt.Errorf("wrap: %w", &Error{Kind: KindTransient, Op: "GET /x", Err: inner})
	if !errors.Is(err, inner) {
		t.Fatal("expected errors.Is to reach inner error")
	}
	if !IsRetryable(err) {
		t.Fatal("transient errors are retryable")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("2"); got != 2*time.Second {
		t.Fatalf("got %v", got)
	}
	if got := parseRetryAfter("600"); got != maxRetryAfter {
		t.Fatalf("expected cap, got %v", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}
