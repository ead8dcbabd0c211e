/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/signsync/internal/models"
)

type memStore struct {
	objects map[string][]byte
}

func (m *memStore) Put(_ context.Context, key string, data []byte) error {
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func TestTraceKey(t *testing.T) {
	at := time.Date(2026, 3, 7, 23, 30, 0, 0, time.FixedZone("CET", 3600))
	if got := TraceKey("abc", at); got != "traces/2026/03/07/abc.json" {
		t.Fatalf("TraceKey = %q", got)
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	store := &memStore{objects: map[string][]byte{}}
	archive := NewTraceArchive(store)
	started := time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC)

	run := models.ReconcileRun{
		ID:            "cid-1",
		CorrelationID: "cid-1",
		ScreenID:      "s-1",
		Outcome:       "HEALED",
		StartedAt:     started,
	}
	key, err := archive.ArchiveRun(context.Background(), run)
	if err != nil {
		t.Fatalf("ArchiveRun: %v", err)
	}
	if key != "traces/2026/03/08/cid-1.json" {
		t.Fatalf("key = %q", key)
	}

	got, err := archive.LoadRun(context.Background(), "cid-1", started)
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if got.Outcome != "HEALED" || got.ScreenID != "s-1" {
		t.Fatalf("run = %+v", got)
	}
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	if _, err := NewS3Store(context.Background(), S3Config{}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for missing bucket")
	}
}
