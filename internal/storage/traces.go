/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/friendsincode/signsync/internal/models"
)

// TraceKey returns the object key for a run: traces/yyyy/mm/dd/<id>.json.
func TraceKey(correlationID string, startedAt time.Time) string {
	return fmt.Sprintf("traces/%s/%s.json", startedAt.UTC().Format("2006/01/02"), correlationID)
}

// TraceArchive writes reconcile runs as JSON objects.
type TraceArchive struct {
	store ObjectStore
}

// NewTraceArchive wraps an object store.
func NewTraceArchive(store ObjectStore) *TraceArchive {
	return &TraceArchive{store: store}
}

// ArchiveRun stores run and returns its key.
func (a *TraceArchive) ArchiveRun(ctx context.Context, run models.ReconcileRun) (string, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return "", fmt.Errorf("marshal run: %w", err)
	}
	key := TraceKey(run.CorrelationID, run.StartedAt)
	if err := a.store.Put(ctx, key, data); err != nil {
		return "", err
	}
	return key, nil
}

// LoadRun reads an archived run back for operators.
func (a *TraceArchive) LoadRun(ctx context.Context, correlationID string, startedAt time.Time) (models.ReconcileRun, error) {
	var run models.ReconcileRun
	data, err := a.store.Get(ctx, TraceKey(correlationID, startedAt))
	if err != nil {
		return run, err
	}
	if err := json.Unmarshal(data, &run); err != nil {
		return run, fmt.Errorf("decode run: %w", err)
	}
	return run, nil
}
