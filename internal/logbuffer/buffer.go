/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps the most recent log lines in memory so operators
// can inspect a reconcile run without shell access.
package logbuffer

import (
	"encoding/json"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogEntry represents a single log entry.
type LogEntry struct {
	Timestamp     time.Time      `json:"timestamp"`
	Level         string         `json:"level"`
	Message       string         `json:"message"`
	Component     string         `json:"component,omitempty"`
	ScreenID      string         `json:"screen_id,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Fields        map[string]any `json:"fields,omitempty"`
}

// Buffer is a thread-safe ring buffer for log entries.
type Buffer struct {
	mu       sync.RWMutex
	entries  []LogEntry
	capacity int
	head     int
	count    int
}

// New creates a new log buffer with the specified capacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 5000
	}
	return &Buffer{
		entries:  make([]LogEntry, capacity),
		capacity: capacity,
	}
}

// Add adds a log entry to the buffer, overwriting the oldest when full.
func (b *Buffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// all returns entries oldest first. Callers hold the read lock.
func (b *Buffer) all() []LogEntry {
	result := make([]LogEntry, b.count)
	start := 0
	if b.count == b.capacity {
		start = b.head
	}
	for i := 0; i < b.count; i++ {
		result[i] = b.entries[(start+i)%b.capacity]
	}
	return result
}

// QueryParams filters log entries.
type QueryParams struct {
	Level         string
	Component     string
	ScreenID      string
	CorrelationID string
	Search        string // case-insensitive match on message and string fields
	Since         time.Time
	Limit         int // 0 = all
}

// Query returns matching entries, newest first.
func (b *Buffer) Query(params QueryParams) []LogEntry {
	b.mu.RLock()
	entries := b.all()
	b.mu.RUnlock()

	search := strings.ToLower(params.Search)
	var out []LogEntry
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		switch {
		case params.Level != "" && e.Level != params.Level:
			continue
		case params.Component != "" && e.Component != params.Component:
			continue
		case params.ScreenID != "" && e.ScreenID != params.ScreenID:
			continue
		case params.CorrelationID != "" && e.CorrelationID != params.CorrelationID:
			continue
		case !params.Since.IsZero() && e.Timestamp.Before(params.Since):
			continue
		case search != "" && !matches(e, search):
			continue
		}
		out = append(out, e)
		if params.Limit > 0 && len(out) == params.Limit {
			break
		}
	}
	return out
}

func matches(e LogEntry, lowered string) bool {
	if strings.Contains(strings.ToLower(e.Message), lowered) {
		return true
	}
	for _, v := range e.Fields {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), lowered) {
			return true
		}
	}
	return false
}

// Stats summarizes the buffer.
type Stats struct {
	Capacity   int            `json:"capacity"`
	Count      int            `json:"count"`
	LevelCount map[string]int `json:"level_count"`
	Components []string       `json:"components"`
}

// Stats returns buffer statistics.
func (b *Buffer) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := Stats{Capacity: b.capacity, Count: b.count, LevelCount: map[string]int{}}
	seen := map[string]bool{}
	for _, e := range b.all() {
		stats.LevelCount[e.Level]++
		if e.Component != "" && !seen[e.Component] {
			seen[e.Component] = true
			stats.Components = append(stats.Components, e.Component)
		}
	}
	sort.Strings(stats.Components)
	return stats
}

// Writer captures zerolog JSON lines into a buffer.
type Writer struct {
	buffer   *Buffer
	fallback io.Writer
	now      func() time.Time
}

// NewWriter creates a writer that captures logs to the buffer and passes
// them on to fallback when it is non-nil.
func NewWriter(buffer *Buffer, fallback io.Writer) *Writer {
	return &Writer{buffer: buffer, fallback: fallback, now: time.Now}
}

// Write implements io.Writer. Lines that are not JSON are only forwarded.
func (w *Writer) Write(p []byte) (int, error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err == nil {
		w.buffer.Add(w.entry(raw))
	}
	if w.fallback != nil {
		return w.fallback.Write(p)
	}
	return len(p), nil
}

func (w *Writer) entry(raw map[string]any) LogEntry {
	e := LogEntry{Timestamp: w.now()}
	take := func(key string) string {
		s, _ := raw[key].(string)
		delete(raw, key)
		return s
	}
	e.Level = take("level")
	e.Message = take("message")
	e.Component = take("component")
	e.ScreenID = take("screen_id")
	e.CorrelationID = take("correlation_id")

	switch ts := raw["time"].(type) {
	case float64:
		e.Timestamp = time.Unix(int64(ts), 0)
	case string:
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			e.Timestamp = t
		}
	}
	delete(raw, "time")
	delete(raw, "service")

	if len(raw) > 0 {
		e.Fields = raw
	}
	return e
}
