/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package reconcile implements the push, verify and self-heal loop for screens.
package reconcile

import (
	"time"

	"github.com/friendsincode/signsync/internal/models"
	"github.com/friendsincode/signsync/internal/source"
)

// Outcome is the terminal state of a heal run.
type Outcome string

const (
	OutcomeAlreadyOK          Outcome = "ALREADY_OK"
	OutcomeHealed             Outcome = "HEALED"
	OutcomeHealFailed         Outcome = "HEAL_FAILED"
	OutcomeNoExpectedPlaylist Outcome = "NO_EXPECTED_PLAYLIST"
)

// Step names.
const (
	StepResolveBefore = "RESOLVE_BEFORE"
	StepPatchSource   = "PATCH_SOURCE"
	StepPush          = "PUSH"
	StepWait          = "WAIT"
	StepVerify        = "VERIFY"
)

// Step is one timed controller step.
type Step struct {
	Name      string        `json:"name"`
	Attempt   int           `json:"attempt,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	OK        bool          `json:"ok"`
	Detail    string        `json:"detail,omitempty"`
}

// Trace is the audit record of one Heal call. Nothing reads it back to make
// decisions.
type Trace struct {
	CorrelationID string             `json:"correlation_id"`
	ScreenID      string             `json:"screen_id"`
	Trigger       string             `json:"trigger"`
	PlaylistID    int64              `json:"playlist_id,omitempty"`
	StartedAt     time.Time          `json:"started_at"`
	FinishedAt    time.Time          `json:"finished_at"`
	Steps         []Step             `json:"steps"`
	Before        *source.Resolution `json:"before,omitempty"`
	After         *source.Resolution `json:"after,omitempty"`
	Outcome       Outcome            `json:"outcome"`
	Diagnostic    string             `json:"diagnostic,omitempty"`
}

// OK reports whether the screen ended on its expected playlist.
func (t *Trace) OK() bool {
	return t.Outcome == OutcomeAlreadyOK || t.Outcome == OutcomeHealed
}

// Changed reports whether the run wrote to the remote platform.
func (t *Trace) Changed() bool {
	for _, s := range t.Steps {
		if s.Name == StepPatchSource && s.OK {
			return true
		}
	}
	return false
}

func (t *Trace) begin(name string, attempt int, now func() time.Time) int {
	t.Steps = append(t.Steps, Step{Name: name, Attempt: attempt, StartedAt: now()})
	return len(t.Steps) - 1
}

func (t *Trace) end(i int, ok bool, detail string, now func() time.Time) {
	s := &t.Steps[i]
	s.Duration = now().Sub(s.StartedAt)
	s.OK = ok
	s.Detail = detail
}

func (t *Trace) fail(diagnostic string) {
	t.Outcome = OutcomeHealFailed
	t.Diagnostic = diagnostic
}

// Run converts the trace into its persisted form.
func (t *Trace) Run() models.ReconcileRun {
	steps := make([]any, 0, len(t.Steps))
	for _, s := range t.Steps {
		steps = append(steps, map[string]any{
			"name":        s.Name,
			"attempt":     s.Attempt,
			"started_at":  s.StartedAt,
			"duration_ms": s.Duration.Milliseconds(),
			"ok":          s.OK,
			"detail":      s.Detail,
		})
	}
	run := models.ReconcileRun{
		ID:            t.CorrelationID,
		CorrelationID: t.CorrelationID,
		ScreenID:      t.ScreenID,
		Trigger:       t.Trigger,
		Outcome:       string(t.Outcome),
		Diagnostic:    t.Diagnostic,
		Steps:         steps,
		StartedAt:     t.StartedAt,
		FinishedAt:    t.FinishedAt,
	}
	if t.Before != nil {
		run.Before = t.Before.Snapshot()
	}
	if t.After != nil {
		run.After = t.After.Snapshot()
	}
	return run
}
