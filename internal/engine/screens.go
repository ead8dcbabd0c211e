/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"
	"errors"

	"github.com/friendsincode/signsync/internal/baseline"
	"github.com/friendsincode/signsync/internal/canonical"
	"github.com/friendsincode/signsync/internal/events"
	"github.com/friendsincode/signsync/internal/models"
	"github.com/friendsincode/signsync/internal/playlistsync"
	"github.com/friendsincode/signsync/internal/reconcile"
	"github.com/friendsincode/signsync/internal/remote"
	"github.com/friendsincode/signsync/internal/source"
	"github.com/friendsincode/signsync/internal/telemetry"
)

// ScreenResult reports one screen convergence.
type ScreenResult struct {
	Result
	ScreenID   string            `json:"screen_id"`
	PlaylistID int64             `json:"playlist_id,omitempty"`
	Changed    bool              `json:"changed"`
	Outcome    reconcile.Outcome `json:"outcome,omitempty"`
	Trace      *reconcile.Trace  `json:"trace,omitempty"`
}

func (r ScreenResult) item() BatchItem {
	return BatchItem{
		ScreenID:   r.ScreenID,
		PlaylistID: r.PlaylistID,
		OK:         r.OK,
		Changed:    r.Changed,
		Outcome:    r.Outcome,
		Code:       r.Code,
		Error:      r.Error,
	}
}

// NowPlayingResult describes what a screen is playing right now.
type NowPlayingResult struct {
	Result
	Resolution source.Resolution `json:"resolution"`
	Tree       *source.Node      `json:"tree,omitempty"`
	MediaIDs   []int64           `json:"media_ids,omitempty"`
}

// LocationResult reports a location playlist convergence.
type LocationResult struct {
	Result
	LocationID string `json:"location_id"`
	PlaylistID int64  `json:"playlist_id,omitempty"`
	Changed    bool   `json:"changed"`
}

// EnsureCanonicalScreenPlayback makes the screen play its canonical
// playlist holding the baseline followed by the screen's ads.
func (e *Engine) EnsureCanonicalScreenPlayback(ctx context.Context, screenID string) (ScreenResult, error) {
	res := ScreenResult{ScreenID: screenID}
	if err := e.checkGate(&res.Result, true); err != nil {
		return res, err
	}

	screen, err := e.store.GetScreen(ctx, screenID)
	if err != nil {
		res.fail(lookupCode(err, CodeScreenNotFound), err)
		return res, nil
	}
	if !screen.Linked() {
		res.fail(CodeScreenNotLinked, source.ErrNotLinked)
		return res, nil
	}

	snap, ok := e.ensureBaseline(ctx, &res.Result)
	if !ok {
		return res, nil
	}
	out := e.converge(ctx, screen, snap, TriggerManual, nil)
	out.Logs = append(res.Logs, out.Logs...)
	return out, nil
}

// RepairAllScreens converges every active linked screen, one at a time.
func (e *Engine) RepairAllScreens(ctx context.Context) (BatchResult, error) {
	var res BatchResult
	if err := e.checkGate(&res.Result, true); err != nil {
		telemetry.RepairRunsTotal.WithLabelValues("misconfigured").Inc()
		return res, err
	}

	screens, err := e.store.ListReconcilableScreens(ctx)
	if err != nil {
		res.fail(CodeStoreError, err)
		telemetry.RepairRunsTotal.WithLabelValues("aborted").Inc()
		return res, nil
	}
	res.Total = len(screens)
	if len(screens) == 0 {
		res.fail(CodeNoScreens, errors.New("no linked screens to repair"))
		telemetry.RepairRunsTotal.WithLabelValues("aborted").Inc()
		return res, nil
	}

	snap, ok := e.ensureBaseline(ctx, &res.Result)
	if !ok {
		telemetry.RepairRunsTotal.WithLabelValues("aborted").Inc()
		return res, nil
	}

	for i := range screens {
		if i > 0 {
			if err := e.sleep(ctx); err != nil {
				for _, s := range screens[i:] {
					res.add(BatchItem{ScreenID: s.ID, Code: CodeCanceled, Error: err.Error()})
				}
				res.logf("stopped after %d of %d screens: %v", i, len(screens), err)
				break
			}
		}
		out := e.converge(ctx, &screens[i], snap, TriggerRepair, nil)
		res.add(out.item())
	}
	res.finish()

	result := "ok"
	if !res.OK {
		result = "partial"
	}
	telemetry.RepairRunsTotal.WithLabelValues(result).Inc()
	e.logger.Info().
		Int("total", res.Total).
		Int("success", res.Success).
		Int("failed", res.Failed).
		Msg("repair completed")
	e.publish(events.EventRepairCompleted, events.Payload{
		"total":   res.Total,
		"success": res.Success,
		"failed":  res.Failed,
	})
	return res, nil
}

// GetScreenNowPlaying resolves the screen source and expands its content tree.
// It never writes to the remote platform.
func (e *Engine) GetScreenNowPlaying(ctx context.Context, screenID string) (NowPlayingResult, error) {
	var res NowPlayingResult
	screen, err := e.store.GetScreen(ctx, screenID)
	if err != nil {
		res.fail(lookupCode(err, CodeScreenNotFound), err)
		return res, nil
	}

	resolution, err := e.resolver.Resolve(ctx, screen)
	if err != nil {
		res.fail(codeFor(err, CodeRemoteError), err)
		return res, nil
	}
	res.Resolution = resolution
	if resolution.SelfHealed {
		res.logf("adopted remote playlist %d as expected", resolution.ExpectedPlaylistID)
	}
	if resolution.Mismatch {
		res.logf("mismatch: %s (actual %s)", resolution.Reason, resolution.Actual)
	}

	if !resolution.Actual.IsZero() {
		tree, err := e.walker.Walk(ctx, resolution.Actual)
		if err != nil {
			res.fail(codeFor(err, CodeRemoteError), err)
			return res, nil
		}
		res.Tree = &tree
		res.MediaIDs = tree.MediaIDs()
	}
	res.OK = true
	return res, nil
}

// EnsureLocationPlaylist converges the canonical location playlist, which
// screens without their own playlist fall back to.
func (e *Engine) EnsureLocationPlaylist(ctx context.Context, locationID string) (LocationResult, error) {
	res := LocationResult{LocationID: locationID}
	if err := e.checkGate(&res.Result, true); err != nil {
		return res, err
	}
	loc, err := e.store.GetLocation(ctx, locationID)
	if err != nil {
		res.fail(lookupCode(err, CodeLocationNotFound), err)
		return res, nil
	}
	snap, ok := e.ensureBaseline(ctx, &res.Result)
	if !ok {
		return res, nil
	}

	name := canonical.LocationPlaylistName(loc.Name)
	canon, err := e.canonical.EnsurePlaylist(ctx, name)
	if err != nil {
		res.fail(codeFor(err, CodeRemoteError), err)
		return res, nil
	}
	desired := baseline.DesiredItems(snap.Items, canon.Playlist.Items.MediaIDs())
	synced, err := e.sync.SetItemsExactly(ctx, canon.Playlist.ID, desired)
	if err != nil {
		res.fail(codeFor(err, CodeRemoteError), err)
		return res, nil
	}
	if err := e.store.SetLocationPlaylist(ctx, loc.ID, canon.Playlist.ID); err != nil {
		res.fail(CodeStoreError, err)
		return res, nil
	}
	res.PlaylistID = canon.Playlist.ID
	res.Changed = synced.Changed || canon.Created
	res.OK = true
	res.logf("location %q uses playlist %d with %d items", loc.Name, canon.Playlist.ID, len(desired))
	return res, nil
}

// converge finds the screen's canonical playlist, sets its items, stores the
// assignment and heals the screen onto it. adjust may edit the desired items.
func (e *Engine) converge(ctx context.Context, screen *models.Screen, snap baseline.Snapshot, trigger string, adjust func([]int64) []int64) ScreenResult {
	res := ScreenResult{ScreenID: screen.ID}
	logger := e.logger.With().Str("screen_id", screen.ID).Str("trigger", trigger).Logger()

	name := canonical.ScreenPlaylistName(screen.ID)
	canon, err := e.canonical.EnsurePlaylist(ctx, name)
	if err != nil {
		res.fail(codeFor(err, CodeRemoteError), err)
		logger.Warn().Err(err).Msg("canonical playlist lookup failed")
		return res
	}
	if canon.Created {
		res.logf("created playlist %d %q", canon.Playlist.ID, name)
	}
	for _, id := range canon.Renamed {
		res.logf("renamed duplicate playlist %d to %q", id, canonical.LegacyName(name, id))
	}

	current := canon.Playlist.Items.MediaIDs()
	if prev := screen.PlaylistID; prev != nil && *prev != canon.Playlist.ID && *prev != snap.PlaylistID {
		old, err := e.platform.GetPlaylist(ctx, *prev)
		switch {
		case err == nil:
			current = playlistsync.Compose(current, old.Items.MediaIDs())
			res.logf("carried items over from previous playlist %d", *prev)
		case !remote.IsNotFound(err):
			logger.Warn().Err(err).Int64("playlist_id", *prev).Msg("could not read previous playlist")
		}
	}

	desired := baseline.DesiredItems(snap.Items, current)
	if adjust != nil {
		desired = adjust(desired)
	}
	synced, err := e.sync.SetItemsExactly(ctx, canon.Playlist.ID, desired)
	if err != nil {
		res.fail(codeFor(err, CodeRemoteError), err)
		logger.Warn().Err(err).Int64("playlist_id", canon.Playlist.ID).Msg("playlist sync failed")
		return res
	}
	res.PlaylistID = canon.Playlist.ID
	res.Changed = synced.Changed
	if synced.Changed {
		res.logf("playlist %d set to %d items", canon.Playlist.ID, len(desired))
	}

	if err := e.store.AssignPlaylist(ctx, screen.ID, canon.Playlist.ID, name, len(desired)); err != nil {
		res.fail(CodeStoreError, err)
		return res
	}
	id := canon.Playlist.ID
	screen.PlaylistID = &id
	screen.PlaylistName = name

	tr := e.controller.Heal(ctx, screen, trigger)
	res.Trace = tr
	res.Outcome = tr.Outcome
	res.Changed = res.Changed || tr.Changed()
	e.recordTrace(ctx, tr)

	switch tr.Outcome {
	case reconcile.OutcomeAlreadyOK:
		res.OK = true
		res.logf("screen already plays playlist %d", id)
		if err := e.store.MarkSynced(ctx, screen.ID); err != nil {
			logger.Warn().Err(err).Msg("failed to mark screen synced")
		}
	case reconcile.OutcomeHealed:
		res.OK = true
		res.logf("screen healed onto playlist %d", id)
	case reconcile.OutcomeNoExpectedPlaylist:
		res.fail(CodeNoExpectedPlaylist, errors.New(tr.Diagnostic))
	default:
		res.fail(CodeHealFailed, errors.New(tr.Diagnostic))
	}
	return res
}

var outcomeEvents = map[reconcile.Outcome]events.EventType{
	reconcile.OutcomeAlreadyOK:          events.EventReconcileAlreadyOK,
	reconcile.OutcomeHealed:             events.EventReconcileHealed,
	reconcile.OutcomeHealFailed:         events.EventReconcileHealFailed,
	reconcile.OutcomeNoExpectedPlaylist: events.EventReconcileNoPlaylist,
}

// recordTrace persists, archives and announces a heal run. Failures here are
// logged; the trace is for auditing only.
func (e *Engine) recordTrace(ctx context.Context, tr *reconcile.Trace) {
	run := tr.Run()
	logger := e.logger.With().Str("correlation_id", tr.CorrelationID).Logger()

	if err := e.store.SaveRun(ctx, &run); err != nil {
		logger.Warn().Err(err).Msg("failed to save reconcile run")
	}
	if e.archive != nil {
		if key, err := e.archive.ArchiveRun(ctx, run); err != nil {
			logger.Warn().Err(err).Msg("failed to archive reconcile run")
		} else {
			logger.Debug().Str("key", key).Msg("reconcile run archived")
		}
	}

	if eventType, ok := outcomeEvents[tr.Outcome]; ok {
		e.publish(eventType, events.Payload{
			"screen_id":      tr.ScreenID,
			"correlation_id": tr.CorrelationID,
			"playlist_id":    tr.PlaylistID,
			"trigger":        tr.Trigger,
			"outcome":        string(tr.Outcome),
			"diagnostic":     tr.Diagnostic,
		})
	}
}
