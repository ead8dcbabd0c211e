/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/friendsincode/signsync/internal/baseline"
	"github.com/friendsincode/signsync/internal/canonical"
	"github.com/friendsincode/signsync/internal/events"
	"github.com/friendsincode/signsync/internal/quarantine"
	"github.com/friendsincode/signsync/internal/remote"
)

// QuarantineResult reports a legacy quarantine run.
type QuarantineResult struct {
	Result
	DryRun  bool                `json:"dry_run"`
	Renamed []quarantine.Rename `json:"renamed"`
	Skipped []quarantine.Skip   `json:"skipped"`
}

// DeleteResult reports an operator delete of a quarantined playlist.
type DeleteResult struct {
	Result
	PlaylistID int64  `json:"playlist_id"`
	Name       string `json:"name,omitempty"`
}

// PublishBaseline rewrites every linked screen playlist as baseline ++ ads.
func (e *Engine) PublishBaseline(ctx context.Context) (BatchResult, error) {
	var res BatchResult
	if err := e.checkGate(&res.Result, true); err != nil {
		return res, err
	}

	screens, err := e.store.ListReconcilableScreens(ctx)
	if err != nil {
		res.fail(CodeStoreError, err)
		return res, nil
	}
	res.Total = len(screens)
	if len(screens) == 0 {
		res.fail(CodeNoScreens, errors.New("no linked screens to publish to"))
		return res, nil
	}

	targets := make([]baseline.Target, 0, len(screens))
	for _, s := range screens {
		t := baseline.Target{ScreenID: s.ID}
		if s.PlaylistID != nil {
			t.PlaylistID = *s.PlaylistID
		}
		targets = append(targets, t)
	}

	outcomes, err := e.baseline.PublishToAllScreens(ctx, targets)
	if err != nil && len(outcomes) == 0 {
		res.fail(codeFor(err, CodeBaselineFailed), err)
		return res, nil
	}
	for _, o := range outcomes {
		item := BatchItem{ScreenID: o.ScreenID, PlaylistID: o.PlaylistID, OK: o.OK, Changed: o.Changed, Error: o.Error}
		if !o.OK {
			item.Code = CodeRemoteError
			if o.PlaylistID == 0 {
				item.Code = CodeNoExpectedPlaylist
			}
		} else if err := e.store.SetItemCount(ctx, o.ScreenID, len(o.Items)); err != nil {
			e.logger.Warn().Err(err).Str("screen_id", o.ScreenID).Msg("failed to update item count")
		}
		res.add(item)
	}
	// The batch was interrupted; account for screens never reached.
	for _, t := range targets[len(outcomes):] {
		res.add(BatchItem{ScreenID: t.ScreenID, PlaylistID: t.PlaylistID, Code: CodeCanceled, Error: fmt.Sprint(err)})
	}
	res.finish()
	res.logf("baseline published to %d of %d screens", res.Success, res.Total)

	e.publish(events.EventBaselinePublished, events.Payload{
		"total":   res.Total,
		"success": res.Success,
		"failed":  res.Failed,
	})
	return res, nil
}

// QuarantineLegacy renames unreferenced objects whose names match a legacy
// pattern. Nothing is deleted.
func (e *Engine) QuarantineLegacy(ctx context.Context, dryRun bool) (QuarantineResult, error) {
	res := QuarantineResult{DryRun: dryRun}
	if !dryRun {
		if err := e.checkGate(&res.Result, false); err != nil {
			return res, err
		}
	}

	refs, err := e.references(ctx)
	if err != nil {
		// Without a complete reference set a live object could be renamed.
		res.fail(codeFor(err, CodeStoreError), err)
		return res, nil
	}

	report, err := e.quarantine.Run(ctx, refs, dryRun)
	if err != nil {
		res.fail(codeFor(err, CodeRemoteError), err)
		return res, nil
	}
	res.Renamed = report.Renamed
	res.Skipped = report.Skipped
	verb := "renamed"
	if dryRun {
		verb = "would rename"
	}
	for _, r := range report.Renamed {
		res.logf("%s %s %d %q to %q", verb, r.Kind, r.ID, r.From, r.To)
	}
	res.Logs = append(res.Logs, report.Errors...)

	if len(report.Errors) > 0 {
		res.fail(CodePartialFailure, fmt.Errorf("%d renames failed", len(report.Errors)))
	} else {
		res.OK = true
	}

	if !dryRun && len(report.Renamed) > 0 {
		e.publish(events.EventLegacyQuarantined, events.Payload{
			"renamed": len(report.Renamed),
			"skipped": len(report.Skipped),
			"failed":  len(report.Errors),
		})
	}
	return res, nil
}

// DeleteLegacyPlaylist deletes one quarantined playlist. Only names carrying
// the legacy prefix qualify, and only while nothing references the playlist.
// Nothing in the engine deletes on its own; this is the operator's step
// after QuarantineLegacy.
func (e *Engine) DeleteLegacyPlaylist(ctx context.Context, playlistID int64) (DeleteResult, error) {
	res := DeleteResult{PlaylistID: playlistID}
	if err := e.checkGate(&res.Result, false); err != nil {
		return res, err
	}

	pl, err := e.platform.GetPlaylist(ctx, playlistID)
	if err != nil {
		code := codeFor(err, CodeRemoteError)
		if remote.IsNotFound(err) {
			code = CodePlaylistNotFound
		}
		res.fail(code, err)
		return res, nil
	}
	res.Name = pl.Name
	if !canonical.IsLegacy(pl.Name) {
		res.fail(CodePlaylistNotLegacy, fmt.Errorf("playlist %d %q is not quarantined", playlistID, pl.Name))
		return res, nil
	}

	refs, err := e.references(ctx)
	if err != nil {
		res.fail(codeFor(err, CodeStoreError), err)
		return res, nil
	}
	if refs.Playlists[playlistID] {
		res.fail(CodePlaylistReferenced, fmt.Errorf("playlist %d is still in use", playlistID))
		return res, nil
	}

	if err := e.platform.DeletePlaylist(ctx, playlistID); err != nil {
		res.fail(codeFor(err, CodeRemoteError), err)
		return res, nil
	}
	res.OK = true
	res.logf("deleted playlist %d %q", playlistID, pl.Name)
	e.logger.Info().Int64("playlist_id", playlistID).Str("name", pl.Name).Msg("deleted legacy playlist")
	e.publish(events.EventLegacyDeleted, events.Payload{
		"playlist_id": playlistID,
		"name":        pl.Name,
	})
	return res, nil
}

// references collects every playlist and layout in use by a screen, a
// location or the baseline.
func (e *Engine) references(ctx context.Context) (quarantine.References, error) {
	refs := quarantine.NewReferences()

	screens, err := e.store.ListScreens(ctx)
	if err != nil {
		return refs, err
	}
	for _, s := range screens {
		if s.PlaylistID != nil {
			refs.Add(remote.ContentSource{Kind: remote.SourcePlaylist, ID: *s.PlaylistID})
		}
		if !s.Linked() {
			continue
		}
		rs, err := e.platform.GetScreen(ctx, s.RemotePlayerID)
		if err != nil {
			if remote.IsNotFound(err) {
				continue
			}
			return refs, fmt.Errorf("read screen %s: %w", s.ID, err)
		}
		refs.Add(rs.Source)
	}

	locations, err := e.store.ListLocations(ctx)
	if err != nil {
		return refs, err
	}
	for _, l := range locations {
		if l.PlaylistID != nil {
			refs.Add(remote.ContentSource{Kind: remote.SourcePlaylist, ID: *l.PlaylistID})
		}
	}

	playlists, err := e.platform.ListPlaylists(ctx, e.cfg.BaselinePlaylistName)
	if err != nil {
		return refs, fmt.Errorf("find baseline: %w", err)
	}
	for _, p := range playlists {
		if p.Name == e.cfg.BaselinePlaylistName {
			refs.Add(remote.ContentSource{Kind: remote.SourcePlaylist, ID: p.ID})
		}
	}
	return refs, nil
}
