/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/friendsincode/signsync/internal/baseline"
	"github.com/friendsincode/signsync/internal/events"
	"github.com/friendsincode/signsync/internal/mediaready"
	"github.com/friendsincode/signsync/internal/models"
	"github.com/friendsincode/signsync/internal/playlistsync"
	"github.com/friendsincode/signsync/internal/reconcile"
	"github.com/friendsincode/signsync/internal/remote"
	"github.com/friendsincode/signsync/internal/targeting"
)

// Publish actions.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

// TargetingResult carries the targeting diagnostics for an advertiser.
type TargetingResult struct {
	Result
	AdvertiserID string                `json:"advertiser_id"`
	Limit        int                   `json:"limit"`
	Selected     []targeting.Candidate `json:"selected"`
	Excluded     []targeting.Candidate `json:"excluded"`
}

// PublishItem is the per-screen line of an ad publish.
type PublishItem struct {
	ScreenID   string            `json:"screen_id"`
	Name       string            `json:"name"`
	Action     string            `json:"action"`
	Score      int               `json:"score,omitempty"`
	PlaylistID int64             `json:"playlist_id,omitempty"`
	OK         bool              `json:"ok"`
	Changed    bool              `json:"changed"`
	Outcome    reconcile.Outcome `json:"outcome,omitempty"`
	Code       string            `json:"code,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// PublishResult reports an ad publish.
type PublishResult struct {
	Result
	AdvertiserID string           `json:"advertiser_id"`
	MediaID      int64            `json:"media_id"`
	DryRun       bool             `json:"dry_run"`
	Targeting    targeting.Result `json:"targeting"`
	Items        []PublishItem    `json:"items"`
	Added        int              `json:"added"`
	Removed      int              `json:"removed"`
	Failed       int              `json:"failed"`
}

func (r *PublishResult) add(item PublishItem) {
	r.Items = append(r.Items, item)
	switch {
	case !item.OK:
		r.Failed++
	case item.Action == ActionAdd:
		r.Added++
	case item.Action == ActionRemove:
		r.Removed++
	}
}

// ResolveTargetingWithDiagnostics scores the inventory for an advertiser
// without touching the remote platform.
func (e *Engine) ResolveTargetingWithDiagnostics(ctx context.Context, advertiserID string) (TargetingResult, error) {
	res := TargetingResult{AdvertiserID: advertiserID}
	adv, tr, _, err := e.target(ctx, advertiserID)
	if err != nil {
		res.fail(lookupCode(err, CodeAdvertiserNotFound), err)
		return res, nil
	}
	res.Limit = tr.Limit
	res.Selected = tr.Selected
	res.Excluded = tr.Excluded

	for _, c := range tr.Selected {
		res.logf("selected %s (%s) score %d: %s", c.Name, c.ScreenID, c.Score, c.Reason)
	}
	for _, c := range tr.Excluded {
		res.logf("excluded %s (%s): %s", c.Name, c.ScreenID, c.Reason)
	}
	if tr.Limit == 0 {
		res.fail(CodeUnknownPackage, fmt.Errorf("package %q allows no screens", adv.PackageType))
		return res, nil
	}
	res.OK = true
	return res, nil
}

func (e *Engine) target(ctx context.Context, advertiserID string) (*models.Advertiser, targeting.Result, []models.Screen, error) {
	adv, err := e.store.GetAdvertiser(ctx, advertiserID)
	if err != nil {
		return nil, targeting.Result{}, nil, err
	}
	screens, err := e.store.ListScreens(ctx)
	if err != nil {
		return adv, targeting.Result{}, nil, err
	}
	tr := e.targeting.Resolve(targeting.FromAdvertiser(*adv), targeting.FromScreens(screens))
	return adv, tr, screens, nil
}

// PublishAdToScreens places mediaID on every selected screen and removes it
// from screens that carry it but are no longer selected. A dry run reports
// the plan without writing.
func (e *Engine) PublishAdToScreens(ctx context.Context, advertiserID string, mediaID int64, dryRun bool) (PublishResult, error) {
	res := PublishResult{AdvertiserID: advertiserID, MediaID: mediaID, DryRun: dryRun}
	if !dryRun {
		if err := e.checkGate(&res.Result, true); err != nil {
			return res, err
		}
	}

	adv, tr, screens, err := e.target(ctx, advertiserID)
	if err != nil {
		res.fail(lookupCode(err, CodeAdvertiserNotFound), err)
		return res, nil
	}
	if !approvedMedia(adv, mediaID) {
		res.fail(CodeAdNotApproved, fmt.Errorf("media %d is not an approved asset of advertiser %s", mediaID, adv.ID))
		return res, nil
	}
	// A zero limit pushes every match into Excluded, which would strip the
	// ad from screens the advertiser targets.
	if tr.Limit == 0 {
		res.fail(CodeUnknownPackage, fmt.Errorf("package %q allows no screens", adv.PackageType))
		return res, nil
	}
	if !e.mediaReady(ctx, &res, mediaID, dryRun) {
		return res, nil
	}
	res.Targeting = tr

	var snap baseline.Snapshot
	if !dryRun {
		var ok bool
		if snap, ok = e.ensureBaseline(ctx, &res.Result); !ok {
			return res, nil
		}
	}

	byID := make(map[string]*models.Screen, len(screens))
	for i := range screens {
		byID[screens[i].ID] = &screens[i]
	}
	addAd := func(items []int64) []int64 { return playlistsync.Compose(items, []int64{mediaID}) }

	touched := 0
	pace := func() error {
		touched++
		if touched == 1 {
			return nil
		}
		return e.sleep(ctx)
	}

	for _, c := range tr.Selected {
		screen := byID[c.ScreenID]
		item := PublishItem{ScreenID: c.ScreenID, Name: c.Name, Action: ActionAdd, Score: c.Score}
		if !screen.Linked() {
			item.Code = CodeScreenNotLinked
			item.Error = "screen is not linked to a remote player"
			res.add(item)
			continue
		}
		if dryRun {
			item.OK = true
			res.logf("would add media %d to %s", mediaID, c.Name)
			res.add(item)
			continue
		}
		if err := pace(); err != nil {
			res.fail(CodeCanceled, err)
			return res, nil
		}
		out := e.converge(ctx, screen, snap, TriggerAdPublish, addAd)
		item.PlaylistID = out.PlaylistID
		item.OK = out.OK
		item.Changed = out.Changed
		item.Outcome = out.Outcome
		item.Code = out.Code
		item.Error = out.Error
		res.Logs = append(res.Logs, out.Logs...)
		res.add(item)
	}

	for _, c := range tr.Excluded {
		screen := byID[c.ScreenID]
		if !screen.Linked() || screen.PlaylistID == nil || (!dryRun && *screen.PlaylistID == snap.PlaylistID) {
			continue
		}
		if err := pace(); err != nil {
			res.fail(CodeCanceled, err)
			return res, nil
		}
		if item, ok := e.removeAd(ctx, &res, screen, c, mediaID, dryRun); ok {
			res.add(item)
		}
	}

	switch {
	case len(tr.Selected) == 0:
		res.fail(CodeNoEligibleScreens, errors.New("no screen matched the advertiser targeting"))
	case res.Failed > 0:
		res.fail(CodePartialFailure, fmt.Errorf("%d screens failed", res.Failed))
	default:
		res.OK = true
	}

	if !dryRun {
		e.publish(events.EventAdPublished, events.Payload{
			"advertiser_id": advertiserID,
			"media_id":      mediaID,
			"added":         res.Added,
			"removed":       res.Removed,
			"failed":        res.Failed,
		})
	}
	return res, nil
}

// removeAd drops mediaID from an excluded screen's playlist. The second
// return is false when the screen does not carry the ad.
func (e *Engine) removeAd(ctx context.Context, res *PublishResult, screen *models.Screen, c targeting.Candidate, mediaID int64, dryRun bool) (PublishItem, bool) {
	playlistID := *screen.PlaylistID
	item := PublishItem{ScreenID: screen.ID, Name: screen.Name, Action: ActionRemove, PlaylistID: playlistID}

	pl, err := e.platform.GetPlaylist(ctx, playlistID)
	if err != nil {
		if remote.IsNotFound(err) {
			return item, false
		}
		item.Code = codeFor(err, CodeRemoteError)
		item.Error = err.Error()
		return item, true
	}
	current := pl.Items.MediaIDs()
	if !slices.Contains(current, mediaID) {
		return item, false
	}

	if dryRun {
		item.OK = true
		res.logf("would remove media %d from %s (%s)", mediaID, screen.Name, c.Reason)
		return item, true
	}

	out, err := e.sync.SetItemsExactly(ctx, playlistID, playlistsync.Subtract(current, []int64{mediaID}))
	if err != nil {
		item.Code = codeFor(err, CodeRemoteError)
		item.Error = err.Error()
		return item, true
	}
	item.OK = true
	item.Changed = out.Changed
	res.logf("removed media %d from %s (%s)", mediaID, screen.Name, c.Reason)
	if err := e.store.SetItemCount(ctx, screen.ID, len(out.After)); err != nil {
		e.logger.Warn().Err(err).Str("screen_id", screen.ID).Msg("failed to update item count")
	}
	return item, true
}

// mediaReady applies the readiness gate. Dry runs check once instead of polling.
func (e *Engine) mediaReady(ctx context.Context, res *PublishResult, mediaID int64, dryRun bool) bool {
	if dryRun {
		m, err := e.platform.GetMedia(ctx, mediaID)
		if err != nil {
			res.fail(CodeMediaNotReady, err)
			return false
		}
		d := mediaready.Evaluate(m)
		if d.Verdict != mediaready.Ready {
			res.fail(CodeMediaNotReady, fmt.Errorf("media %d is %s (%s)", mediaID, d.Verdict, d.Rule))
			return false
		}
		return true
	}

	_, d, err := e.readiness.WaitReady(ctx, mediaID)
	if err != nil {
		res.fail(codeFor(err, CodeMediaNotReady), err)
		return false
	}
	res.logf("media %d ready (%s)", mediaID, d.Rule)
	return true
}

func approvedMedia(adv *models.Advertiser, mediaID int64) bool {
	for i := range adv.AdAssets {
		a := &adv.AdAssets[i]
		if a.Approved() && a.RemoteMediaID != nil && *a.RemoteMediaID == mediaID {
			return true
		}
	}
	return false
}
