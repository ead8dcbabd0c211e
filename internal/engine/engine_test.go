/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/signsync/internal/config"
	"github.com/friendsincode/signsync/internal/events"
	"github.com/friendsincode/signsync/internal/inventory"
	"github.com/friendsincode/signsync/internal/models"
	"github.com/friendsincode/signsync/internal/reconcile"
	"github.com/friendsincode/signsync/internal/remote"
	"github.com/friendsincode/signsync/internal/remote/remotetest"
	"github.com/friendsincode/signsync/internal/targeting"
)

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.EventType
}

func (p *recordingPublisher) Publish(t events.EventType, _ events.Payload) {
	p.mu.Lock()
	p.events = append(p.events, t)
	p.mu.Unlock()
}

func (p *recordingPublisher) has(t events.EventType) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e == t {
			return true
		}
	}
	return false
}

type recordingArchive struct {
	runs []models.ReconcileRun
}

func (a *recordingArchive) ArchiveRun(_ context.Context, run models.ReconcileRun) (string, error) {
	a.runs = append(a.runs, run)
	return "traces/" + run.CorrelationID + ".json", nil
}

type harness struct {
	engine   *Engine
	platform *remotetest.Platform
	store    *inventory.Store
	sleeper  *recordingSleeper
	events   *recordingPublisher
	archive  *recordingArchive
}

func newHarness(t *testing.T, gate Gate, seed ...int64) *harness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&models.Location{},
		&models.Screen{},
		&models.Advertiser{},
		&models.AdAsset{},
		&models.ReconcileRun{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := config.DefaultEngineConfig()
	cfg.BaselineSeedMediaIDs = seed
	cfg.MediaReadyTimeout = 20 * time.Millisecond

	h := &harness{
		platform: remotetest.New(),
		store:    inventory.NewStore(db, zerolog.Nop()),
		sleeper:  &recordingSleeper{},
		events:   &recordingPublisher{},
		archive:  &recordingArchive{},
	}
	h.engine, err = New(Deps{
		Platform: h.platform,
		Store:    h.store,
		Config:   cfg,
		Gate:     gate,
		Archive:  h.archive,
		Events:   h.events,
		Sleeper:  h.sleeper,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

var openGate = Gate{TokenConfigured: true, TemplateConfigured: true}

func (h *harness) create(t *testing.T, records ...any) {
	t.Helper()
	for _, r := range records {
		if err := h.store.DB().Create(r).Error; err != nil {
			t.Fatalf("create %T: %v", r, err)
		}
	}
}

func ptr[T any](v T) *T { return &v }

func layout(id int64) remote.ContentSource {
	return remote.ContentSource{Kind: remote.SourceLayout, ID: id}
}

func TestEnsureCanonicalScreenPlaybackHealsLayoutScreen(t *testing.T) {
	h := newHarness(t, openGate, 1, 2, 3, 4)
	h.platform.AddScreen(11, layout(7))
	h.create(t, &models.Screen{ID: "s-1", Name: "Lobby", RemotePlayerID: 11, Active: true})
	ctx := context.Background()

	res, err := h.engine.EnsureCanonicalScreenPlayback(ctx, "s-1")
	if err != nil {
		t.Fatalf("EnsureCanonicalScreenPlayback: %v", err)
	}
	if !res.OK || res.Outcome != reconcile.OutcomeHealed || !res.Changed {
		t.Fatalf("result = %+v", res)
	}
	src := h.platform.ScreenSource(11)
	if src.Kind != remote.SourcePlaylist || src.ID != res.PlaylistID {
		t.Fatalf("screen source = %s, want playlist:%d", src, res.PlaylistID)
	}
	if got := h.platform.PlaylistMediaIDs(res.PlaylistID); !reflect.DeepEqual(got, []int64{1, 2, 3, 4}) {
		t.Fatalf("playlist items = %v", got)
	}

	screen, err := h.store.GetScreen(ctx, "s-1")
	if err != nil {
		t.Fatal(err)
	}
	if screen.PlaylistID == nil || *screen.PlaylistID != res.PlaylistID || screen.PlaylistName != "SCREEN | s-1" {
		t.Fatalf("stored playlist = %v %q", screen.PlaylistID, screen.PlaylistName)
	}
	if screen.SyncStatus != models.SyncStatusSynced || screen.ItemCount != 4 {
		t.Fatalf("stored status = %q items %d", screen.SyncStatus, screen.ItemCount)
	}

	runs, err := h.store.ListRuns(ctx, "s-1", 5)
	if err != nil || len(runs) != 1 || runs[0].Outcome != string(reconcile.OutcomeHealed) {
		t.Fatalf("runs = %+v, err %v", runs, err)
	}
	if len(h.archive.runs) != 1 || !h.events.has(events.EventReconcileHealed) {
		t.Fatalf("archive %d runs, events %v", len(h.archive.runs), h.events.events)
	}

	writes := h.platform.TotalWrites()
	again, err := h.engine.EnsureCanonicalScreenPlayback(ctx, "s-1")
	if err != nil {
		t.Fatal(err)
	}
	if !again.OK || again.Outcome != reconcile.OutcomeAlreadyOK || again.Changed {
		t.Fatalf("second result = %+v", again)
	}
	if h.platform.TotalWrites() != writes {
		t.Fatalf("second run wrote %d times", h.platform.TotalWrites()-writes)
	}
}

func TestEnsureCanonicalScreenPlaybackCarriesAdsFromPreviousPlaylist(t *testing.T) {
	h := newHarness(t, openGate, 1, 2, 3, 4)
	h.platform.AddPlaylist(99, "Old lobby loop", 2, 77)
	h.platform.AddScreen(11, remote.ContentSource{Kind: remote.SourcePlaylist, ID: 99})
	h.create(t, &models.Screen{ID: "s-1", Name: "Lobby", RemotePlayerID: 11, PlaylistID: ptr(int64(99)), Active: true})

	res, err := h.engine.EnsureCanonicalScreenPlayback(context.Background(), "s-1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.PlaylistID == 99 {
		t.Fatalf("result = %+v", res)
	}
	if got := h.platform.PlaylistMediaIDs(res.PlaylistID); !reflect.DeepEqual(got, []int64{1, 2, 3, 4, 77}) {
		t.Fatalf("playlist items = %v", got)
	}
}

func TestWriteGate(t *testing.T) {
	tests := []struct {
		name string
		gate Gate
		code string
	}{
		{"token missing", Gate{TemplateConfigured: true}, CodeTokenMissing},
		{"template missing", Gate{TokenConfigured: true}, CodeTemplateMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.gate, 1, 2, 3, 4)
			h.create(t, &models.Screen{ID: "s-1", Name: "Lobby", RemotePlayerID: 11, Active: true})

			res, err := h.engine.EnsureCanonicalScreenPlayback(context.Background(), "s-1")
			if !errors.Is(err, ErrMisconfigured) {
				t.Fatalf("expected ErrMisconfigured, got %v", err)
			}
			if res.OK || res.Code != tt.code {
				t.Fatalf("result = %+v", res)
			}
			if calls := h.platform.Calls(); len(calls) != 0 {
				t.Fatalf("remote called: %v", calls)
			}
		})
	}
}

func TestBaselineBelowMinimumBlocksWrites(t *testing.T) {
	h := newHarness(t, openGate, 1, 2)
	h.platform.AddScreen(11, layout(7))
	h.create(t, &models.Screen{ID: "s-1", Name: "Lobby", RemotePlayerID: 11, Active: true})

	res, err := h.engine.EnsureCanonicalScreenPlayback(context.Background(), "s-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.OK || res.Code != CodeBaselineBelowMinimum {
		t.Fatalf("result = %+v", res)
	}
	if n := h.platform.Writes("SetScreenSource"); n != 0 {
		t.Fatalf("screen patched %d times", n)
	}
}

func TestEnsureCanonicalScreenPlaybackLookupFailures(t *testing.T) {
	h := newHarness(t, openGate, 1, 2, 3, 4)
	h.create(t, &models.Screen{ID: "s-9", Name: "Unpaired", Active: true})

	res, err := h.engine.EnsureCanonicalScreenPlayback(context.Background(), "missing")
	if err != nil || res.Code != CodeScreenNotFound {
		t.Fatalf("missing screen: %+v %v", res, err)
	}
	res, err = h.engine.EnsureCanonicalScreenPlayback(context.Background(), "s-9")
	if err != nil || res.Code != CodeScreenNotLinked {
		t.Fatalf("unlinked screen: %+v %v", res, err)
	}
}

func TestRepairAllScreensContinuesPastFailures(t *testing.T) {
	h := newHarness(t, openGate, 1, 2, 3, 4)
	h.platform.AddScreen(11, layout(7))
	// Player 12 is unknown to the platform, so its heal fails.
	h.create(t,
		&models.Screen{ID: "s-1", Name: "A", RemotePlayerID: 11, Active: true},
		&models.Screen{ID: "s-2", Name: "B", RemotePlayerID: 12, Active: true},
		&models.Screen{ID: "s-3", Name: "C", Active: true},
		&models.Screen{ID: "s-4", Name: "D", RemotePlayerID: 13, Active: false},
	)

	res, err := h.engine.RepairAllScreens(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 2 || res.Success != 1 || res.Failed != 1 {
		t.Fatalf("counts = %d/%d/%d", res.Total, res.Success, res.Failed)
	}
	if res.OK || res.Code != CodePartialFailure {
		t.Fatalf("result = %+v", res.Result)
	}
	if res.Items[1].ScreenID != "s-2" || res.Items[1].Code != CodeHealFailed {
		t.Fatalf("failed item = %+v", res.Items[1])
	}

	interScreen := config.DefaultEngineConfig().InterScreenDelay
	found := false
	for _, w := range h.sleeper.waits {
		if w == interScreen {
			found = true
		}
	}
	if !found {
		t.Fatalf("no inter-screen delay in %v", h.sleeper.waits)
	}
	if !h.events.has(events.EventRepairCompleted) || !h.events.has(events.EventReconcileHealFailed) {
		t.Fatalf("events = %v", h.events.events)
	}
}

func TestRepairAllScreensWithoutScreens(t *testing.T) {
	h := newHarness(t, openGate, 1, 2, 3, 4)

	res, err := h.engine.RepairAllScreens(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.OK || res.Code != CodeNoScreens || h.platform.TotalWrites() != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func seedAdvertising(t *testing.T, h *harness, mediaStatus string) {
	t.Helper()
	h.platform.AddScreen(11, layout(7))
	h.platform.AddScreen(12, remote.ContentSource{Kind: remote.SourcePlaylist, ID: 500})
	h.platform.AddPlaylist(500, "SCREEN | s-2", 1, 2, 3, 4, 77)
	h.platform.AddMedia(77, mediaStatus)

	h.create(t,
		&models.Location{ID: "loc-a", Name: "Dam", Status: models.LocationStatusActive, ReadyForAds: true, City: "Amsterdam"},
		&models.Location{ID: "loc-u", Name: "Dom", Status: models.LocationStatusActive, ReadyForAds: true, City: "Utrecht"},
		&models.Screen{ID: "s-1", Name: "Dam entrance", RemotePlayerID: 11, LocationID: ptr("loc-a"), Active: true},
		&models.Screen{ID: "s-2", Name: "Dom entrance", RemotePlayerID: 12, LocationID: ptr("loc-u"), PlaylistID: ptr(int64(500)), Active: true},
		&models.Advertiser{ID: "adv-1", Name: "Bakery", PackageType: config.PackageTriple, TargetCities: []string{"amsterdam"}},
		&models.AdAsset{ID: "asset-1", AdvertiserID: "adv-1", RemoteMediaID: ptr(int64(77)), Status: models.ApprovalApproved},
	)
}

func TestPublishAdToScreensAddsAndRemoves(t *testing.T) {
	h := newHarness(t, openGate, 1, 2, 3, 4)
	seedAdvertising(t, h, "ready")

	res, err := h.engine.PublishAdToScreens(context.Background(), "adv-1", 77, false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Added != 1 || res.Removed != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}

	var added PublishItem
	for _, it := range res.Items {
		if it.Action == ActionAdd {
			added = it
		}
	}
	if added.ScreenID != "s-1" || added.Outcome != reconcile.OutcomeHealed {
		t.Fatalf("added item = %+v", added)
	}
	if got := h.platform.PlaylistMediaIDs(added.PlaylistID); !reflect.DeepEqual(got, []int64{1, 2, 3, 4, 77}) {
		t.Fatalf("selected playlist = %v", got)
	}
	if got := h.platform.PlaylistMediaIDs(500); !reflect.DeepEqual(got, []int64{1, 2, 3, 4}) {
		t.Fatalf("excluded playlist = %v", got)
	}
	if !h.events.has(events.EventAdPublished) {
		t.Fatalf("events = %v", h.events.events)
	}
}

func TestPublishAdToScreensUnknownPackageDoesNotWrite(t *testing.T) {
	h := newHarness(t, openGate, 1, 2, 3, 4)
	seedAdvertising(t, h, "ready")
	err := h.store.DB().Model(&models.Advertiser{}).Where("id = ?", "adv-1").
		Updates(map[string]any{"package_type": "GOLD"}).Error
	if err != nil {
		t.Fatal(err)
	}

	res, err := h.engine.PublishAdToScreens(context.Background(), "adv-1", 77, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.OK || res.Code != CodeUnknownPackage || res.Removed != 0 || len(res.Items) != 0 {
		t.Fatalf("result = %+v", res)
	}
	if n := h.platform.TotalWrites(); n != 0 {
		t.Fatalf("wrote %d times", n)
	}
	if got := h.platform.PlaylistMediaIDs(500); !reflect.DeepEqual(got, []int64{1, 2, 3, 4, 77}) {
		t.Fatalf("targeted playlist = %v", got)
	}
}

func TestPublishAdToScreensDryRunDoesNotWrite(t *testing.T) {
	h := newHarness(t, Gate{}, 1, 2, 3, 4)
	seedAdvertising(t, h, "ready")

	res, err := h.engine.PublishAdToScreens(context.Background(), "adv-1", 77, true)
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Added != 1 || res.Removed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if n := h.platform.TotalWrites(); n != 0 {
		t.Fatalf("dry run wrote %d times", n)
	}
	if h.events.has(events.EventAdPublished) {
		t.Fatal("dry run published an event")
	}
}

func TestPublishAdToScreensRefusesUnreadyMedia(t *testing.T) {
	h := newHarness(t, openGate, 1, 2, 3, 4)
	seedAdvertising(t, h, "processing")

	res, err := h.engine.PublishAdToScreens(context.Background(), "adv-1", 77, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.OK || res.Code != CodeMediaNotReady {
		t.Fatalf("result = %+v", res.Result)
	}
	if n := h.platform.TotalWrites(); n != 0 {
		t.Fatalf("wrote %d times", n)
	}
}

func TestPublishAdToScreensRequiresApprovedAsset(t *testing.T) {
	h := newHarness(t, openGate, 1, 2, 3, 4)
	seedAdvertising(t, h, "ready")

	res, err := h.engine.PublishAdToScreens(context.Background(), "adv-1", 78, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Code != CodeAdNotApproved {
		t.Fatalf("result = %+v", res.Result)
	}
}

func TestResolveTargetingWithDiagnostics(t *testing.T) {
	h := newHarness(t, openGate)
	seedAdvertising(t, h, "ready")

	res, err := h.engine.ResolveTargetingWithDiagnostics(context.Background(), "adv-1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Limit != 3 || len(res.Selected) != 1 || len(res.Excluded) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.Selected[0].ScreenID != "s-1" || res.Selected[0].Score != 100 {
		t.Fatalf("selected = %+v", res.Selected[0])
	}
	if h.platform.TotalWrites() != 0 {
		t.Fatal("targeting wrote to the platform")
	}

	missing, _ := h.engine.ResolveTargetingWithDiagnostics(context.Background(), "nope")
	if missing.Code != CodeAdvertiserNotFound {
		t.Fatalf("missing advertiser code = %q", missing.Code)
	}
}

func TestResolveTargetingExcludesInactiveScreen(t *testing.T) {
	h := newHarness(t, openGate)
	seedAdvertising(t, h, "ready")
	h.create(t, &models.Screen{ID: "s-3", Name: "Dam exit", RemotePlayerID: 13, LocationID: ptr("loc-a"), Active: false})

	res, err := h.engine.ResolveTargetingWithDiagnostics(context.Background(), "adv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Selected) != 1 || res.Selected[0].ScreenID != "s-1" {
		t.Fatalf("selected = %+v", res.Selected)
	}
	var reason string
	for _, c := range res.Excluded {
		if c.ScreenID == "s-3" {
			reason = c.Reason
		}
	}
	if reason != targeting.ReasonScreenInactive {
		t.Fatalf("inactive screen reason = %q, excluded = %+v", reason, res.Excluded)
	}
}

func TestGetScreenNowPlaying(t *testing.T) {
	h := newHarness(t, Gate{})
	h.platform.AddPlaylist(42, "Lobby", 5, 6)
	h.platform.AddScreen(11, remote.ContentSource{Kind: remote.SourcePlaylist, ID: 42})
	h.create(t, &models.Screen{ID: "s-1", Name: "Lobby", RemotePlayerID: 11, Active: true})

	res, err := h.engine.GetScreenNowPlaying(context.Background(), "s-1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || !res.Resolution.SelfHealed || res.Resolution.Mismatch {
		t.Fatalf("resolution = %+v", res.Resolution)
	}
	if !reflect.DeepEqual(res.MediaIDs, []int64{5, 6}) {
		t.Fatalf("media ids = %v", res.MediaIDs)
	}
	if h.platform.TotalWrites() != 0 {
		t.Fatal("now playing wrote to the platform")
	}
}

func TestPublishBaselinePreservesAds(t *testing.T) {
	h := newHarness(t, openGate, 1, 2, 3)
	h.platform.AddPlaylist(1, "BASELINE | Filler", 1, 2, 3, 4)
	h.platform.AddPlaylist(50, "SCREEN | s-1", 1, 2, 90)
	h.create(t,
		&models.Screen{ID: "s-1", Name: "A", RemotePlayerID: 11, PlaylistID: ptr(int64(50)), Active: true},
		&models.Screen{ID: "s-2", Name: "B", RemotePlayerID: 12, Active: true},
	)

	res, err := h.engine.PublishBaseline(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 2 || res.Success != 1 || res.Failed != 1 {
		t.Fatalf("counts = %+v", res)
	}
	if got := h.platform.PlaylistMediaIDs(50); !reflect.DeepEqual(got, []int64{1, 2, 3, 4, 90}) {
		t.Fatalf("playlist = %v", got)
	}
	if res.Items[1].Code != CodeNoExpectedPlaylist {
		t.Fatalf("screen without playlist = %+v", res.Items[1])
	}
	if !h.events.has(events.EventBaselinePublished) {
		t.Fatalf("events = %v", h.events.events)
	}
}

func TestQuarantineLegacy(t *testing.T) {
	h := newHarness(t, openGate)
	h.platform.AddPlaylist(1, "BASELINE | Filler", 1, 2, 3, 4)
	h.platform.AddPlaylist(10, "SCREEN | s-1", 1)
	h.platform.AddPlaylist(11, "Copy of SCREEN | s-1", 1)
	h.platform.AddPlaylist(12, "SCREEN | gone", 1)
	h.platform.AddPlaylist(13, "Lobby loop", 1)
	h.platform.AddScreen(21, remote.ContentSource{Kind: remote.SourcePlaylist, ID: 10})
	h.create(t, &models.Screen{ID: "s-1", Name: "A", RemotePlayerID: 21, PlaylistID: ptr(int64(10)), Active: true})
	ctx := context.Background()

	dry, err := h.engine.QuarantineLegacy(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if !dry.OK || len(dry.Renamed) != 2 || h.platform.TotalWrites() != 0 {
		t.Fatalf("dry run = %+v", dry)
	}

	res, err := h.engine.QuarantineLegacy(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || len(res.Renamed) != 2 {
		t.Fatalf("result = %+v", res)
	}
	renamed := map[int64]bool{}
	for _, r := range res.Renamed {
		renamed[r.ID] = true
	}
	if !renamed[11] || !renamed[12] || renamed[1] || renamed[10] || renamed[13] {
		t.Fatalf("renamed = %v", renamed)
	}
	if !h.events.has(events.EventLegacyQuarantined) {
		t.Fatalf("events = %v", h.events.events)
	}
}

func TestDeleteLegacyPlaylist(t *testing.T) {
	h := newHarness(t, openGate)
	h.platform.AddPlaylist(10, "SCREEN | s-1", 1)
	h.platform.AddPlaylist(11, "LEGACY | 2026-05-01 | Copy of SCREEN | s-1", 1)
	h.platform.AddPlaylist(12, "LEGACY | SCREEN | s-2 | (12)", 1)
	h.platform.AddScreen(21, remote.ContentSource{Kind: remote.SourcePlaylist, ID: 12})
	h.create(t, &models.Screen{ID: "s-2", Name: "B", RemotePlayerID: 21, Active: true})
	ctx := context.Background()

	tests := []struct {
		name string
		id   int64
		code string
	}{
		{"live name", 10, CodePlaylistNotLegacy},
		{"still playing", 12, CodePlaylistReferenced},
		{"missing", 99, CodePlaylistNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.engine.DeleteLegacyPlaylist(ctx, tt.id)
			if err != nil {
				t.Fatal(err)
			}
			if res.OK || res.Code != tt.code {
				t.Fatalf("result = %+v", res.Result)
			}
		})
	}
	if n := h.platform.Writes("DeletePlaylist"); n != 0 {
		t.Fatalf("refused deletes wrote %d times", n)
	}

	res, err := h.engine.DeleteLegacyPlaylist(ctx, 11)
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || h.platform.Writes("DeletePlaylist") != 1 {
		t.Fatalf("result = %+v", res)
	}
	if _, ok := h.platform.Playlists[11]; ok {
		t.Fatal("playlist 11 still present")
	}
	if !h.events.has(events.EventLegacyDeleted) {
		t.Fatalf("events = %v", h.events.events)
	}
}

func TestEnsureLocationPlaylist(t *testing.T) {
	h := newHarness(t, openGate, 1, 2, 3, 4)
	h.create(t, &models.Location{ID: "loc-a", Name: "Dam", Status: models.LocationStatusActive})

	res, err := h.engine.EnsureLocationPlaylist(context.Background(), "loc-a")
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.PlaylistID == 0 {
		t.Fatalf("result = %+v", res)
	}
	loc, err := h.store.GetLocation(context.Background(), "loc-a")
	if err != nil || loc.PlaylistID == nil || *loc.PlaylistID != res.PlaylistID {
		t.Fatalf("location = %+v err %v", loc, err)
	}
	if got := h.platform.PlaylistMediaIDs(res.PlaylistID); !reflect.DeepEqual(got, []int64{1, 2, 3, 4}) {
		t.Fatalf("playlist = %v", got)
	}
}
