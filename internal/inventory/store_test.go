/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/signsync/internal/models"
)

func openTestStore(t *testing.T) *Store {
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
	return NewStore(db, zerolog.Nop())
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	locID := "loc-1"
	mediaID := int64(77)
	records := []any{
		&models.Location{ID: locID, Name: "Lobby", Status: models.LocationStatusActive, ReadyForAds: true, City: "Utrecht"},
		&models.Screen{ID: "s-1", Name: "B screen", RemotePlayerID: 11, LocationID: &locID, Active: true},
		&models.Screen{ID: "s-2", Name: "A screen", RemotePlayerID: 12, Active: true},
		&models.Screen{ID: "s-3", Name: "Unlinked", Active: true},
		&models.Screen{ID: "s-4", Name: "Off", RemotePlayerID: 14, Active: false},
		&models.Advertiser{ID: "adv-1", Name: "Bakery", PackageType: "TRIPLE", TargetCities: []string{"Utrecht"}},
		&models.AdAsset{ID: "asset-1", AdvertiserID: "adv-1", RemoteMediaID: &mediaID, Status: models.ApprovalApproved},
		&models.AdAsset{ID: "asset-2", AdvertiserID: "adv-1", Status: models.ApprovalPending},
	}
	for _, r := range records {
		if err := s.DB().Create(r).Error; err != nil {
			t.Fatalf("seed %T: %v", r, err)
		}
	}
}

func TestGetScreenPreloadsLocation(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)

	screen, err := s.GetScreen(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("GetScreen: %v", err)
	}
	if screen.Location == nil || screen.Location.Name != "Lobby" {
		t.Fatalf("location not preloaded: %+v", screen.Location)
	}
	if screen.EffectiveCity() != "Utrecht" {
		t.Fatalf("city = %q", screen.EffectiveCity())
	}

	if _, err := s.GetScreen(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListReconcilableScreens(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)

	screens, err := s.ListReconcilableScreens(context.Background())
	if err != nil {
		t.Fatalf("ListReconcilableScreens: %v", err)
	}
	if len(screens) != 2 || screens[0].ID != "s-2" || screens[1].ID != "s-1" {
		t.Fatalf("screens = %+v", screens)
	}
}

func TestInactiveScreenIsStoredInactive(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)

	screen, err := s.GetScreen(context.Background(), "s-4")
	if err != nil {
		t.Fatalf("GetScreen: %v", err)
	}
	if screen.Active {
		t.Fatal("deactivated screen was stored as active")
	}
}

func TestAssignAndRecord(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := s.AssignPlaylist(ctx, "s-1", 42, "SCREEN | s-1", 5); err != nil {
		t.Fatalf("AssignPlaylist: %v", err)
	}
	if err := s.RecordPush(ctx, "s-1", now, errors.New("offline")); err != nil {
		t.Fatalf("RecordPush: %v", err)
	}
	if err := s.RecordVerify(ctx, "s-1", now, true, ""); err != nil {
		t.Fatalf("RecordVerify: %v", err)
	}

	screen, err := s.GetScreen(ctx, "s-1")
	if err != nil {
		t.Fatal(err)
	}
	if screen.PlaylistID == nil || *screen.PlaylistID != 42 || screen.ItemCount != 5 {
		t.Fatalf("playlist fields = %v %d", screen.PlaylistID, screen.ItemCount)
	}
	if screen.LastPushResult != ResultFailed || screen.LastPushError != "offline" {
		t.Fatalf("push = %q %q", screen.LastPushResult, screen.LastPushError)
	}
	if screen.SyncStatus != models.SyncStatusSynced || screen.LastVerifyResult != ResultOK {
		t.Fatalf("verify = %q %q", screen.SyncStatus, screen.LastVerifyResult)
	}

	if err := s.AssignPlaylist(ctx, "missing", 1, "x", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAdoptPlaylist(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	if err := s.AdoptPlaylist(ctx, "s-2", 99, "SCREEN | s-2"); err != nil {
		t.Fatalf("AdoptPlaylist: %v", err)
	}
	screen, _ := s.GetScreen(ctx, "s-2")
	if screen.PlaylistID == nil || *screen.PlaylistID != 99 || screen.SyncStatus != models.SyncStatusLinked {
		t.Fatalf("screen = %+v", screen)
	}
}

func TestAdvertiserAndLocation(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)
	ctx := context.Background()

	adv, err := s.GetAdvertiser(ctx, "adv-1")
	if err != nil {
		t.Fatalf("GetAdvertiser: %v", err)
	}
	if len(adv.AdAssets) != 2 || len(adv.TargetCities) != 1 {
		t.Fatalf("advertiser = %+v", adv)
	}

	if adv.AdAssets[0].RemoteMediaID == nil && adv.AdAssets[1].RemoteMediaID == nil {
		t.Fatal("expected one asset with a remote media id")
	}

	if err := s.SetLocationPlaylist(ctx, "loc-1", 500); err != nil {
		t.Fatalf("SetLocationPlaylist: %v", err)
	}
	loc, err := s.GetLocation(ctx, "loc-1")
	if err != nil {
		t.Fatalf("GetLocation: %v", err)
	}
	if loc.PlaylistID == nil || *loc.PlaylistID != 500 {
		t.Fatalf("location playlist = %v", loc.PlaylistID)
	}
	if err := s.SetLocationPlaylist(ctx, "missing", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveAndListRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, cid := range []string{"c-1", "c-2"} {
		run := &models.ReconcileRun{
			ID:            cid,
			CorrelationID: cid,
			ScreenID:      "s-1",
			Outcome:       "HEALED",
			Steps:         []any{map[string]any{"name": "VERIFY"}},
			StartedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}

	runs, err := s.ListRuns(ctx, "s-1", 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].CorrelationID != "c-2" || len(runs[0].Steps) != 1 {
		t.Fatalf("runs = %+v", runs)
	}
}
