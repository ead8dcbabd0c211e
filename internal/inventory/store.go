/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package inventory is the local datastore the engine reads and writes.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/signsync/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Push and verify result values stored on screens.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Store wraps gorm access to screens, locations, advertisers and runs.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewStore creates a store.
func NewStore(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{db: db, logger: logger.With().Str("component", "inventory").Logger()}
}

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *gorm.DB { return s.db }

func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("load %s %s: %w", what, id, err)
}

// GetScreen loads a screen with its location.
func (s *Store) GetScreen(ctx context.Context, id string) (*models.Screen, error) {
	var screen models.Screen
	if err := s.db.WithContext(ctx).Preload("Location").First(&screen, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "screen", id)
	}
	return &screen, nil
}

// ListScreens returns every screen with its location, ordered by name.
func (s *Store) ListScreens(ctx context.Context) ([]models.Screen, error) {
	var screens []models.Screen
	if err := s.db.WithContext(ctx).Preload("Location").Order("name ASC, id ASC").Find(&screens).Error; err != nil {
		return nil, fmt.Errorf("list screens: %w", err)
	}
	return screens, nil
}

// ListReconcilableScreens returns active screens paired with a remote player.
func (s *Store) ListReconcilableScreens(ctx context.Context) ([]models.Screen, error) {
	var screens []models.Screen
	err := s.db.WithContext(ctx).
		Preload("Location").
		Where("active = ? AND remote_player_id > 0", true).
		Order("name ASC, id ASC").
		Find(&screens).Error
	if err != nil {
		return nil, fmt.Errorf("list reconcilable screens: %w", err)
	}
	return screens, nil
}

// ListLocations returns every location.
func (s *Store) ListLocations(ctx context.Context) ([]models.Location, error) {
	var locations []models.Location
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&locations).Error; err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return locations, nil
}

// GetAdvertiser loads an advertiser with its ad assets.
func (s *Store) GetAdvertiser(ctx context.Context, id string) (*models.Advertiser, error) {
	var adv models.Advertiser
	if err := s.db.WithContext(ctx).Preload("AdAssets").First(&adv, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "advertiser", id)
	}
	return &adv, nil
}

// GetLocation loads a location.
func (s *Store) GetLocation(ctx context.Context, id string) (*models.Location, error) {
	var loc models.Location
	if err := s.db.WithContext(ctx).First(&loc, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "location", id)
	}
	return &loc, nil
}

// AssignPlaylist records the canonical playlist of a screen.
func (s *Store) AssignPlaylist(ctx context.Context, screenID string, playlistID int64, name string, itemCount int) error {
	updates := map[string]any{
		"playlist_id":   playlistID,
		"playlist_name": name,
		"item_count":    itemCount,
	}
	return s.updateScreen(ctx, screenID, updates)
}

// AdoptPlaylist stores a playlist id discovered on the remote platform.
func (s *Store) AdoptPlaylist(ctx context.Context, screenID string, playlistID int64, name string) error {
	updates := map[string]any{"playlist_id": playlistID, "sync_status": models.SyncStatusLinked}
	if name != "" {
		updates["playlist_name"] = name
	}
	return s.updateScreen(ctx, screenID, updates)
}

// SetItemCount caches the number of items in the screen playlist.
func (s *Store) SetItemCount(ctx context.Context, screenID string, n int) error {
	return s.updateScreen(ctx, screenID, map[string]any{"item_count": n})
}

// RecordPush stores the outcome of a push.
func (s *Store) RecordPush(ctx context.Context, screenID string, at time.Time, pushErr error) error {
	updates := map[string]any{"last_push_at": at, "last_push_result": ResultOK, "last_push_error": ""}
	if pushErr != nil {
		updates["last_push_result"] = ResultFailed
		updates["last_push_error"] = pushErr.Error()
	}
	return s.updateScreen(ctx, screenID, updates)
}

// RecordVerify stores the outcome of verification. Success marks the screen synced.
func (s *Store) RecordVerify(ctx context.Context, screenID string, at time.Time, ok bool, detail string) error {
	updates := map[string]any{"last_verify_at": at, "last_verify_result": ResultOK, "last_verify_error": ""}
	if ok {
		updates["sync_status"] = models.SyncStatusSynced
	} else {
		updates["last_verify_result"] = ResultFailed
		updates["last_verify_error"] = detail
	}
	return s.updateScreen(ctx, screenID, updates)
}

// MarkSynced flags a screen that already plays its expected playlist.
func (s *Store) MarkSynced(ctx context.Context, screenID string) error {
	return s.updateScreen(ctx, screenID, map[string]any{"sync_status": models.SyncStatusSynced})
}

// SetLocationPlaylist stores the canonical playlist of a location.
func (s *Store) SetLocationPlaylist(ctx context.Context, locationID string, playlistID int64) error {
	res := s.db.WithContext(ctx).Model(&models.Location{}).Where("id = ?", locationID).Update("playlist_id", playlistID)
	if res.Error != nil {
		return fmt.Errorf("update location %s: %w", locationID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("location %s: %w", locationID, ErrNotFound)
	}
	return nil
}

func (s *Store) updateScreen(ctx context.Context, screenID string, updates map[string]any) error {
	res := s.db.WithContext(ctx).Model(&models.Screen{}).Where("id = ?", screenID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update screen %s: %w", screenID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("screen %s: %w", screenID, ErrNotFound)
	}
	return nil
}

// SaveRun persists a reconcile trace.
func (s *Store) SaveRun(ctx context.Context, run *models.ReconcileRun) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("save reconcile run: %w", err)
	}
	return nil
}

// ListRuns returns the latest runs for a screen, newest first.
func (s *Store) ListRuns(ctx context.Context, screenID string, limit int) ([]models.ReconcileRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.ReconcileRun
	err := s.db.WithContext(ctx).
		Where("screen_id = ?", screenID).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
