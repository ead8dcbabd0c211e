/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playlistsync sets remote playlist contents to an exact sequence.
package playlistsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/signsync/internal/remote"
)

// ErrEmptyItems is returned, without touching the remote platform, for an
// empty desired list.
var ErrEmptyItems = errors.New("refusing to write an empty playlist")

// Result reports what SetItemsExactly did.
type Result struct {
	PlaylistID int64
	Changed    bool
	Before     []int64
	After      []int64
}

// Synchronizer converges playlist items with one read and at most one write.
type Synchronizer struct {
	platform remote.Platform
	duration time.Duration
	logger   zerolog.Logger
}

// New creates a synchronizer. itemDuration is written on every media item.
func New(platform remote.Platform, itemDuration time.Duration, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		platform: platform,
		duration: itemDuration,
		logger:   logger.With().Str("component", "playlistsync").Logger(),
	}
}

// SetItemsExactly makes playlistID contain exactly mediaIDs in order, each
// tagged with its 1-based position as priority.
func (s *Synchronizer) SetItemsExactly(ctx context.Context, playlistID int64, mediaIDs []int64) (Result, error) {
	res := Result{PlaylistID: playlistID, After: append([]int64(nil), mediaIDs...)}
	if len(mediaIDs) == 0 {
		return res, ErrEmptyItems
	}

	current, err := s.platform.GetPlaylist(ctx, playlistID)
	if err != nil {
		return res, fmt.Errorf("read playlist %d: %w", playlistID, err)
	}
	res.Before = current.Items.MediaIDs()

	// Widgets or nested playlists make the sequence differ even when the
	// media ids agree.
	if current.Items.OnlyMedia() && Equal(res.Before, mediaIDs) {
		return res, nil
	}
	items := make(remote.Items, 0, len(mediaIDs))
	for i, id := range mediaIDs {
		items = append(items, remote.MediaItem{MediaID: id, Priority: i + 1, Duration: s.duration})
	}
	if err := s.platform.SetPlaylistItems(ctx, playlistID, items); err != nil {
		return res, fmt.Errorf("write playlist %d: %w", playlistID, err)
	}

	res.Changed = true
	s.logger.Info().
		Int64("playlist_id", playlistID).
		Int("before", len(res.Before)).
		Int("after", len(mediaIDs)).
		Msg("playlist items replaced")
	return res, nil
}

// Equal reports whether a and b hold the same ids in the same order.
func Equal(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Compose returns base followed by extra, skipping any id of extra already
// present in base and duplicates within extra.
func Compose(base, extra []int64) []int64 {
	seen := make(map[int64]bool, len(base)+len(extra))
	out := make([]int64, 0, len(base)+len(extra))
	for _, id := range base {
		out = append(out, id)
		seen[id] = true
	}
	for _, id := range extra {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Subtract returns the ids of from not present in minus, keeping order.
func Subtract(from, minus []int64) []int64 {
	drop := make(map[int64]bool, len(minus))
	for _, id := range minus {
		drop[id] = true
	}
	out := make([]int64, 0, len(from))
	for _, id := range from {
		if !drop[id] {
			out = append(out, id)
		}
	}
	return out
}
