/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package canonical finds or creates uniquely named remote playlists.
package canonical

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/friendsincode/signsync/internal/remote"
)

// LegacyPrefix marks objects the engine no longer treats as canonical.
const LegacyPrefix = "LEGACY |"

// ErrEmptyName is returned for blank canonical names.
var ErrEmptyName = errors.New("canonical name is empty")

// Naming helpers for deterministic playlist names.
func ScreenPlaylistName(screenID string) string { return "SCREEN | " + screenID }

func LocationPlaylistName(locationName string) string {
	return "LOCATION | " + strings.TrimSpace(locationName)
}

// LegacyName is the name given to a duplicate that lost the tie-break.
func LegacyName(name string, id int64) string {
	return fmt.Sprintf("%s %s | (%d)", LegacyPrefix, name, id)
}

// IsLegacy reports whether name already carries the legacy prefix.
func IsLegacy(name string) bool {
	return strings.HasPrefix(strings.TrimSpace(name), LegacyPrefix)
}

// Result describes one EnsurePlaylist call.
type Result struct {
	Playlist remote.Playlist
	Created  bool
	Renamed  []int64 // duplicates moved aside
}

// Resolver dedupes remote playlists by exact name. The lowest id wins.
type Resolver struct {
	platform remote.Platform
	logger   zerolog.Logger
}

// NewResolver creates a canonical resolver.
func NewResolver(platform remote.Platform, logger zerolog.Logger) *Resolver {
	return &Resolver{platform: platform, logger: logger.With().Str("component", "canonical").Logger()}
}

// EnsurePlaylist returns the canonical playlist named name, creating it when
// absent and renaming any duplicates to LegacyName. Renamed duplicates no
// longer match name, so a second call is a pure read.
func (r *Resolver) EnsurePlaylist(ctx context.Context, name string) (Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Result{}, ErrEmptyName
	}

	candidates, err := r.platform.ListPlaylists(ctx, name)
	if err != nil {
		return Result{}, fmt.Errorf("search playlists %q: %w", name, err)
	}

	var matches []remote.Playlist
	for _, p := range candidates {
		if p.Name == name {
			matches = append(matches, p)
		}
	}

	if len(matches) == 0 {
		created, err := r.platform.CreatePlaylist(ctx, name)
		if err != nil {
			return Result{}, fmt.Errorf("create playlist %q: %w", name, err)
		}
		r.logger.Info().Str("name", name).Int64("playlist_id", created.ID).Msg("created canonical playlist")
		return Result{Playlist: created, Created: true}, nil
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	res := Result{Playlist: matches[0]}

	for _, dup := range matches[1:] {
		legacy := LegacyName(name, dup.ID)
		if err := r.platform.RenamePlaylist(ctx, dup.ID, legacy); err != nil {
			return res, fmt.Errorf("rename duplicate %d: %w", dup.ID, err)
		}
		res.Renamed = append(res.Renamed, dup.ID)
		r.logger.Warn().
			Str("name", name).
			Int64("canonical_id", res.Playlist.ID).
			Int64("duplicate_id", dup.ID).
			Msg("renamed duplicate playlist")
	}

	// Listings are summaries: items may be missing, null or truncated.
	full, err := r.platform.GetPlaylist(ctx, res.Playlist.ID)
	if err != nil {
		return res, fmt.Errorf("get canonical playlist %d: %w", res.Playlist.ID, err)
	}
	res.Playlist = full
	return res, nil
}
