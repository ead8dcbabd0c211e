/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/signsync/internal/models"
	"github.com/friendsincode/signsync/internal/remote"
)

// ErrNotLinked is returned for screens without a remote player id.
var ErrNotLinked = errors.New("screen is not linked to a remote player")

// Where the expected playlist id came from.
const (
	ExpectedFromScreen   = "screen"
	ExpectedFromLocation = "location"
	ExpectedFromRemote   = "remote"
)

// Mismatch reasons.
const (
	ReasonSourceNotPlaylist  = "source_not_playlist"
	ReasonNoExpectedPlaylist = "no_expected_playlist"
	ReasonPlaylistDiffers    = "playlist_id_differs"
)

// PlaylistAdopter persists a playlist id discovered on the remote platform.
type PlaylistAdopter interface {
	AdoptPlaylist(ctx context.Context, screenID string, playlistID int64, name string) error
}

// Resolution compares what a screen plays with what it should play.
type Resolution struct {
	ScreenID           string               `json:"screen_id"`
	PlayerID           int64                `json:"player_id"`
	Actual             remote.ContentSource `json:"actual"`
	ExpectedPlaylistID int64                `json:"expected_playlist_id,omitempty"`
	HasExpected        bool                 `json:"has_expected"`
	ExpectedFrom       string               `json:"expected_from,omitempty"`
	Mismatch           bool                 `json:"mismatch"`
	Reason             string               `json:"reason,omitempty"`
	SelfHealed         bool                 `json:"self_healed"`
}

// Converged reports whether the screen plays its expected playlist.
func (r Resolution) Converged() bool {
	return r.HasExpected && !r.Mismatch
}

// Snapshot flattens the resolution for traces.
func (r Resolution) Snapshot() map[string]any {
	return map[string]any{
		"actual_type":          string(r.Actual.Kind),
		"actual_id":            r.Actual.ID,
		"expected_playlist_id": r.ExpectedPlaylistID,
		"expected_from":        r.ExpectedFrom,
		"mismatch":             r.Mismatch,
		"reason":               r.Reason,
	}
}

// Resolver computes expected vs actual playback sources.
type Resolver struct {
	platform     remote.Platform
	adopter      PlaylistAdopter
	playlistOnly bool
	logger       zerolog.Logger
}

// NewResolver creates a resolver. adopter may be nil, in which case self-heal
// only updates the in-memory screen.
func NewResolver(platform remote.Platform, adopter PlaylistAdopter, playlistOnly bool, logger zerolog.Logger) *Resolver {
	return &Resolver{
		platform:     platform,
		adopter:      adopter,
		playlistOnly: playlistOnly,
		logger:       logger.With().Str("component", "source_resolver").Logger(),
	}
}

// Resolve fetches the screen's reported source and compares it with the
// expected playlist. When nothing is expected locally but the platform
// reports a playlist, that id is adopted into the local record.
func (r *Resolver) Resolve(ctx context.Context, screen *models.Screen) (Resolution, error) {
	if !screen.Linked() {
		return Resolution{ScreenID: screen.ID}, ErrNotLinked
	}

	remoteScreen, err := r.platform.GetScreen(ctx, screen.RemotePlayerID)
	if err != nil {
		return Resolution{ScreenID: screen.ID, PlayerID: screen.RemotePlayerID}, fmt.Errorf("get remote screen: %w", err)
	}

	res := Resolution{
		ScreenID: screen.ID,
		PlayerID: screen.RemotePlayerID,
		Actual:   remoteScreen.Source,
	}

	switch {
	case screen.PlaylistID != nil && *screen.PlaylistID > 0:
		res.ExpectedPlaylistID = *screen.PlaylistID
		res.HasExpected = true
		res.ExpectedFrom = ExpectedFromScreen
	case screen.Location != nil && screen.Location.PlaylistID != nil && *screen.Location.PlaylistID > 0:
		res.ExpectedPlaylistID = *screen.Location.PlaylistID
		res.HasExpected = true
		res.ExpectedFrom = ExpectedFromLocation
	}

	actualIsPlaylist := res.Actual.Kind == remote.SourcePlaylist && res.Actual.ID > 0

	if !res.HasExpected && actualIsPlaylist {
		if err := r.adopt(ctx, screen, res.Actual); err != nil {
			return res, err
		}
		res.ExpectedPlaylistID = res.Actual.ID
		res.HasExpected = true
		res.ExpectedFrom = ExpectedFromRemote
		res.SelfHealed = true
	}

	switch {
	case !res.HasExpected && res.Actual.IsZero():
		res.Mismatch = true
		res.Reason = ReasonNoExpectedPlaylist
	case !actualIsPlaylist && (r.playlistOnly || res.HasExpected):
		res.Mismatch = true
		res.Reason = ReasonSourceNotPlaylist
	case !res.HasExpected:
		// Non-playlist source tolerated when playlist-only mode is off.
	case res.Actual.ID != res.ExpectedPlaylistID:
		res.Mismatch = true
		res.Reason = ReasonPlaylistDiffers
	}

	r.logger.Debug().
		Str("screen_id", screen.ID).
		Str("actual", res.Actual.String()).
		Int64("expected_playlist_id", res.ExpectedPlaylistID).
		Bool("mismatch", res.Mismatch).
		Str("reason", res.Reason).
		Msg("resolved screen source")

	return res, nil
}

func (r *Resolver) adopt(ctx context.Context, screen *models.Screen, actual remote.ContentSource) error {
	if r.adopter != nil {
		if err := r.adopter.AdoptPlaylist(ctx, screen.ID, actual.ID, actual.Name); err != nil {
			return fmt.Errorf("adopt remote playlist: %w", err)
		}
	}
	id := actual.ID
	screen.PlaylistID = &id
	if actual.Name != "" {
		screen.PlaylistName = actual.Name
	}
	r.logger.Info().
		Str("screen_id", screen.ID).
		Int64("playlist_id", id).
		Msg("adopted remote playlist into local record")
	return nil
}
