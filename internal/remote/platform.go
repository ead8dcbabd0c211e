/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Platform is the subset of the signage platform the engine depends on.
// Client implements it against the REST API; remotetest.Platform in memory.
type Platform interface {
	GetScreen(ctx context.Context, id int64) (Screen, error)
	SetScreenSource(ctx context.Context, id int64, src ContentSource) error
	PushScreen(ctx context.Context, id int64) error

	ListPlaylists(ctx context.Context, search string) ([]Playlist, error)
	GetPlaylist(ctx context.Context, id int64) (Playlist, error)
	CreatePlaylist(ctx context.Context, name string) (Playlist, error)
	RenamePlaylist(ctx context.Context, id int64, name string) error
	SetPlaylistItems(ctx context.Context, id int64, items Items) error
	DeletePlaylist(ctx context.Context, id int64) error

	ListLayouts(ctx context.Context) ([]Layout, error)
	GetLayout(ctx context.Context, id int64) (Layout, error)
	RenameLayout(ctx context.Context, id int64, name string) error

	GetSchedule(ctx context.Context, id int64) (Schedule, error)
	GetTaggedPlaylist(ctx context.Context, id int64) (TaggedPlaylist, error)

	GetMedia(ctx context.Context, id int64) (Media, error)
	ListMediaByTag(ctx context.Context, tag string) ([]Media, error)
}

var _ Platform = (*Client)(nil)

// GetScreen fetches a player and its reported content source.
func (c *Client) GetScreen(ctx context.Context, id int64) (Screen, error) {
	var s Screen
	err := c.getJSON(ctx, fmt.Sprintf("/screens/%d", id), &s)
	return s, err
}

// SetScreenSource patches the screen's default content.
func (c *Client) SetScreenSource(ctx context.Context, id int64, src ContentSource) error {
	body := map[string]any{"source": map[string]any{"type": src.Kind, "id": src.ID}}
	return c.sendJSON(ctx, http.MethodPatch, fmt.Sprintf("/screens/%d", id), body, nil)
}

// PushScreen asks the platform to apply pending changes to the device.
func (c *Client) PushScreen(ctx context.Context, id int64) error {
	return c.sendJSON(ctx, http.MethodPost, fmt.Sprintf("/screens/%d/push", id), map[string]any{}, nil)
}

// ListPlaylists returns every playlist, optionally filtered by a server-side
// search. The platform search is fuzzy so callers must compare names exactly.
func (c *Client) ListPlaylists(ctx context.Context, search string) ([]Playlist, error) {
	q := url.Values{}
	if search != "" {
		q.Set("search", search)
	}
	return listAll[Playlist](ctx, c, "/playlists", q)
}

// GetPlaylist fetches one playlist with its items.
func (c *Client) GetPlaylist(ctx context.Context, id int64) (Playlist, error) {
	var p Playlist
	err := c.getJSON(ctx, fmt.Sprintf("/playlists/%d", id), &p)
	return p, err
}

// CreatePlaylist creates an empty playlist from the configured template.
func (c *Client) CreatePlaylist(ctx context.Context, name string) (Playlist, error) {
	body := map[string]any{"name": name, "items": Items{}}
	if c.templateID != "" {
		body["template_id"] = c.templateID
	}
	var p Playlist
	err := c.sendJSON(ctx, http.MethodPost, "/playlists", body, &p)
	return p, err
}

// RenamePlaylist changes a playlist name.
func (c *Client) RenamePlaylist(ctx context.Context, id int64, name string) error {
	return c.sendJSON(ctx, http.MethodPatch, fmt.Sprintf("/playlists/%d", id), map[string]any{"name": name}, nil)
}

// SetPlaylistItems replaces the playlist body in one write.
func (c *Client) SetPlaylistItems(ctx context.Context, id int64, items Items) error {
	return c.sendJSON(ctx, http.MethodPatch, fmt.Sprintf("/playlists/%d", id), map[string]any{"items": items}, nil)
}

// DeletePlaylist removes a playlist.
func (c *Client) DeletePlaylist(ctx context.Context, id int64) error {
	return c.sendJSON(ctx, http.MethodDelete, fmt.Sprintf("/playlists/%d", id), nil, nil)
}

// ListLayouts returns every layout.
func (c *Client) ListLayouts(ctx context.Context) ([]Layout, error) {
	return listAll[Layout](ctx, c, "/layouts", nil)
}

// GetLayout fetches a layout with its regions.
func (c *Client) GetLayout(ctx context.Context, id int64) (Layout, error) {
	var l Layout
	err := c.getJSON(ctx, fmt.Sprintf("/layouts/%d", id), &l)
	return l, err
}

// RenameLayout changes a layout name.
func (c *Client) RenameLayout(ctx context.Context, id int64, name string) error {
	return c.sendJSON(ctx, http.MethodPatch, fmt.Sprintf("/layouts/%d", id), map[string]any{"name": name}, nil)
}

// GetSchedule fetches a schedule.
func (c *Client) GetSchedule(ctx context.Context, id int64) (Schedule, error) {
	var s Schedule
	err := c.getJSON(ctx, fmt.Sprintf("/schedules/%d", id), &s)
	return s, err
}

// GetTaggedPlaylist fetches a tag-driven playlist definition.
func (c *Client) GetTaggedPlaylist(ctx context.Context, id int64) (TaggedPlaylist, error) {
	var t TaggedPlaylist
	err := c.getJSON(ctx, fmt.Sprintf("/tagged_playlists/%d", id), &t)
	return t, err
}

// GetMedia fetches a media file and its processing state.
func (c *Client) GetMedia(ctx context.Context, id int64) (Media, error) {
	var m Media
	err := c.getJSON(ctx, fmt.Sprintf("/media/%d", id), &m)
	return m, err
}

// ListMediaByTag lists media carrying tag.
func (c *Client) ListMediaByTag(ctx context.Context, tag string) ([]Media, error) {
	return listAll[Media](ctx, c, "/media", url.Values{"tag": []string{tag}})
}
