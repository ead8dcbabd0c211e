/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package remote

import (
	"encoding/json"
	"fmt"
	"time"
)

// SourceKind is the type of content a screen plays.
type SourceKind string

const (
	SourcePlaylist       SourceKind = "playlist"
	SourceLayout         SourceKind = "layout"
	SourceSchedule       SourceKind = "schedule"
	SourceTaggedPlaylist SourceKind = "tagged_playlist"
)

// ContentSource is what the platform reports a screen is playing.
type ContentSource struct {
	Kind SourceKind `json:"type"`
	ID   int64      `json:"id"`
	Name string     `json:"name,omitempty"`
}

// IsZero reports whether the platform returned no source at all.
func (s ContentSource) IsZero() bool {
	return s.Kind == "" && s.ID == 0
}

func (s ContentSource) String() string {
	if s.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%s:%d", s.Kind, s.ID)
}

// Screen is the platform view of a player.
type Screen struct {
	ID     int64         `json:"id"`
	Name   string        `json:"name"`
	Online bool          `json:"online"`
	Source ContentSource `json:"source"`
}

// ItemKind discriminates playlist entries.
type ItemKind string

const (
	ItemMedia    ItemKind = "media"
	ItemWidget   ItemKind = "widget"
	ItemPlaylist ItemKind = "playlist"
	ItemLayout   ItemKind = "layout"
)

// Item is one playlist entry. The set of implementations is closed.
type Item interface {
	Kind() ItemKind
	RefID() int64
	isItem()
}

// MediaItem plays a media file.
type MediaItem struct {
	MediaID  int64
	Priority int
	Duration time.Duration
}

// WidgetItem plays a platform widget (clock, weather, ...).
type WidgetItem struct {
	WidgetID int64
	Priority int
	Duration time.Duration
}

// NestedPlaylistItem embeds another playlist.
type NestedPlaylistItem struct {
	PlaylistID int64
	Priority   int
}

// LayoutItem embeds a layout.
type LayoutItem struct {
	LayoutID int64
	Priority int
}

func (MediaItem) Kind() ItemKind          { return ItemMedia }
func (WidgetItem) Kind() ItemKind         { return ItemWidget }
func (NestedPlaylistItem) Kind() ItemKind { return ItemPlaylist }
func (LayoutItem) Kind() ItemKind         { return ItemLayout }

func (i MediaItem) RefID() int64          { return i.MediaID }
func (i WidgetItem) RefID() int64         { return i.WidgetID }
func (i NestedPlaylistItem) RefID() int64 { return i.PlaylistID }
func (i LayoutItem) RefID() int64         { return i.LayoutID }

func (MediaItem) isItem()          {}
func (WidgetItem) isItem()         {}
func (NestedPlaylistItem) isItem() {}
func (LayoutItem) isItem()         {}

type wireItem struct {
	Type     ItemKind `json:"type"`
	ID       int64    `json:"id"`
	Priority int      `json:"priority"`
	Duration float64  `json:"duration,omitempty"`
}

func seconds(d time.Duration) float64 { return d.Seconds() }

func fromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func encodeItem(it Item) wireItem {
	switch v := it.(type) {
	case MediaItem:
		return wireItem{Type: ItemMedia, ID: v.MediaID, Priority: v.Priority, Duration: seconds(v.Duration)}
	case WidgetItem:
		return wireItem{Type: ItemWidget, ID: v.WidgetID, Priority: v.Priority, Duration: seconds(v.Duration)}
	case NestedPlaylistItem:
		return wireItem{Type: ItemPlaylist, ID: v.PlaylistID, Priority: v.Priority}
	case LayoutItem:
		return wireItem{Type: ItemLayout, ID: v.LayoutID, Priority: v.Priority}
	}
	panic(fmt.Sprintf("remote: unknown item type %T", it))
}

func decodeItem(w wireItem) (Item, error) {
	switch w.Type {
	case ItemMedia:
		return MediaItem{MediaID: w.ID, Priority: w.Priority, Duration: fromSeconds(w.Duration)}, nil
	case ItemWidget:
		return WidgetItem{WidgetID: w.ID, Priority: w.Priority, Duration: fromSeconds(w.Duration)}, nil
	case ItemPlaylist:
		return NestedPlaylistItem{PlaylistID: w.ID, Priority: w.Priority}, nil
	case ItemLayout:
		return LayoutItem{LayoutID: w.ID, Priority: w.Priority}, nil
	}
	return nil, fmt.Errorf("unknown item type %q", w.Type)
}

// Items is an ordered playlist body with JSON support for the closed item set.
type Items []Item

// MarshalJSON implements json.Marshaler.
func (it Items) MarshalJSON() ([]byte, error) {
	out := make([]wireItem, 0, len(it))
	for _, item := range it {
		out = append(out, encodeItem(item))
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. A JSON null leaves Items nil,
// which callers read as "not included" rather than "empty".
func (it *Items) UnmarshalJSON(data []byte) error {
	var raw []wireItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*it = nil
		return nil
	}
	out := make(Items, 0, len(raw))
	for _, w := range raw {
		item, err := decodeItem(w)
		if err != nil {
			return err
		}
		out = append(out, item)
	}
	*it = out
	return nil
}

// MediaIDs returns the media ids in playback order, skipping other kinds.
func (it Items) MediaIDs() []int64 {
	ids := make([]int64, 0, len(it))
	for _, item := range it {
		if m, ok := item.(MediaItem); ok {
			ids = append(ids, m.MediaID)
		}
	}
	return ids
}

// OnlyMedia reports whether every entry is a media item.
func (it Items) OnlyMedia() bool {
	for _, item := range it {
		if item.Kind() != ItemMedia {
			return false
		}
	}
	return true
}

// Playlist is a remote playlist.
type Playlist struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Items Items  `json:"items"`
}

// Region is one zone of a layout.
type Region struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Items Items  `json:"items"`
}

// Layout is a multi-zone screen arrangement.
type Layout struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Regions []Region `json:"regions"`
}

// ScheduleEntry plays Source during a window.
type ScheduleEntry struct {
	Source   ContentSource `json:"source"`
	StartsAt time.Time     `json:"starts_at"`
	EndsAt   time.Time     `json:"ends_at"`
}

// Schedule is a time-sliced list of sources.
type Schedule struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Entries []ScheduleEntry `json:"entries"`
}

// TaggedPlaylist selects media dynamically by tag.
type TaggedPlaylist struct {
	ID   int64    `json:"id"`
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// Media is a remote media file and its processing signals.
type Media struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Status       string  `json:"status"`
	Progress     *int    `json:"processing_progress,omitempty"`
	FileURL      string  `json:"file_url,omitempty"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
	Duration     float64 `json:"duration,omitempty"`
}
