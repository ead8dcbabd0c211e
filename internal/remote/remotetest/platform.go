/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package remotetest provides an in-memory signage platform for tests.
package remotetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/friendsincode/signsync/internal/remote"
)

// Platform is an in-memory remote.Platform. Writes are counted per operation
// so tests can assert idempotence.
type Platform struct {
	mu sync.Mutex

	nextID    int64
	Screens   map[int64]*remote.Screen
	Playlists map[int64]*remote.Playlist
	Layouts   map[int64]*remote.Layout
	Schedules map[int64]*remote.Schedule
	Tagged    map[int64]*remote.TaggedPlaylist
	Media     map[int64]*remote.Media

	// StaleReads makes the next N GetScreen calls after a source patch
	// return the previous source.
	StaleReads int
	// DropPatches makes the next N SetScreenSource calls succeed without effect.
	DropPatches int
	// Errors fails the named operation ("SetScreenSource", "PushScreen", ...)
	// until removed.
	Errors map[string]error
	// SummaryListings makes ListPlaylists return playlists without items.
	SummaryListings bool

	writes map[string]int
	calls  []string
	stale  map[int64]staleSource
}

type staleSource struct {
	src       remote.ContentSource
	remaining int
}

var _ remote.Platform = (*Platform)(nil)

// New returns an empty platform. Ids start at 1000.
func New() *Platform {
	return &Platform{
		nextID:    1000,
		Screens:   map[int64]*remote.Screen{},
		Playlists: map[int64]*remote.Playlist{},
		Layouts:   map[int64]*remote.Layout{},
		Schedules: map[int64]*remote.Schedule{},
		Tagged:    map[int64]*remote.TaggedPlaylist{},
		Media:     map[int64]*remote.Media{},
		Errors:    map[string]error{},
		writes:    map[string]int{},
		stale:     map[int64]staleSource{},
	}
}

// AddScreen registers a player.
func (p *Platform) AddScreen(id int64, src remote.ContentSource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Screens[id] = &remote.Screen{ID: id, Name: fmt.Sprintf("player-%d", id), Online: true, Source: src}
}

// AddPlaylist stores a playlist with an explicit id.
func (p *Platform) AddPlaylist(id int64, name string, mediaIDs ...int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Playlists[id] = &remote.Playlist{ID: id, Name: name, Items: mediaItems(mediaIDs)}
	if id >= p.nextID {
		p.nextID = id + 1
	}
}

// AddMedia stores a media file with the given status.
func (p *Platform) AddMedia(id int64, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Media[id] = &remote.Media{ID: id, Name: fmt.Sprintf("media-%d", id), Status: status, FileURL: "https://cdn.example/m.mp4"}
}

// Writes returns how many times op mutated state.
func (p *Platform) Writes(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes[op]
}

// TotalWrites returns the number of mutating calls.
func (p *Platform) TotalWrites() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, v := range p.writes {
		n += v
	}
	return n
}

// Calls returns the operations invoked so far, in order.
func (p *Platform) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// PlaylistMediaIDs returns a playlist's media ids.
func (p *Platform) PlaylistMediaIDs(id int64) []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pl, ok := p.Playlists[id]; ok {
		return pl.Items.MediaIDs()
	}
	return nil
}

// ScreenSource returns the true current source of a screen.
func (p *Platform) ScreenSource(id int64) remote.ContentSource {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.Screens[id]; ok {
		return s.Source
	}
	return remote.ContentSource{}
}

func (p *Platform) enter(op string) error {
	p.calls = append(p.calls, op)
	if err, ok := p.Errors[op]; ok {
		return err
	}
	return nil
}

func notFound(op string) error {
	return &remote.Error{Kind: remote.KindNotFound, Op: op, Status: 404, Message: "not found"}
}

func mediaItems(ids []int64) remote.Items {
	items := make(remote.Items, 0, len(ids))
	for i, id := range ids {
		items = append(items, remote.MediaItem{MediaID: id, Priority: i + 1})
	}
	return items
}

func clonePlaylist(pl *remote.Playlist) remote.Playlist {
	out := *pl
	out.Items = append(remote.Items(nil), pl.Items...)
	return out
}

func (p *Platform) GetScreen(_ context.Context, id int64) (remote.Screen, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("GetScreen"); err != nil {
		return remote.Screen{}, err
	}
	s, ok := p.Screens[id]
	if !ok {
		return remote.Screen{}, notFound("GetScreen")
	}
	out := *s
	if st, ok := p.stale[id]; ok && st.remaining > 0 {
		out.Source = st.src
		st.remaining--
		p.stale[id] = st
	}
	return out, nil
}

func (p *Platform) SetScreenSource(_ context.Context, id int64, src remote.ContentSource) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("SetScreenSource"); err != nil {
		return err
	}
	s, ok := p.Screens[id]
	if !ok {
		return notFound("SetScreenSource")
	}
	p.writes["SetScreenSource"]++
	if p.DropPatches > 0 {
		p.DropPatches--
		return nil
	}
	if p.StaleReads > 0 {
		p.stale[id] = staleSource{src: s.Source, remaining: p.StaleReads}
	}
	if pl, ok := p.Playlists[src.ID]; ok && src.Kind == remote.SourcePlaylist {
		src.Name = pl.Name
	}
	s.Source = src
	return nil
}

func (p *Platform) PushScreen(_ context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("PushScreen"); err != nil {
		return err
	}
	if _, ok := p.Screens[id]; !ok {
		return notFound("PushScreen")
	}
	p.writes["PushScreen"]++
	return nil
}

func (p *Platform) ListPlaylists(_ context.Context, search string) ([]remote.Playlist, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("ListPlaylists"); err != nil {
		return nil, err
	}
	var out []remote.Playlist
	for _, pl := range p.Playlists {
		// Fuzzy like the real search endpoint.
		if search == "" || strings.Contains(strings.ToLower(pl.Name), strings.ToLower(search)) {
			c := clonePlaylist(pl)
			if p.SummaryListings {
				c.Items = nil
			}
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *Platform) GetPlaylist(_ context.Context, id int64) (remote.Playlist, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("GetPlaylist"); err != nil {
		return remote.Playlist{}, err
	}
	pl, ok := p.Playlists[id]
	if !ok {
		return remote.Playlist{}, notFound("GetPlaylist")
	}
	return clonePlaylist(pl), nil
}

func (p *Platform) CreatePlaylist(_ context.Context, name string) (remote.Playlist, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("CreatePlaylist"); err != nil {
		return remote.Playlist{}, err
	}
	p.writes["CreatePlaylist"]++
	id := p.nextID
	p.nextID++
	pl := &remote.Playlist{ID: id, Name: name, Items: remote.Items{}}
	p.Playlists[id] = pl
	return clonePlaylist(pl), nil
}

func (p *Platform) RenamePlaylist(_ context.Context, id int64, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("RenamePlaylist"); err != nil {
		return err
	}
	pl, ok := p.Playlists[id]
	if !ok {
		return notFound("RenamePlaylist")
	}
	p.writes["RenamePlaylist"]++
	pl.Name = name
	return nil
}

func (p *Platform) SetPlaylistItems(_ context.Context, id int64, items remote.Items) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("SetPlaylistItems"); err != nil {
		return err
	}
	pl, ok := p.Playlists[id]
	if !ok {
		return notFound("SetPlaylistItems")
	}
	p.writes["SetPlaylistItems"]++
	pl.Items = append(remote.Items(nil), items...)
	return nil
}

func (p *Platform) DeletePlaylist(_ context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("DeletePlaylist"); err != nil {
		return err
	}
	if _, ok := p.Playlists[id]; !ok {
		return notFound("DeletePlaylist")
	}
	p.writes["DeletePlaylist"]++
	delete(p.Playlists, id)
	return nil
}

func (p *Platform) ListLayouts(_ context.Context) ([]remote.Layout, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("ListLayouts"); err != nil {
		return nil, err
	}
	out := make([]remote.Layout, 0, len(p.Layouts))
	for _, l := range p.Layouts {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *Platform) GetLayout(_ context.Context, id int64) (remote.Layout, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("GetLayout"); err != nil {
		return remote.Layout{}, err
	}
	l, ok := p.Layouts[id]
	if !ok {
		return remote.Layout{}, notFound("GetLayout")
	}
	return *l, nil
}

func (p *Platform) RenameLayout(_ context.Context, id int64, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("RenameLayout"); err != nil {
		return err
	}
	l, ok := p.Layouts[id]
	if !ok {
		return notFound("RenameLayout")
	}
	p.writes["RenameLayout"]++
	l.Name = name
	return nil
}

func (p *Platform) GetSchedule(_ context.Context, id int64) (remote.Schedule, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("GetSchedule"); err != nil {
		return remote.Schedule{}, err
	}
	s, ok := p.Schedules[id]
	if !ok {
		return remote.Schedule{}, notFound("GetSchedule")
	}
	return *s, nil
}

func (p *Platform) GetTaggedPlaylist(_ context.Context, id int64) (remote.TaggedPlaylist, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("GetTaggedPlaylist"); err != nil {
		return remote.TaggedPlaylist{}, err
	}
	t, ok := p.Tagged[id]
	if !ok {
		return remote.TaggedPlaylist{}, notFound("GetTaggedPlaylist")
	}
	return *t, nil
}

func (p *Platform) GetMedia(_ context.Context, id int64) (remote.Media, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("GetMedia"); err != nil {
		return remote.Media{}, err
	}
	m, ok := p.Media[id]
	if !ok {
		return remote.Media{}, notFound("GetMedia")
	}
	return *m, nil
}

// ListMediaByTag matches media whose name contains the tag.
func (p *Platform) ListMediaByTag(_ context.Context, tag string) ([]remote.Media, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("ListMediaByTag"); err != nil {
		return nil, err
	}
	var out []remote.Media
	for _, m := range p.Media {
		if strings.Contains(m.Name, tag) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
