/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package source

import (
	"context"
	"fmt"

	"github.com/friendsincode/signsync/internal/remote"
)

// DefaultMaxDepth bounds nested content resolution.
const DefaultMaxDepth = 5

// Node kinds beyond remote.SourceKind.
const (
	NodeRegion = "region"
	NodeMedia  = "media"
	NodeWidget = "widget"
)

// Notes attached to nodes that were not expanded.
const (
	NoteVisited  = "already_visited"
	NoteMaxDepth = "max_depth"
)

// Node is one element of a resolved content tree.
type Node struct {
	Kind     string `json:"kind"`
	ID       int64  `json:"id"`
	Name     string `json:"name,omitempty"`
	Note     string `json:"note,omitempty"`
	Children []Node `json:"children,omitempty"`
}

// MediaIDs returns every media id reachable from n, depth first.
func (n Node) MediaIDs() []int64 {
	var ids []int64
	var visit func(Node)
	visit = func(x Node) {
		if x.Kind == NodeMedia {
			ids = append(ids, x.ID)
		}
		for _, c := range x.Children {
			visit(c)
		}
	}
	visit(n)
	return ids
}

type visitKey struct {
	kind string
	id   int64
}

// Walker expands a content source into a tree across playlists, layouts,
// schedules and tagged playlists. Each (kind, id) is expanded at most once.
type Walker struct {
	platform remote.Platform
	maxDepth int
}

// NewWalker creates a walker. maxDepth <= 0 selects DefaultMaxDepth.
func NewWalker(platform remote.Platform, maxDepth int) *Walker {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Walker{platform: platform, maxDepth: maxDepth}
}

// Walk resolves src. Only a failure to fetch the root is returned as an
// error; failures below it are recorded on the affected node.
func (w *Walker) Walk(ctx context.Context, src remote.ContentSource) (Node, error) {
	if src.IsZero() {
		return Node{}, fmt.Errorf("empty content source")
	}
	visited := map[visitKey]bool{}
	return w.walk(ctx, string(src.Kind), src.ID, 0, visited)
}

func (w *Walker) walk(ctx context.Context, kind string, id int64, depth int, visited map[visitKey]bool) (Node, error) {
	node := Node{Kind: kind, ID: id}
	if depth > w.maxDepth {
		node.Note = NoteMaxDepth
		return node, nil
	}
	key := visitKey{kind: kind, id: id}
	if visited[key] {
		node.Note = NoteVisited
		return node, nil
	}
	visited[key] = true

	switch remote.SourceKind(kind) {
	case remote.SourcePlaylist:
		pl, err := w.platform.GetPlaylist(ctx, id)
		if err != nil {
			return node, err
		}
		node.Name = pl.Name
		node.Children = w.items(ctx, pl.Items, depth, visited)

	case remote.SourceLayout:
		l, err := w.platform.GetLayout(ctx, id)
		if err != nil {
			return node, err
		}
		node.Name = l.Name
		for _, region := range l.Regions {
			node.Children = append(node.Children, Node{
				Kind:     NodeRegion,
				ID:       region.ID,
				Name:     region.Name,
				Children: w.items(ctx, region.Items, depth+1, visited),
			})
		}

	case remote.SourceSchedule:
		s, err := w.platform.GetSchedule(ctx, id)
		if err != nil {
			return node, err
		}
		node.Name = s.Name
		for _, entry := range s.Entries {
			node.Children = append(node.Children, w.child(ctx, string(entry.Source.Kind), entry.Source.ID, depth+1, visited))
		}

	case remote.SourceTaggedPlaylist:
		t, err := w.platform.GetTaggedPlaylist(ctx, id)
		if err != nil {
			return node, err
		}
		node.Name = t.Name
		seen := map[int64]bool{}
		for _, tag := range t.Tags {
			media, err := w.platform.ListMediaByTag(ctx, tag)
			if err != nil {
				node.Note = "error: " + err.Error()
				continue
			}
			for _, m := range media {
				if seen[m.ID] {
					continue
				}
				seen[m.ID] = true
				node.Children = append(node.Children, Node{Kind: NodeMedia, ID: m.ID, Name: m.Name})
			}
		}

	default:
		node.Note = "unsupported source kind"
	}
	return node, nil
}

func (w *Walker) items(ctx context.Context, items remote.Items, depth int, visited map[visitKey]bool) []Node {
	out := make([]Node, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case remote.MediaItem:
			out = append(out, Node{Kind: NodeMedia, ID: v.MediaID})
		case remote.WidgetItem:
			out = append(out, Node{Kind: NodeWidget, ID: v.WidgetID})
		case remote.NestedPlaylistItem:
			out = append(out, w.child(ctx, string(remote.SourcePlaylist), v.PlaylistID, depth+1, visited))
		case remote.LayoutItem:
			out = append(out, w.child(ctx, string(remote.SourceLayout), v.LayoutID, depth+1, visited))
		}
	}
	return out
}

func (w *Walker) child(ctx context.Context, kind string, id int64, depth int, visited map[visitKey]bool) Node {
	n, err := w.walk(ctx, kind, id, depth, visited)
	if err != nil {
		n.Note = "error: " + err.Error()
	}
	return n
}
