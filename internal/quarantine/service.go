/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package quarantine renames unreferenced legacy playlists and layouts.
// It never deletes anything.
package quarantine

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/signsync/internal/canonical"
	"github.com/friendsincode/signsync/internal/remote"
)

// Object kinds.
const (
	KindPlaylist = "playlist"
	KindLayout   = "layout"
)

// Skip reasons.
const (
	SkipReferenced    = "referenced"
	SkipAlreadyLegacy = "already_legacy"
)

// References lists remote ids that are in use and must keep their names.
type References struct {
	Playlists map[int64]bool
	Layouts   map[int64]bool
}

// NewReferences returns empty reference sets.
func NewReferences() References {
	return References{Playlists: map[int64]bool{}, Layouts: map[int64]bool{}}
}

// Add records src as referenced.
func (r References) Add(src remote.ContentSource) {
	switch src.Kind {
	case remote.SourcePlaylist:
		r.Playlists[src.ID] = true
	case remote.SourceLayout:
		r.Layouts[src.ID] = true
	}
}

// Rename is one (possibly planned) rename.
type Rename struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Skip is a pattern-matching object left alone.
type Skip struct {
	Kind   string `json:"kind"`
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Report summarizes a run.
type Report struct {
	DryRun  bool     `json:"dry_run"`
	Renamed []Rename `json:"renamed"`
	Skipped []Skip   `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// Service finds legacy objects by name pattern.
type Service struct {
	platform remote.Platform
	patterns []*regexp.Regexp
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService compiles patterns and creates the service.
func NewService(platform remote.Platform, patterns []string, now func() time.Time, logger zerolog.Logger) (*Service, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("legacy pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		platform: platform,
		patterns: compiled,
		now:      now,
		logger:   logger.With().Str("component", "quarantine").Logger(),
	}, nil
}

// QuarantineName is the name given to a quarantined object.
func QuarantineName(name string, at time.Time) string {
	return fmt.Sprintf("%s %s | %s", canonical.LegacyPrefix, at.Format("2006-01-02"), name)
}

func (s *Service) matches(name string) bool {
	for _, re := range s.patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

type object struct {
	kind string
	id   int64
	name string
}

// Run lists all playlists and layouts and renames every unreferenced one
// whose name matches a legacy pattern. With dryRun no remote write happens.
// Listing failures abort; rename failures are collected.
func (s *Service) Run(ctx context.Context, refs References, dryRun bool) (Report, error) {
	report := Report{DryRun: dryRun}

	playlists, err := s.platform.ListPlaylists(ctx, "")
	if err != nil {
		return report, fmt.Errorf("list playlists: %w", err)
	}
	layouts, err := s.platform.ListLayouts(ctx)
	if err != nil {
		return report, fmt.Errorf("list layouts: %w", err)
	}

	objects := make([]object, 0, len(playlists)+len(layouts))
	for _, p := range playlists {
		objects = append(objects, object{KindPlaylist, p.ID, p.Name})
	}
	for _, l := range layouts {
		objects = append(objects, object{KindLayout, l.ID, l.Name})
	}
	sort.SliceStable(objects, func(i, j int) bool {
		if objects[i].kind != objects[j].kind {
			return objects[i].kind > objects[j].kind
		}
		return objects[i].id < objects[j].id
	})

	stamp := s.now()
	for _, o := range objects {
		if canonical.IsLegacy(o.name) {
			report.Skipped = append(report.Skipped, Skip{o.kind, o.id, o.name, SkipAlreadyLegacy})
			continue
		}
		if !s.matches(o.name) {
			continue
		}
		if (o.kind == KindPlaylist && refs.Playlists[o.id]) || (o.kind == KindLayout && refs.Layouts[o.id]) {
			report.Skipped = append(report.Skipped, Skip{o.kind, o.id, o.name, SkipReferenced})
			continue
		}

		r := Rename{Kind: o.kind, ID: o.id, From: o.name, To: QuarantineName(o.name, stamp)}
		if !dryRun {
			var err error
			if o.kind == KindPlaylist {
				err = s.platform.RenamePlaylist(ctx, o.id, r.To)
			} else {
				err = s.platform.RenameLayout(ctx, o.id, r.To)
			}
			if err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("%s %d: %v", o.kind, o.id, err))
				continue
			}
		}
		report.Renamed = append(report.Renamed, r)
		s.logger.Info().
			Bool("dry_run", dryRun).
			Str("kind", o.kind).
			Int64("id", o.id).
			Str("to", r.To).
			Msg("quarantined legacy object")
	}
	return report, nil
}
