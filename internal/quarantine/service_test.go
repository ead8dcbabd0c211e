/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package quarantine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/signsync/internal/remote"
	"github.com/friendsincode/signsync/internal/remote/remotetest"
)

var patterns = []string{`^SCREEN \| `, `^BASELINE \| `, `(?i)^copy of `}

func fixture() *remotetest.Platform {
	p := remotetest.New()
	p.AddPlaylist(1, "SCREEN | a")    // referenced
	p.AddPlaylist(2, "SCREEN | old")  // orphan
	p.AddPlaylist(3, "Copy of promo") // orphan
	p.AddPlaylist(4, "Menu board")    // no pattern
	p.AddPlaylist(5, "LEGACY | A | (5)")
	p.Layouts[10] = &remote.Layout{ID: 10, Name: "copy of lobby"}
	p.Layouts[11] = &remote.Layout{ID: 11, Name: "Copy of entrance"}
	return p
}

func refs() References {
	r := NewReferences()
	r.Add(remote.ContentSource{Kind: remote.SourcePlaylist, ID: 1})
	r.Add(remote.ContentSource{Kind: remote.SourceLayout, ID: 11})
	return r
}

func TestRunRenamesOnlyUnreferencedMatches(t *testing.T) {
	p := fixture()
	at := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	s, err := NewService(p, patterns, func() time.Time { return at }, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	report, err := s.Run(context.Background(), refs(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Renamed) != 3 {
		t.Fatalf("renamed = %+v", report.Renamed)
	}
	if p.Playlists[2].Name != "LEGACY | 2026-03-04 | SCREEN | old" {
		t.Fatalf("playlist 2 = %q", p.Playlists[2].Name)
	}
	if p.Layouts[10].Name != "LEGACY | 2026-03-04 | copy of lobby" {
		t.Fatalf("layout 10 = %q", p.Layouts[10].Name)
	}
	unchanged := map[int64]string{1: "SCREEN | a", 4: "Menu board", 5: "LEGACY | A | (5)"}
	for id, want := range unchanged {
		if got := p.Playlists[id].Name; got != want {
			t.Fatalf("playlist %d = %q, want %q", id, got, want)
		}
	}
	if p.Layouts[11].Name != "Copy of entrance" {
		t.Fatal("referenced layout renamed")
	}
	if p.Writes("DeletePlaylist") != 0 {
		t.Fatal("quarantine deleted something")
	}

	again, err := s.Run(context.Background(), refs(), false)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Renamed) != 0 {
		t.Fatalf("second run renamed %+v", again.Renamed)
	}
}

func TestRunDryRunDoesNotWrite(t *testing.T) {
	p := fixture()
	s, err := NewService(p, patterns, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	report, err := s.Run(context.Background(), refs(), true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.DryRun || len(report.Renamed) != 3 {
		t.Fatalf("report = %+v", report)
	}
	if p.TotalWrites() != 0 {
		t.Fatal("dry run wrote to the remote platform")
	}
}

func TestNewServiceRejectsBadPattern(t *testing.T) {
	if _, err := NewService(remotetest.New(), []string{"("}, nil, zerolog.Nop()); err == nil {
		t.Fatal("expected compile error")
	}
}
