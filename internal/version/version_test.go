/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.2.3", "1.2.3", 0},
		{"1.2.3", "1.2.4", -1},
		{"v2.0.0", "1.9.9", 1},
		{"1.2", "1.2.0", 0},
		{"1.3.0-rc1", "1.3.0", 0},
	}
	for _, tt := range tests {
		if got := compareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("compareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCheckReportsNewerRelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != UserAgent() {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte(`{"tag_name":"v99.0.0","html_url":"https://example.invalid/r"}`))
	}))
	defer srv.Close()

	c := NewChecker(zerolog.Nop())
	c.releasesURL = srv.URL
	c.Check(context.Background())

	info := c.Info()
	if !info.UpdateAvailable || info.LatestVersion != "99.0.0" {
		t.Fatalf("info = %+v", info)
	}
}

func TestCheckKeepsInfoOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewChecker(zerolog.Nop())
	c.releasesURL = srv.URL
	c.Check(context.Background())

	if info := c.Info(); info.UpdateAvailable || info.CurrentVersion != Version {
		t.Fatalf("info = %+v", info)
	}
}
