/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package targeting decides which screens an advertiser's ad runs on.
package targeting

import (
	"sort"
	"strings"

	"github.com/friendsincode/signsync/internal/models"
)

// Scores.
const (
	ScoreCityExact   = 100
	ScoreCityPartial = 50
	ScoreRegion      = 25
	ScoreUntargeted  = 1
)

// Reasons attached to candidates.
const (
	ReasonCityExact        = "city_exact"
	ReasonCityPartial      = "city_partial"
	ReasonRegion           = "region"
	ReasonUntargeted       = "untargeted"
	ReasonNoLocation       = "no_location"
	ReasonLocationInactive = "location_inactive"
	ReasonLocationNotReady = "location_not_ready"
	ReasonLocationPaused   = "location_paused"
	ReasonScreenInactive   = "screen_inactive"
	ReasonNoMatch          = "no_targeting_match"
	ReasonOverLimit        = "over_package_limit"
)

// Advertiser is the targeting view of an advertiser.
type Advertiser struct {
	ID      string
	Package string
	Cities  []string
	Regions []string
}

// ScreenInfo is the targeting view of a screen and its location.
type ScreenInfo struct {
	ScreenID       string
	Name           string
	City           string
	Region         string
	Active         bool
	HasLocation    bool
	LocationActive bool
	ReadyForAds    bool
	Paused         bool
}

// Candidate is one scored screen.
type Candidate struct {
	ScreenID string `json:"screen_id"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Reason   string `json:"reason"`
	Selected bool   `json:"selected"`
}

// Result splits the inventory into selected and excluded screens.
type Result struct {
	Limit    int         `json:"limit"`
	Selected []Candidate `json:"selected"`
	Excluded []Candidate `json:"excluded"`
}

// SelectedIDs returns the selected screen ids in rank order.
func (r Result) SelectedIDs() []string {
	ids := make([]string, 0, len(r.Selected))
	for _, c := range r.Selected {
		ids = append(ids, c.ScreenID)
	}
	return ids
}

// LimitFunc maps a package type to the number of screens it may occupy.
type LimitFunc func(pkg string) int

// Engine scores screens. It holds no state between runs.
type Engine struct {
	limit LimitFunc
}

// New creates an engine.
func New(limit LimitFunc) *Engine {
	return &Engine{limit: limit}
}

// Resolve gates, scores and selects screens for adv.
func (e *Engine) Resolve(adv Advertiser, screens []ScreenInfo) Result {
	res := Result{Limit: e.limit(adv.Package)}
	cities := normalize(adv.Cities)
	regions := normalize(adv.Regions)

	var scored []Candidate
	for _, s := range screens {
		c := Candidate{ScreenID: s.ScreenID, Name: s.Name}
		if reason := gate(s); reason != "" {
			c.Reason = reason
			res.Excluded = append(res.Excluded, c)
			continue
		}
		c.Score, c.Reason = score(s, cities, regions)
		if c.Score <= 0 {
			res.Excluded = append(res.Excluded, c)
			continue
		}
		scored = append(scored, c)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Name != scored[j].Name {
			return scored[i].Name < scored[j].Name
		}
		return scored[i].ScreenID < scored[j].ScreenID
	})

	for i, c := range scored {
		if i < res.Limit {
			c.Selected = true
			res.Selected = append(res.Selected, c)
			continue
		}
		c.Reason = ReasonOverLimit
		res.Excluded = append(res.Excluded, c)
	}
	return res
}

func gate(s ScreenInfo) string {
	switch {
	case !s.HasLocation:
		return ReasonNoLocation
	case !s.LocationActive:
		return ReasonLocationInactive
	case !s.ReadyForAds:
		return ReasonLocationNotReady
	case s.Paused:
		return ReasonLocationPaused
	case !s.Active:
		return ReasonScreenInactive
	}
	return ""
}

// score returns the best match. Partial city matching is substring in either
// direction with no minimum length, so short names match liberally.
func score(s ScreenInfo, cities, regions []string) (int, string) {
	if len(cities) == 0 && len(regions) == 0 {
		return ScoreUntargeted, ReasonUntargeted
	}

	city := strings.ToLower(strings.TrimSpace(s.City))
	region := strings.ToLower(strings.TrimSpace(s.Region))

	best, reason := 0, ReasonNoMatch
	if city != "" {
		for _, target := range cities {
			switch {
			case city == target:
				return ScoreCityExact, ReasonCityExact
			case strings.Contains(city, target) || strings.Contains(target, city):
				best, reason = ScoreCityPartial, ReasonCityPartial
			}
		}
	}
	if best == 0 && region != "" {
		for _, target := range regions {
			if region == target {
				return ScoreRegion, ReasonRegion
			}
		}
	}
	return best, reason
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// FromAdvertiser converts the stored advertiser.
func FromAdvertiser(a models.Advertiser) Advertiser {
	return Advertiser{ID: a.ID, Package: a.PackageType, Cities: a.TargetCities, Regions: a.TargetRegions}
}

// FromScreens converts stored screens; Location must be preloaded.
func FromScreens(screens []models.Screen) []ScreenInfo {
	out := make([]ScreenInfo, 0, len(screens))
	for i := range screens {
		s := &screens[i]
		info := ScreenInfo{
			ScreenID: s.ID,
			Name:     s.Name,
			City:     s.EffectiveCity(),
			Region:   s.EffectiveRegion(),
			Active:   s.Active,
		}
		if s.Location != nil {
			info.HasLocation = true
			info.LocationActive = s.Location.Active()
			info.ReadyForAds = s.Location.ReadyForAds
			info.Paused = s.Location.PausedByAdmin
		}
		out = append(out, info)
	}
	return out
}
