/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package baseline owns the filler playlist every screen playlist starts with.
package baseline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/signsync/internal/cache"
	"github.com/friendsincode/signsync/internal/canonical"
	"github.com/friendsincode/signsync/internal/playlistsync"
	"github.com/friendsincode/signsync/internal/remote"
	"github.com/friendsincode/signsync/internal/telemetry"
)

// ErrBelowMinimum is returned when the baseline cannot reach the minimum
// item count, even after seeding.
var ErrBelowMinimum = errors.New("baseline below minimum item count")

// Snapshot is the baseline state shared by callers.
type Snapshot = cache.BaselineSnapshot

// Cache stores the baseline snapshot between calls.
type Cache interface {
	GetBaseline(ctx context.Context, name string) (Snapshot, bool)
	SetBaseline(ctx context.Context, name string, snap Snapshot, ttl time.Duration) error
	InvalidateBaseline(ctx context.Context, name string) error
}

// Locker serializes baseline creation across processes.
type Locker interface {
	Lock(ctx context.Context, name string, ttl time.Duration) (func(), error)
}

// Sleeper waits between screens.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Options configures the service.
type Options struct {
	Name             string
	MinItems         int
	SeedMediaIDs     []int64
	TTL              time.Duration
	InterScreenDelay time.Duration

	Cache   Cache  // defaults to an in-process TTL cache
	Locker  Locker // optional
	Sleeper Sleeper
	Now     func() time.Time
}

// Target is one screen playlist to publish into.
type Target struct {
	ScreenID   string
	PlaylistID int64
}

// Outcome is the per-screen result of a publish.
type Outcome struct {
	ScreenID   string  `json:"screen_id"`
	PlaylistID int64   `json:"playlist_id"`
	OK         bool    `json:"ok"`
	Changed    bool    `json:"changed"`
	Items      []int64 `json:"items,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Service maintains the baseline playlist. The mutex collapses concurrent
// callers into a single find-or-create.
type Service struct {
	platform  remote.Platform
	canonical *canonical.Resolver
	sync      *playlistsync.Synchronizer
	opts      Options
	logger    zerolog.Logger

	mu sync.Mutex
}

// NewService creates a baseline service.
func NewService(platform remote.Platform, resolver *canonical.Resolver, syncer *playlistsync.Synchronizer, opts Options, logger zerolog.Logger) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Cache == nil {
		opts.Cache = NewMemoryCache(opts.Now)
	}
	return &Service{
		platform:  platform,
		canonical: resolver,
		sync:      syncer,
		opts:      opts,
		logger:    logger.With().Str("component", "baseline").Logger(),
	}
}

// EnsureBaseline finds or creates the baseline playlist and seeds it up to
// the minimum item count.
func (s *Service) EnsureBaseline(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap, ok := s.opts.Cache.GetBaseline(ctx, s.opts.Name); ok && len(snap.Items) >= s.opts.MinItems {
		telemetry.BaselineCacheTotal.WithLabelValues("hit").Inc()
		return snap, nil
	}
	telemetry.BaselineCacheTotal.WithLabelValues("miss").Inc()

	if s.opts.Locker != nil {
		unlock, err := s.opts.Locker.Lock(ctx, "baseline", 0)
		if err != nil {
			return Snapshot{}, fmt.Errorf("baseline lock: %w", err)
		}
		defer unlock()
	}

	res, err := s.canonical.EnsurePlaylist(ctx, s.opts.Name)
	if err != nil {
		return Snapshot{}, fmt.Errorf("ensure baseline playlist: %w", err)
	}

	snap := Snapshot{PlaylistID: res.Playlist.ID, Items: res.Playlist.Items.MediaIDs(), FetchedAt: s.opts.Now()}

	if len(snap.Items) < s.opts.MinItems {
		seeded := playlistsync.Compose(snap.Items, s.opts.SeedMediaIDs)
		if len(seeded) < s.opts.MinItems {
			return snap, fmt.Errorf("%w: playlist %d has %d items, need %d", ErrBelowMinimum, snap.PlaylistID, len(seeded), s.opts.MinItems)
		}
		if _, err := s.sync.SetItemsExactly(ctx, snap.PlaylistID, seeded); err != nil {
			return snap, fmt.Errorf("seed baseline: %w", err)
		}
		s.logger.Info().
			Int64("playlist_id", snap.PlaylistID).
			Int("items", len(seeded)).
			Msg("seeded baseline playlist")
		snap.Items = seeded
	}

	if err := s.opts.Cache.SetBaseline(ctx, s.opts.Name, snap, s.opts.TTL); err != nil {
		s.logger.Debug().Err(err).Msg("failed to cache baseline")
	}
	return snap, nil
}

// GetBaselineItems returns the baseline media ids in baseline order.
func (s *Service) GetBaselineItems(ctx context.Context) ([]int64, error) {
	snap, err := s.EnsureBaseline(ctx)
	if err != nil {
		return nil, err
	}
	return append([]int64(nil), snap.Items...), nil
}

// Invalidate drops the cached snapshot.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.opts.Cache.InvalidateBaseline(ctx, s.opts.Name); err != nil {
		s.logger.Debug().Err(err).Msg("failed to invalidate baseline cache")
	}
}

// DesiredItems returns baseline followed by the ads already in current.
func DesiredItems(baseline, current []int64) []int64 {
	ads := playlistsync.Subtract(current, baseline)
	return playlistsync.Compose(baseline, ads)
}

// PublishToAllScreens rewrites every target playlist as baseline ++ ads,
// where ads are the target's current items minus the baseline. Targets are
// processed sequentially; one failure does not stop the rest.
func (s *Service) PublishToAllScreens(ctx context.Context, targets []Target) ([]Outcome, error) {
	snap, err := s.EnsureBaseline(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Outcome, 0, len(targets))
	for i, t := range targets {
		if i > 0 && s.opts.InterScreenDelay > 0 && s.opts.Sleeper != nil {
			if err := s.opts.Sleeper.Sleep(ctx, s.opts.InterScreenDelay); err != nil {
				return out, err
			}
		}
		out = append(out, s.publishOne(ctx, snap, t))
	}
	return out, nil
}

func (s *Service) publishOne(ctx context.Context, snap Snapshot, t Target) Outcome {
	o := Outcome{ScreenID: t.ScreenID, PlaylistID: t.PlaylistID}
	if t.PlaylistID == 0 {
		o.Error = "screen has no playlist"
		return o
	}
	if t.PlaylistID == snap.PlaylistID {
		o.Error = "screen is assigned the baseline playlist itself"
		return o
	}

	current, err := s.platform.GetPlaylist(ctx, t.PlaylistID)
	if err != nil {
		o.Error = err.Error()
		return o
	}
	desired := DesiredItems(snap.Items, current.Items.MediaIDs())

	res, err := s.sync.SetItemsExactly(ctx, t.PlaylistID, desired)
	if err != nil {
		o.Error = err.Error()
		s.logger.Warn().Err(err).Str("screen_id", t.ScreenID).Msg("baseline publish failed")
		return o
	}
	o.OK = true
	o.Changed = res.Changed
	o.Items = desired
	return o
}

// MemoryCache is an in-process TTL cache for the baseline snapshot.
type MemoryCache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	snap    Snapshot
	expires time.Time
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{now: now, entries: map[string]memoryEntry{}}
}

func (m *MemoryCache) GetBaseline(_ context.Context, name string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok || !m.now().Before(e.expires) {
		return Snapshot{}, false
	}
	return e.snap, true
}

func (m *MemoryCache) SetBaseline(_ context.Context, name string, snap Snapshot, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[name] = memoryEntry{snap: snap, expires: m.now().Add(ttl)}
	return nil
}

func (m *MemoryCache) InvalidateBaseline(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, name)
	return nil
}
