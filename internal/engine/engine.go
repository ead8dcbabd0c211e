/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package engine exposes the reconciliation operations to the admin layer.
// Operations return structured results and only fail with an error when the
// process is misconfigured.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/signsync/internal/baseline"
	"github.com/friendsincode/signsync/internal/canonical"
	"github.com/friendsincode/signsync/internal/config"
	"github.com/friendsincode/signsync/internal/events"
	"github.com/friendsincode/signsync/internal/inventory"
	"github.com/friendsincode/signsync/internal/mediaready"
	"github.com/friendsincode/signsync/internal/models"
	"github.com/friendsincode/signsync/internal/playlistsync"
	"github.com/friendsincode/signsync/internal/quarantine"
	"github.com/friendsincode/signsync/internal/reconcile"
	"github.com/friendsincode/signsync/internal/remote"
	"github.com/friendsincode/signsync/internal/source"
	"github.com/friendsincode/signsync/internal/targeting"
)

// ErrMisconfigured is returned when an operation cannot run with the
// current configuration.
var ErrMisconfigured = errors.New("engine misconfigured")

// Machine readable result codes.
const (
	CodeTokenMissing         = "write_gate_token_missing"
	CodeTemplateMissing      = "write_gate_template_missing"
	CodeBaselineBelowMinimum = "write_gate_baseline_below_minimum"
	CodeNoScreens            = "write_gate_no_screens"
	CodeScreenNotFound       = "screen_not_found"
	CodeScreenNotLinked      = "screen_not_linked"
	CodeLocationNotFound     = "location_not_found"
	CodeAdvertiserNotFound   = "advertiser_not_found"
	CodeAdNotApproved        = "ad_not_approved"
	CodeUnknownPackage       = "unknown_package"
	CodeNoEligibleScreens    = "no_eligible_screens"
	CodeMediaNotReady        = "media_not_ready"
	CodeMediaFailed          = "media_failed"
	CodeEmptyItems           = "empty_items"
	CodeHealFailed           = "heal_failed"
	CodeNoExpectedPlaylist   = "no_expected_playlist"
	CodePartialFailure       = "partial_failure"
	CodeBaselineFailed       = "baseline_failed"
	CodeStoreError           = "store_error"
	CodeRemoteError          = "remote_error"
	CodeCanceled             = "canceled"
	CodePlaylistNotFound     = "playlist_not_found"
	CodePlaylistNotLegacy    = "playlist_not_legacy"
	CodePlaylistReferenced   = "playlist_referenced"
)

// Heal triggers recorded on traces.
const (
	TriggerManual    = "manual"
	TriggerRepair    = "repair"
	TriggerAdPublish = "ad_publish"
)

// Store is the local datastore the engine needs.
type Store interface {
	source.PlaylistAdopter
	reconcile.Recorder

	GetScreen(ctx context.Context, id string) (*models.Screen, error)
	ListScreens(ctx context.Context) ([]models.Screen, error)
	ListReconcilableScreens(ctx context.Context) ([]models.Screen, error)
	GetLocation(ctx context.Context, id string) (*models.Location, error)
	ListLocations(ctx context.Context) ([]models.Location, error)
	GetAdvertiser(ctx context.Context, id string) (*models.Advertiser, error)

	AssignPlaylist(ctx context.Context, screenID string, playlistID int64, name string, itemCount int) error
	SetItemCount(ctx context.Context, screenID string, n int) error
	MarkSynced(ctx context.Context, screenID string) error
	SetLocationPlaylist(ctx context.Context, locationID string, playlistID int64) error
	SaveRun(ctx context.Context, run *models.ReconcileRun) error
}

// Archive stores reconcile runs outside the database.
type Archive interface {
	ArchiveRun(ctx context.Context, run models.ReconcileRun) (string, error)
}

// Publisher receives engine events.
type Publisher interface {
	Publish(eventType events.EventType, payload events.Payload)
}

// Readiness waits for remote media to become playable.
type Readiness interface {
	WaitReady(ctx context.Context, mediaID int64) (remote.Media, mediaready.Decision, error)
}

// Gate reports which remote credentials are configured.
type Gate struct {
	TokenConfigured    bool
	TemplateConfigured bool
}

// Deps wires the engine. Platform and Store are required.
type Deps struct {
	Platform remote.Platform
	Store    Store
	Config   config.EngineConfig
	Gate     Gate

	BaselineCache baseline.Cache  // optional, in-process cache by default
	Locker        baseline.Locker // optional
	Archive       Archive         // optional
	Events        Publisher       // optional
	Readiness     Readiness       // defaults to a mediaready poller
	Sleeper       reconcile.Sleeper
	Now           func() time.Time
}

// Engine owns the component graph for one remote platform.
type Engine struct {
	platform   remote.Platform
	store      Store
	cfg        config.EngineConfig
	gate       Gate
	archive    Archive
	events     Publisher
	readiness  Readiness
	sleeper    reconcile.Sleeper
	logger     zerolog.Logger
	resolver   *source.Resolver
	walker     *source.Walker
	canonical  *canonical.Resolver
	sync       *playlistsync.Synchronizer
	controller *reconcile.Controller
	baseline   *baseline.Service
	targeting  *targeting.Engine
	quarantine *quarantine.Service
}

// New builds the engine and its components.
func New(d Deps, logger zerolog.Logger) (*Engine, error) {
	if d.Platform == nil || d.Store == nil {
		return nil, fmt.Errorf("%w: platform and store are required", ErrMisconfigured)
	}
	if d.Sleeper == nil {
		d.Sleeper = reconcile.TimerSleeper{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	cfg := d.Config

	e := &Engine{
		platform: d.Platform,
		store:    d.Store,
		cfg:      cfg,
		gate:     d.Gate,
		archive:  d.Archive,
		events:   d.Events,
		sleeper:  d.Sleeper,
		logger:   logger.With().Str("component", "engine").Logger(),
	}

	e.resolver = source.NewResolver(d.Platform, d.Store, cfg.PlaylistOnly, logger)
	e.walker = source.NewWalker(d.Platform, source.DefaultMaxDepth)
	e.canonical = canonical.NewResolver(d.Platform, logger)
	e.sync = playlistsync.New(d.Platform, cfg.DefaultAdDuration, logger)
	e.controller = reconcile.NewController(e.resolver, d.Platform, reconcile.Options{
		SettleDelay: cfg.SettleDelay,
		RetryDelays: cfg.RetryDelays,
		Sleeper:     d.Sleeper,
		Recorder:    d.Store,
		Now:         d.Now,
	}, logger)
	e.baseline = baseline.NewService(d.Platform, e.canonical, e.sync, baseline.Options{
		Name:             cfg.BaselinePlaylistName,
		MinItems:         cfg.BaselineMinItems,
		SeedMediaIDs:     cfg.BaselineSeedMediaIDs,
		TTL:              cfg.BaselineCacheTTL,
		InterScreenDelay: cfg.InterScreenDelay,
		Cache:            d.BaselineCache,
		Locker:           d.Locker,
		Sleeper:          d.Sleeper,
		Now:              d.Now,
	}, logger)
	e.targeting = targeting.New(cfg.PackageLimit)

	q, err := quarantine.NewService(d.Platform, cfg.LegacyPatterns, d.Now, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMisconfigured, err)
	}
	e.quarantine = q

	e.readiness = d.Readiness
	if e.readiness == nil {
		e.readiness = mediaready.NewPoller(d.Platform, time.Second, 10*time.Second, cfg.MediaReadyTimeout, logger)
	}
	return e, nil
}

// Result is embedded in every operation result.
type Result struct {
	OK    bool     `json:"ok"`
	Code  string   `json:"code,omitempty"`
	Error string   `json:"error,omitempty"`
	Logs  []string `json:"logs,omitempty"`
}

func (r *Result) logf(format string, args ...any) {
	r.Logs = append(r.Logs, fmt.Sprintf(format, args...))
}

func (r *Result) fail(code string, err error) {
	r.OK = false
	r.Code = code
	if err != nil {
		r.Error = err.Error()
	}
}

// BatchItem is the per-screen line of a batch result.
type BatchItem struct {
	ScreenID   string            `json:"screen_id"`
	PlaylistID int64             `json:"playlist_id,omitempty"`
	OK         bool              `json:"ok"`
	Changed    bool              `json:"changed"`
	Outcome    reconcile.Outcome `json:"outcome,omitempty"`
	Code       string            `json:"code,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// BatchResult aggregates per-screen results. One failure never aborts the batch.
type BatchResult struct {
	Result
	Total   int         `json:"total"`
	Success int         `json:"success"`
	Failed  int         `json:"failed"`
	Items   []BatchItem `json:"items"`
}

func (b *BatchResult) add(item BatchItem) {
	b.Items = append(b.Items, item)
	if item.OK {
		b.Success++
	} else {
		b.Failed++
	}
}

func (b *BatchResult) finish() {
	b.OK = b.Failed == 0
	if !b.OK {
		b.Code = CodePartialFailure
	}
}

// checkGate refuses to mutate the remote platform without credentials.
func (e *Engine) checkGate(res *Result, needTemplate bool) error {
	if !e.gate.TokenConfigured {
		err := fmt.Errorf("%w: remote api token is not configured", ErrMisconfigured)
		res.fail(CodeTokenMissing, err)
		return err
	}
	if needTemplate && !e.gate.TemplateConfigured {
		err := fmt.Errorf("%w: remote template id is not configured", ErrMisconfigured)
		res.fail(CodeTemplateMissing, err)
		return err
	}
	return nil
}

// ensureBaseline loads the baseline or fails res with the gate code.
func (e *Engine) ensureBaseline(ctx context.Context, res *Result) (baseline.Snapshot, bool) {
	snap, err := e.baseline.EnsureBaseline(ctx)
	if err != nil {
		res.fail(codeFor(err, CodeBaselineFailed), err)
		return snap, false
	}
	res.logf("baseline playlist %d has %d items", snap.PlaylistID, len(snap.Items))
	return snap, true
}

// sleep spaces out remote calls between screens.
func (e *Engine) sleep(ctx context.Context) error {
	return e.sleeper.Sleep(ctx, e.cfg.InterScreenDelay)
}

func (e *Engine) publish(eventType events.EventType, payload events.Payload) {
	if e.events != nil {
		e.events.Publish(eventType, payload)
	}
}

// codeFor maps an error to a result code.
func codeFor(err error, fallback string) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	case errors.Is(err, playlistsync.ErrEmptyItems):
		return CodeEmptyItems
	case errors.Is(err, baseline.ErrBelowMinimum):
		return CodeBaselineBelowMinimum
	case errors.Is(err, source.ErrNotLinked):
		return CodeScreenNotLinked
	case errors.Is(err, mediaready.ErrFailed):
		return CodeMediaFailed
	case errors.Is(err, mediaready.ErrNotReady):
		return CodeMediaNotReady
	}
	if kind := remote.KindOf(err); kind != "" {
		return "remote_" + string(kind)
	}
	return fallback
}

// lookupCode distinguishes missing records from store failures.
func lookupCode(err error, missing string) string {
	if errors.Is(err, inventory.ErrNotFound) {
		return missing
	}
	return CodeStoreError
}
