/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/signsync/internal/audit"
	"github.com/friendsincode/signsync/internal/auth"
	"github.com/friendsincode/signsync/internal/engine"
	"github.com/friendsincode/signsync/internal/logbuffer"
	"github.com/friendsincode/signsync/internal/models"
)

// Operations is the engine surface exposed over HTTP.
type Operations interface {
	EnsureCanonicalScreenPlayback(ctx context.Context, screenID string) (engine.ScreenResult, error)
	RepairAllScreens(ctx context.Context) (engine.BatchResult, error)
	PublishAdToScreens(ctx context.Context, advertiserID string, mediaID int64, dryRun bool) (engine.PublishResult, error)
	ResolveTargetingWithDiagnostics(ctx context.Context, advertiserID string) (engine.TargetingResult, error)
	GetScreenNowPlaying(ctx context.Context, screenID string) (engine.NowPlayingResult, error)
	PublishBaseline(ctx context.Context) (engine.BatchResult, error)
	QuarantineLegacy(ctx context.Context, dryRun bool) (engine.QuarantineResult, error)
	EnsureLocationPlaylist(ctx context.Context, locationID string) (engine.LocationResult, error)
	DeleteLegacyPlaylist(ctx context.Context, playlistID int64) (engine.DeleteResult, error)
}

// RunLister reads persisted reconcile runs.
type RunLister interface {
	ListRuns(ctx context.Context, screenID string, limit int) ([]models.ReconcileRun, error)
}

// AuditQuerier reads the audit trail.
type AuditQuerier interface {
	Query(ctx context.Context, filters audit.QueryFilters) ([]models.AuditLog, int64, error)
}

// API exposes HTTP handlers.
type API struct {
	ops       Operations
	runs      RunLister
	auditSvc  AuditQuerier
	logBuffer *logbuffer.Buffer
	jwtSecret []byte
	logger    zerolog.Logger
}

// New creates the API router wrapper. runs, auditSvc and logBuf may be nil.
func New(ops Operations, runs RunLister, auditSvc AuditQuerier, logBuf *logbuffer.Buffer, jwtSecret []byte, logger zerolog.Logger) *API {
	return &API{
		ops:       ops,
		runs:      runs,
		auditSvc:  auditSvc,
		logBuffer: logBuf,
		jwtSecret: jwtSecret,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes registers the admin API on r.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.Route("/screens/{screenID}", func(r chi.Router) {
				r.Get("/now-playing", a.handleNowPlaying)
				r.Get("/runs", a.handleScreenRuns)
				r.With(a.operator()).Post("/reconcile", a.handleReconcileScreen)
			})

			pr.With(a.operator()).Post("/locations/{locationID}/playlist", a.handleLocationPlaylist)

			pr.Route("/advertisers/{advertiserID}", func(r chi.Router) {
				r.Get("/targeting", a.handleTargeting)
				r.With(a.operator()).Post("/publish", a.handlePublishAd)
			})

			pr.Group(func(r chi.Router) {
				r.Use(a.operator())
				r.Post("/repair", a.handleRepair)
				r.Post("/baseline/publish", a.handlePublishBaseline)
				r.Post("/quarantine", a.handleQuarantine)
				r.Delete("/playlists/{playlistID}", a.handleDeleteLegacyPlaylist)
			})

			pr.Get("/audit", a.handleAuditList)

			pr.With(a.operator()).Route("/logs", func(r chi.Router) {
				r.Get("/", a.handleLogs)
				r.Get("/stats", a.handleLogStats)
			})
		})
	})
}

func (a *API) operator() func(http.Handler) http.Handler {
	return auth.RequireRole(auth.RoleOperator)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeResult writes an engine result. Misconfiguration is a server-side
// condition; everything else is reported through the result code.
func (a *API) writeResult(w http.ResponseWriter, op string, res engine.Result, body any, err error) {
	if err != nil {
		if errors.Is(err, engine.ErrMisconfigured) {
			a.logger.Error().Err(err).Str("operation", op).Msg("engine misconfigured")
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		a.logger.Error().Err(err).Str("operation", op).Msg("operation failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, statusFor(res), body)
}

// statusFor maps a result code onto an HTTP status.
func statusFor(res engine.Result) int {
	if res.OK {
		return http.StatusOK
	}
	switch res.Code {
	case engine.CodeScreenNotFound, engine.CodeLocationNotFound, engine.CodeAdvertiserNotFound, engine.CodePlaylistNotFound:
		return http.StatusNotFound
	case engine.CodeTokenMissing, engine.CodeTemplateMissing:
		return http.StatusServiceUnavailable
	case engine.CodeBaselineBelowMinimum, engine.CodeNoScreens, engine.CodeScreenNotLinked,
		engine.CodeAdNotApproved, engine.CodeUnknownPackage, engine.CodeNoEligibleScreens,
		engine.CodeMediaNotReady, engine.CodeMediaFailed, engine.CodeEmptyItems, engine.CodeNoExpectedPlaylist,
		engine.CodePlaylistNotLegacy, engine.CodePlaylistReferenced:
		return http.StatusConflict
	case engine.CodePartialFailure:
		return http.StatusMultiStatus
	case engine.CodeCanceled:
		return http.StatusRequestTimeout
	case engine.CodeStoreError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func boolQuery(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
