/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (a *API) handleReconcileScreen(w http.ResponseWriter, r *http.Request) {
	res, err := a.ops.EnsureCanonicalScreenPlayback(r.Context(), chi.URLParam(r, "screenID"))
	a.writeResult(w, "reconcile_screen", res.Result, res, err)
}

func (a *API) handleNowPlaying(w http.ResponseWriter, r *http.Request) {
	res, err := a.ops.GetScreenNowPlaying(r.Context(), chi.URLParam(r, "screenID"))
	a.writeResult(w, "now_playing", res.Result, res, err)
}

func (a *API) handleRepair(w http.ResponseWriter, r *http.Request) {
	res, err := a.ops.RepairAllScreens(r.Context())
	a.writeResult(w, "repair", res.Result, res, err)
}

func (a *API) handleLocationPlaylist(w http.ResponseWriter, r *http.Request) {
	res, err := a.ops.EnsureLocationPlaylist(r.Context(), chi.URLParam(r, "locationID"))
	a.writeResult(w, "location_playlist", res.Result, res, err)
}

func (a *API) handlePublishBaseline(w http.ResponseWriter, r *http.Request) {
	res, err := a.ops.PublishBaseline(r.Context())
	a.writeResult(w, "publish_baseline", res.Result, res, err)
}

func (a *API) handleDeleteLegacyPlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "playlistID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_playlist_id")
		return
	}
	res, err := a.ops.DeleteLegacyPlaylist(r.Context(), id)
	a.writeResult(w, "delete_legacy_playlist", res.Result, res, err)
}

func (a *API) handleQuarantine(w http.ResponseWriter, r *http.Request) {
	res, err := a.ops.QuarantineLegacy(r.Context(), boolQuery(r, "dry_run"))
	a.writeResult(w, "quarantine", res.Result, res, err)
}

// handleScreenRuns lists recent reconcile runs for a screen, newest first.
func (a *API) handleScreenRuns(w http.ResponseWriter, r *http.Request) {
	if a.runs == nil {
		writeError(w, http.StatusNotImplemented, "runs_unavailable")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	runs, err := a.runs.ListRuns(r.Context(), chi.URLParam(r, "screenID"), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("list runs failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
