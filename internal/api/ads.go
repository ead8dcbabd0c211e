/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type publishAdRequest struct {
	MediaID int64 `json:"media_id"`
	DryRun  bool  `json:"dry_run"`
}

func (a *API) handleTargeting(w http.ResponseWriter, r *http.Request) {
	res, err := a.ops.ResolveTargetingWithDiagnostics(r.Context(), chi.URLParam(r, "advertiserID"))
	a.writeResult(w, "targeting", res.Result, res, err)
}

func (a *API) handlePublishAd(w http.ResponseWriter, r *http.Request) {
	var req publishAdRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.MediaID <= 0 {
		writeError(w, http.StatusBadRequest, "media_id_required")
		return
	}
	res, err := a.ops.PublishAdToScreens(r.Context(), chi.URLParam(r, "advertiserID"), req.MediaID, req.DryRun)
	a.writeResult(w, "publish_ad", res.Result, res, err)
}
