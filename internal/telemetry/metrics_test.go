/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddlewareRecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/screens/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/screens/{id}", "418"))

	req := httptest.NewRequest(http.MethodGet, "/screens/abc", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/screens/{id}", "418"))
	if after-before != 1 {
		t.Fatalf("expected one request recorded, got delta %v", after-before)
	}
	if got := testutil.ToFloat64(APIActiveConnections); got != 0 {
		t.Fatalf("active connections = %v, want 0", got)
	}
}

func TestMetricsMiddlewareLabelsUnmatchedPaths(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/screens/{id}", func(w http.ResponseWriter, r *http.Request) {})

	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", unmatchedRoute, "404"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-admin/setup.php", nil))

	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", unmatchedRoute, "404"))
	if after-before != 1 {
		t.Fatalf("expected unmatched request recorded, got delta %v", after-before)
	}
}

func TestHandlerExposesSignsyncMetrics(t *testing.T) {
	ReconcileOutcomesTotal.WithLabelValues("HEALED").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{
		"signsync_reconcile_outcomes_total",
		"signsync_api_active_connections",
		"signsync_database_connections_active",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metric %s missing from output", name)
		}
	}
}
