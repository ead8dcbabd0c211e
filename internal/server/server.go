/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/friendsincode/signsync/internal/api"
	"github.com/friendsincode/signsync/internal/audit"
	"github.com/friendsincode/signsync/internal/config"
	"github.com/friendsincode/signsync/internal/db"
	"github.com/friendsincode/signsync/internal/eventbus"
	"github.com/friendsincode/signsync/internal/leadership"
	"github.com/friendsincode/signsync/internal/logbuffer"
	"github.com/friendsincode/signsync/internal/scheduler"
	"github.com/friendsincode/signsync/internal/telemetry"
	"github.com/friendsincode/signsync/internal/version"
	"github.com/friendsincode/signsync/internal/webhooks"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
	closers       []func() error
	logBuffer     *logbuffer.Buffer

	components           *Components
	api                  *api.API
	auditSvc             *audit.Service
	webhookSvc           *webhooks.Service
	forwarder            *eventbus.Forwarder
	scheduler            *scheduler.Service
	leaderAwareScheduler *scheduler.LeaderAwareScheduler
	updateChecker        *version.Checker

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New wires every dependency and starts background workers. logBuf may be
// nil, in which case the logs endpoint reports itself unavailable.
func New(ctx context.Context, cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(otelhttp.NewMiddleware("signsync-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Batch operations walk every screen with settle delays; give them room.
	router.Use(middleware.Timeout(15 * time.Minute))

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(ctx); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if cfg.MetricsBind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		srv.metricsServer = &http.Server{
			Addr:              cfg.MetricsBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Cache-Control", "no-store")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies(ctx context.Context) error {
	comps, err := Wire(ctx, s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.components = comps
	s.DeferClose(comps.Close)

	s.auditSvc = audit.NewService(comps.DB, comps.Bus, s.logger)

	if s.cfg.WebhookURL != "" {
		s.webhookSvc = webhooks.NewService(webhooks.Config{
			URL:    s.cfg.WebhookURL,
			Secret: s.cfg.WebhookSecret,
		}, comps.Bus, s.logger)
	}

	if s.cfg.NATSURL != "" {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		natsCfg.SubjectPrefix = s.cfg.NATSSubject
		fwd, err := eventbus.NewNATSForwarder(natsCfg, comps.Bus, s.cfg.InstanceID, s.logger)
		if err != nil {
			// Event forwarding is best effort; reconciliation does not depend on it.
			s.logger.Warn().Err(err).Msg("NATS unavailable, events stay in-process")
		} else {
			s.forwarder = fwd
			s.DeferClose(fwd.Close)
		}
	}

	if s.cfg.RepairEnabled {
		s.scheduler = scheduler.New(comps.Engine, s.cfg.RepairInterval, s.logger)

		if s.cfg.LeaderElectionEnabled {
			election, err := leadership.NewElection(leadership.ElectionConfig{
				RedisAddr:     s.cfg.RedisAddr,
				RedisPassword: s.cfg.RedisPassword,
				RedisDB:       s.cfg.RedisDB,
				InstanceID:    s.cfg.InstanceID,
			}, s.logger)
			if err != nil {
				return fmt.Errorf("create leader election: %w", err)
			}
			s.leaderAwareScheduler = scheduler.NewLeaderAware(s.scheduler, election, s.logger)
			s.logger.Info().
				Str("redis_addr", s.cfg.RedisAddr).
				Str("instance_id", election.InstanceID()).
				Msg("leader election enabled for repair loop")
		}
	}

	s.updateChecker = version.NewChecker(s.logger)

	var jwtSecret []byte
	if s.cfg.JWTSigningKey != "" {
		jwtSecret = []byte(s.cfg.JWTSigningKey)
	} else {
		s.logger.Warn().Msg("no JWT signing key, admin API rejects every authenticated request")
	}
	s.api = api.New(comps.Engine, comps.Store, s.auditSvc, s.logBuffer, jwtSecret, s.logger)
	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer exposes the metrics listener, nil when disabled.
func (s *Server) MetricsServer() *http.Server {
	return s.metricsServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	if s.leaderAwareScheduler != nil {
		if err := s.leaderAwareScheduler.Stop(); err != nil {
			s.logger.Error().Err(err).Msg("leader election shutdown error")
		}
	}
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.auditSvc.Start(ctx)
	if s.webhookSvc != nil {
		s.webhookSvc.Start(ctx)
	}
	if s.forwarder != nil {
		s.forwarder.Start(ctx)
	}

	switch {
	case s.leaderAwareScheduler != nil:
		if err := s.leaderAwareScheduler.Start(ctx); err != nil {
			s.logger.Error().Err(err).Msg("leader-aware scheduler failed to start")
		}
	case s.scheduler != nil:
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("repair loop exited")
			}
		}()
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.updateChecker.Run(ctx)
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.components.DB)
			}
		}
	}()
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

type healthResponse struct {
	Status  string             `json:"status"`
	Version version.UpdateInfo `json:"version"`
	Leader  *bool              `json:"leader,omitempty"`
	Repair  *repairHealth      `json:"repair,omitempty"`
}

type repairHealth struct {
	LastStartedAt time.Time `json:"last_started_at"`
	Total         int       `json:"total"`
	Failed        int       `json:"failed"`
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.api.Routes(s.router)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Version: s.updateChecker.Info()}

	if s.leaderAwareScheduler != nil {
		isLeader := s.leaderAwareScheduler.IsLeader()
		resp.Leader = &isLeader
	}
	if s.scheduler != nil {
		if last, at := s.scheduler.Last(); last != nil {
			resp.Repair = &repairHealth{LastStartedAt: at, Total: last.Total, Failed: last.Failed}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
