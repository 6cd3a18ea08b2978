// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keymaster.
//
// go-keymaster is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-keymaster/pkg/adapters/audit"
	"github.com/jeremyhahn/go-keymaster/pkg/adapters/auth"
	"github.com/jeremyhahn/go-keymaster/pkg/adapters/logger"
	"github.com/jeremyhahn/go-keymaster/pkg/health"
	"github.com/jeremyhahn/go-keymaster/pkg/keymaster"
	"github.com/jeremyhahn/go-keymaster/pkg/metrics"
	"github.com/jeremyhahn/go-keymaster/pkg/ratelimit"
)

// DefaultMaxBodyBytes caps API request bodies when Config.MaxBodyBytes is zero.
const DefaultMaxBodyBytes int64 = 1 << 20

// Config holds the REST handler dependencies.
type Config struct {
	// KeyMaster serves the API routes. Required.
	KeyMaster *keymaster.KeyMaster

	// Authenticator guards /api/v1. Defaults to the no-op authenticator.
	Authenticator auth.Authenticator

	// Health backs the /health routes. Defaults to an empty checker that
	// is already marked started.
	Health *health.Checker

	// Limiter throttles /api/v1 after authentication. Optional.
	Limiter    *ratelimit.Limiter
	TrustProxy bool

	// Events serves GET /api/v1/audit. Nil disables the route.
	Events audit.AuditAdapter

	// MetricsPath mounts promhttp when non-empty.
	MetricsPath string

	MaxBodyBytes int64
	Version      string
	Logger       logger.Logger
}

// Server is the REST API. It is an http.Handler; the listener lives in
// internal/server.
type Server struct {
	km            *keymaster.KeyMaster
	authenticator auth.Authenticator
	health        *health.Checker
	limiter       *ratelimit.Limiter
	trustProxy    bool
	events        audit.AuditAdapter
	metricsPath   string
	maxBody       int64
	version       string
	log           logger.Logger
	router        chi.Router
}

// NewServer validates cfg and builds the router.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil || cfg.KeyMaster == nil {
		return nil, errors.New("rest: key master is required")
	}
	s := &Server{
		km:            cfg.KeyMaster,
		authenticator: cfg.Authenticator,
		health:        cfg.Health,
		limiter:       cfg.Limiter,
		trustProxy:    cfg.TrustProxy,
		events:        cfg.Events,
		metricsPath:   cfg.MetricsPath,
		maxBody:       cfg.MaxBodyBytes,
		version:       cfg.Version,
		log:           cfg.Logger,
	}
	if s.authenticator == nil {
		s.authenticator = auth.NewNoOpAuthenticator()
	}
	if s.health == nil {
		s.health = health.NewChecker()
		s.health.MarkStarted()
	}
	if s.maxBody <= 0 {
		s.maxBody = DefaultMaxBodyBytes
	}
	if s.version == "" {
		s.version = "dev"
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.RecoveryMiddleware)
	r.Use(s.CorrelationMiddleware)
	r.Use(s.LoggingMiddleware)
	r.Use(metrics.HTTPMiddleware)

	r.Get("/health", s.HealthHandler)
	r.Head("/health", s.HealthHandler)
	r.Get("/health/live", s.LivenessHandler)
	r.Get("/health/ready", s.ReadinessHandler)
	r.Get("/health/startup", s.StartupHandler)
	if s.metricsPath != "" {
		r.Handle(s.metricsPath, promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.AuthenticationMiddleware)
		if s.limiter != nil {
			r.Use(ratelimit.Middleware(s.limiter, s.trustProxy))
		}
		r.Use(BodyLimitMiddleware(s.maxBody))

		r.Get("/version", s.VersionHandler)
		r.With(s.RequireScope(auth.ScopeSign)).Post("/sign", s.SignHandler)
		r.With(s.RequireScope(auth.ScopePublicKey)).Post("/pubkey", s.PublicKeyHandler)
		r.With(s.RequireScope(auth.ScopeVerify)).Post("/verify", s.VerifyHandler)
		r.With(s.RequireScope(auth.ScopeAudit)).Get("/audit", s.AuditHandler)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, errors.New("not found"), http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, errors.New("method not allowed"), http.StatusMethodNotAllowed)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Health returns the checker behind the /health routes.
func (s *Server) Health() *health.Checker {
	return s.health
}
