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

// Package server runs the REST API over HTTP/1.1 and HTTP/2, and
// optionally HTTP/3, with graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/quic-go/quic-go/http3"

	"github.com/jeremyhahn/go-keymaster/internal/config"
	"github.com/jeremyhahn/go-keymaster/internal/rest"
	"github.com/jeremyhahn/go-keymaster/internal/unix"
	"github.com/jeremyhahn/go-keymaster/pkg/adapters/logger"
	"github.com/jeremyhahn/go-keymaster/pkg/health"
	"github.com/jeremyhahn/go-keymaster/pkg/metrics"
	"github.com/jeremyhahn/go-keymaster/pkg/ratelimit"
	"github.com/jeremyhahn/go-keymaster/pkg/signing"
)

// collectInterval is how often runtime gauges are refreshed.
const collectInterval = 15 * time.Second

// Server owns the runtime and every listener built from one Config.
type Server struct {
	cfg     *config.Config
	log     logger.Logger
	rt      *config.Runtime
	api     *rest.Server
	health  *health.Checker
	limiter *ratelimit.Limiter
	tls     *tls.Config
	handler http.Handler

	mu    sync.Mutex
	srv   *http.Server
	local *http.Server
	h3    *http3.Server
	close sync.Once
}

// New builds the runtime and the REST handler. Nothing listens until Serve.
func New(cfg *config.Config, log logger.Logger, version string) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Metrics.Enabled {
		metrics.Enable()
	} else {
		metrics.Disable()
	}

	tlsCfg, err := cfg.TLS.Load()
	if err != nil {
		return nil, err
	}
	authenticator, err := cfg.Auth.Authenticator()
	if err != nil {
		return nil, err
	}

	// The API decides per request whether to return the recovery id.
	rt, err := cfg.Build(log, signing.WithRecoveryID())
	if err != nil {
		return nil, err
	}

	checker := health.NewChecker()
	checker.RegisterCheck("storage", health.StorageCheck(cfg.Storage.Backend, rt.Storage))
	checker.RegisterCheck("random", health.RandomCheck(rt.Random))

	s := &Server{
		cfg:    cfg,
		log:    log,
		rt:     rt,
		health: checker,
		tls:    tlsCfg,
	}
	if cfg.RateLimit.Enabled {
		s.limiter = ratelimit.New(&cfg.RateLimit)
	}

	restCfg := &rest.Config{
		KeyMaster:     rt.KeyMaster,
		Authenticator: authenticator,
		Health:        checker,
		Limiter:       s.limiter,
		TrustProxy:    cfg.RateLimit.TrustProxy,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
		Version:       version,
		Logger:        log.With(logger.String("component", "rest")),
	}
	if rt.Events != nil {
		restCfg.Events = rt.Events
	}
	if cfg.Metrics.Enabled {
		restCfg.MetricsPath = cfg.Metrics.Path
	}
	if s.api, err = rest.NewServer(restCfg); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.handler = s.api
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Runtime exposes the key master, engine and storage behind the API.
func (s *Server) Runtime() *config.Runtime {
	return s.rt
}

// Health returns the checker behind the probe routes.
func (s *Server) Health() *health.Checker {
	return s.health
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Server.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully within the configured timeout and releases the runtime.
// When a socket path is configured the API is also served on it.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.Close()

	var sock *unix.Listener
	if s.cfg.Server.Socket != "" {
		var err error
		if sock, err = unix.Listen(s.cfg.Server.Socket, os.FileMode(s.cfg.Server.SocketMode)); err != nil {
			_ = ln.Close()
			return fmt.Errorf("server: %w", err)
		}
	}

	handler := s.handler
	s.mu.Lock()
	if s.cfg.Server.HTTP3 && s.tls != nil {
		s.h3 = &http3.Server{
			Addr:      ln.Addr().String(),
			Handler:   handler,
			TLSConfig: http3.ConfigureTLSConfig(s.tls.Clone()),
		}
		handler = s.altSvc(handler)
	}
	s.srv = &http.Server{
		Handler:           handler,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		IdleTimeout:       2 * s.cfg.Server.ReadTimeout,
		TLSConfig:         s.tls,
	}
	if sock != nil {
		s.local = &http.Server{
			Handler:           s.handler,
			ReadTimeout:       s.cfg.Server.ReadTimeout,
			ReadHeaderTimeout: s.cfg.Server.ReadTimeout,
			WriteTimeout:      s.cfg.Server.WriteTimeout,
		}
	}
	httpSrv, h3, local := s.srv, s.h3, s.local
	s.mu.Unlock()

	collector := metrics.StartResourceCollector(ctx, collectInterval)
	defer collector.Stop()

	errCh := make(chan error, 3)
	go func() {
		var err error
		if s.tls != nil {
			err = httpSrv.ServeTLS(ln, "", "")
		} else {
			err = httpSrv.Serve(ln)
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server: http: %w", err)
		}
	}()
	if h3 != nil {
		go func() {
			if err := h3.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server: http3: %w", err)
			}
		}()
	}

	if local != nil {
		go func() {
			if err := local.Serve(sock); !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server: unix socket: %w", err)
			}
		}()
	}

	s.health.MarkStarted()
	s.log.Info("server started",
		logger.String("addr", ln.Addr().String()),
		logger.Bool("tls", s.tls != nil),
		logger.Bool("http3", h3 != nil),
		logger.String("socket", s.cfg.Server.Socket),
		logger.String("storage", s.cfg.Storage.Backend))

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		s.log.Error("listener failed", logger.Error(serveErr))
	}
	return errors.Join(serveErr, s.Shutdown())
}

// Shutdown stops accepting requests and waits for in-flight ones up to
// the configured shutdown timeout.
func (s *Server) Shutdown() error {
	s.health.MarkNotStarted()

	s.mu.Lock()
	httpSrv, h3, local := s.srv, s.h3, s.local
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if httpSrv != nil {
		if err := httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server: http shutdown: %w", err))
		}
	}
	if local != nil {
		if err := local.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server: unix socket shutdown: %w", err))
		}
	}
	if h3 != nil {
		if err := h3.Close(); err != nil {
			errs = append(errs, fmt.Errorf("server: http3 close: %w", err))
		}
	}
	s.log.Info("server stopped")
	return errors.Join(errs...)
}

// altSvc advertises the HTTP/3 endpoint to HTTP/1.1 and HTTP/2 clients.
func (s *Server) altSvc(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.h3.SetQUICHeaders(w.Header()); err != nil {
			s.log.Debug("alt-svc header not set", logger.Error(err))
		}
		next.ServeHTTP(w, r)
	})
}

// Close releases the rate limiter and the runtime. Serve calls it on exit;
// call it directly only when Serve never ran.
func (s *Server) Close() error {
	var err error
	s.close.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		err = s.rt.Close()
	})
	return err
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
