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
	"net/http"
	"time"

	"github.com/jeremyhahn/go-keymaster/pkg/adapters/auth"
	"github.com/jeremyhahn/go-keymaster/pkg/adapters/logger"
	"github.com/jeremyhahn/go-keymaster/pkg/correlation"
	"github.com/jeremyhahn/go-keymaster/pkg/validation"
)

// statusRecorder captures the status code written by the next handler.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.written {
		rw.status = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// requestLog returns the server logger tagged with the request's correlation ID.
func (s *Server) requestLog(r *http.Request) logger.Logger {
	if id := correlation.GetCorrelationID(r.Context()); id != "" {
		return s.log.With(logger.String(correlation.LogField, id))
	}
	return s.log
}

// CorrelationMiddleware puts the caller's correlation ID (or a new one) in
// the request context and echoes it in the response.
func (s *Server) CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := correlation.FromHeaders(r.Header)
		w.Header().Set(correlation.CorrelationIDHeader, id)
		next.ServeHTTP(w, r.WithContext(correlation.WithCorrelationID(r.Context(), id)))
	})
}

// LoggingMiddleware logs one line per request. Bodies are never logged.
func (s *Server) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields := []logger.Field{
			logger.String("method", r.Method),
			logger.String("path", validation.SanitizeForLog(r.URL.Path)),
			logger.String("user_agent", validation.SanitizeForLog(r.UserAgent())),
			logger.Int("status", rec.status),
			logger.Duration("duration", time.Since(start)),
		}
		if id := auth.GetIdentity(r.Context()); id != nil {
			fields = append(fields, logger.String("subject", id.Subject))
		}
		log := s.requestLog(r)
		if rec.status >= http.StatusInternalServerError {
			log.Warn("request failed", fields...)
			return
		}
		log.Info("request", fields...)
	})
}

// RecoveryMiddleware turns a handler panic into a 500.
func (s *Server) RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.requestLog(r).Error("panic recovered",
					logger.String("method", r.Method),
					logger.String("path", validation.SanitizeForLog(r.URL.Path)),
					logger.Any("panic", v))
				writeError(w, ErrInternal, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// AuthenticationMiddleware rejects requests the authenticator does not
// accept and stores the identity in the request context.
func (s *Server) AuthenticationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.authenticator.AuthenticateHTTP(r)
		if err != nil {
			s.requestLog(r).Warn("authentication failed",
				logger.String("path", validation.SanitizeForLog(r.URL.Path)),
				logger.String("method", s.authenticator.Name()),
				logger.Error(err))
			w.Header().Set("WWW-Authenticate", `Bearer realm="keymaster"`)
			writeError(w, ErrUnauthorized, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	})
}

// RequireScope admits only identities holding scope.
func (s *Server) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.GetIdentity(r.Context()).HasScope(scope) {
				writeError(w, ErrForbidden, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BodyLimitMiddleware caps request bodies at n bytes.
func BodyLimitMiddleware(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
