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

	"github.com/jeremyhahn/go-keymaster/pkg/health"
)

// HealthHandler handles GET /health with the aggregate readiness status.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	results := s.health.Ready(r.Context())
	status := health.AggregateStatus(results)
	writeJSON(w, HealthResponse{Status: status}, probeStatus(status))
}

// LivenessHandler handles GET /health/live. It only fails when the process
// itself is wedged, never because a dependency is down.
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	result := s.health.Live(r.Context())
	writeJSON(w, HealthResponse{Status: result.Status, Message: result.Message}, probeStatus(result.Status))
}

// ReadinessHandler handles GET /health/ready. Degraded still serves traffic.
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	results := s.health.Ready(r.Context())
	status := health.AggregateStatus(results)

	resp := HealthResponse{Status: status, Checks: results}
	switch status {
	case health.StatusHealthy:
		resp.Message = "All checks passed"
	case health.StatusDegraded:
		resp.Message = "Service is degraded"
	default:
		resp.Message = "One or more checks failed"
	}
	writeJSON(w, resp, probeStatus(status))
}

// StartupHandler handles GET /health/startup.
func (s *Server) StartupHandler(w http.ResponseWriter, r *http.Request) {
	result := s.health.Startup(r.Context())
	writeJSON(w, HealthResponse{Status: result.Status, Message: result.Message}, probeStatus(result.Status))
}

func probeStatus(s health.Status) int {
	if s == health.StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
