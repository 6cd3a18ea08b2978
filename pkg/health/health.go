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

// Package health implements liveness, readiness and startup probes for the
// key management server.
package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status is the health of one component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name    string        `json:"name"`
	Status  Status        `json:"status"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// CheckFunc performs one readiness check. It should honour ctx.
type CheckFunc func(ctx context.Context) CheckResult

// Checker runs registered checks with Kubernetes probe semantics: liveness
// only says the process is up, readiness runs every check, startup fails
// until MarkStarted.
type Checker struct {
	mu        sync.RWMutex
	started   bool
	startTime time.Time
	checks    map[string]CheckFunc
	timeout   time.Duration
}

// DefaultCheckTimeout bounds each readiness check.
const DefaultCheckTimeout = 2 * time.Second

// NewChecker returns an empty checker.
func NewChecker() *Checker {
	return &Checker{
		checks:    make(map[string]CheckFunc),
		startTime: time.Now(),
		timeout:   DefaultCheckTimeout,
	}
}

// SetTimeout changes the per-check timeout. Non-positive values are ignored.
func (c *Checker) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

// RegisterCheck adds or replaces the check called name.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	if check == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// UnregisterCheck removes a check.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// MarkStarted flips the startup probe to healthy.
func (c *Checker) MarkStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
}

// MarkNotStarted flips the startup probe back, e.g. during shutdown.
func (c *Checker) MarkNotStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
}

// IsStarted reports whether MarkStarted was called.
func (c *Checker) IsStarted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}

// Uptime returns the time since the checker was created.
func (c *Checker) Uptime() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.startTime)
}

// Live always reports healthy while the process can answer.
func (c *Checker) Live(context.Context) CheckResult {
	return CheckResult{Name: "liveness", Status: StatusHealthy, Message: "alive"}
}

// Startup is unhealthy until MarkStarted.
func (c *Checker) Startup(context.Context) CheckResult {
	if !c.IsStarted() {
		return notStarted()
	}
	return CheckResult{
		Name:    "startup",
		Status:  StatusHealthy,
		Message: fmt.Sprintf("uptime %s", c.Uptime().Round(time.Second)),
	}
}

// Ready runs every check concurrently, each under the checker timeout, and
// returns the results sorted by name.
func (c *Checker) Ready(ctx context.Context) []CheckResult {
	c.mu.RLock()
	timeout := c.timeout
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	started := c.started
	c.mu.RUnlock()

	if len(checks) == 0 {
		if !started {
			return []CheckResult{notStarted()}
		}
		return []CheckResult{{Name: "default", Status: StatusHealthy, Message: "no readiness checks configured"}}
	}

	results := make([]CheckResult, 0, len(checks)+1)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := run(ctx, name, check, timeout)
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if !started {
		results = append(results, notStarted())
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

func notStarted() CheckResult {
	return CheckResult{Name: "startup", Status: StatusUnhealthy, Message: "initialization not complete"}
}

func run(ctx context.Context, name string, check CheckFunc, timeout time.Duration) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan CheckResult, 1)
	go func() { done <- check(ctx) }()

	var r CheckResult
	select {
	case r = <-done:
	case <-ctx.Done():
		r = CheckResult{Status: StatusUnhealthy, Error: ctx.Err().Error()}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			r.Message = "check timed out"
		}
	}
	r.Latency = time.Since(start)
	if r.Name == "" {
		r.Name = name
	}
	return r
}

// IsHealthy reports whether every readiness check passed.
func (c *Checker) IsHealthy(ctx context.Context) bool {
	return AggregateStatus(c.Ready(ctx)) == StatusHealthy
}

// AggregateStatus folds results: any unhealthy wins, then any degraded.
func AggregateStatus(results []CheckResult) Status {
	status := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}
