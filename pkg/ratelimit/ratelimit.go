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

// Package ratelimit throttles REST callers with one token bucket per client.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeremyhahn/go-keymaster/pkg/adapters/auth"
	"github.com/jeremyhahn/go-keymaster/pkg/metrics"
)

// Limiter keeps a token bucket per client key and forgets idle clients.
type Limiter struct {
	mu       sync.Mutex
	clients  map[string]*client
	rate     rate.Limit
	burst    int
	enabled  bool
	maxIdle  time.Duration
	interval time.Duration
	now      func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Config holds rate limiter settings.
type Config struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// RequestsPerMinute is the sustained rate per client.
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`

	// Burst defaults to RequestsPerMinute.
	Burst int `yaml:"burst" mapstructure:"burst"`

	// CleanupInterval defaults to 10 minutes, MaxIdle to 30.
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
	MaxIdle         time.Duration `yaml:"max_idle" mapstructure:"max_idle"`

	// TrustProxy makes the middleware key anonymous callers by the first
	// X-Forwarded-For entry. Enable it only behind a proxy that sets it.
	TrustProxy bool `yaml:"trust_proxy" mapstructure:"trust_proxy"`
}

// New returns a limiter. A nil or disabled config admits everything.
func New(config *Config) *Limiter {
	if config == nil {
		config = &Config{}
	}
	burst := config.Burst
	if burst <= 0 {
		burst = config.RequestsPerMinute
	}
	interval := config.CleanupInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	maxIdle := config.MaxIdle
	if maxIdle <= 0 {
		maxIdle = 30 * time.Minute
	}

	l := &Limiter{
		clients:  make(map[string]*client),
		rate:     rate.Limit(float64(config.RequestsPerMinute) / 60.0),
		burst:    burst,
		enabled:  config.Enabled && config.RequestsPerMinute > 0,
		maxIdle:  maxIdle,
		interval: interval,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	if l.enabled {
		go l.sweep()
	}
	return l
}

// Enabled reports whether the limiter rejects anything.
func (l *Limiter) Enabled() bool {
	return l.enabled
}

// Allow spends one token from key's bucket.
func (l *Limiter) Allow(key string) bool {
	if !l.enabled {
		return true
	}
	return l.bucket(key).Allow()
}

// Wait blocks until key's bucket has a token or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if !l.enabled {
		return nil
	}
	return l.bucket(key).Wait(ctx)
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = l.now()
	return c.limiter
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) > l.maxIdle {
			delete(l.clients, key)
		}
	}
}

// Clients returns the number of tracked clients.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Stop ends the idle sweeper. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Middleware rejects requests over the limit with 429. Authenticated
// callers are keyed by subject, everyone else by client address, so it
// must run after the auth middleware to see identities.
func Middleware(l *Limiter, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(ClientKey(r, trustProxy)) {
				metrics.RecordRateLimited()
				w.Header().Set("Retry-After", "1")
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey identifies the caller of r for rate limiting.
func ClientKey(r *http.Request, trustProxy bool) string {
	if id := auth.GetIdentity(r.Context()); id != nil && id.Subject != "" {
		return "sub:" + id.Subject
	}
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return "ip:" + ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
