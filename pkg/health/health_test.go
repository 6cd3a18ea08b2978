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

package health

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jeremyhahn/go-keymaster/pkg/crypto/rand"
	"github.com/jeremyhahn/go-keymaster/pkg/metrics"
	"github.com/jeremyhahn/go-keymaster/pkg/storage"
	"github.com/jeremyhahn/go-keymaster/pkg/storage/memory"
)

func healthy(name string) CheckFunc {
	return func(context.Context) CheckResult {
		return CheckResult{Name: name, Status: StatusHealthy}
	}
}

func TestChecker_Live(t *testing.T) {
	c := NewChecker()
	if r := c.Live(context.Background()); r.Status != StatusHealthy {
		t.Errorf("Live() = %s, want healthy", r.Status)
	}
}

func TestChecker_Startup(t *testing.T) {
	c := NewChecker()
	if r := c.Startup(context.Background()); r.Status != StatusUnhealthy {
		t.Errorf("before MarkStarted: %s", r.Status)
	}
	c.MarkStarted()
	if r := c.Startup(context.Background()); r.Status != StatusHealthy {
		t.Errorf("after MarkStarted: %s", r.Status)
	}
	c.MarkNotStarted()
	if c.IsStarted() {
		t.Error("MarkNotStarted had no effect")
	}
}

func TestChecker_Ready(t *testing.T) {
	c := NewChecker()
	c.MarkStarted()
	results := c.Ready(context.Background())
	if len(results) != 1 || results[0].Name != "default" {
		t.Fatalf("empty checker: %+v", results)
	}

	c.RegisterCheck("b", healthy("b"))
	c.RegisterCheck("a", func(context.Context) CheckResult { return CheckResult{Status: StatusDegraded} })
	c.RegisterCheck("nil", nil)

	results = c.Ready(context.Background())
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Name != "a" || results[1].Name != "b" {
		t.Errorf("results not sorted or unnamed: %+v", results)
	}
	if got := AggregateStatus(results); got != StatusDegraded {
		t.Errorf("AggregateStatus = %s, want degraded", got)
	}

	c.UnregisterCheck("a")
	if !c.IsHealthy(context.Background()) {
		t.Error("expected healthy after removing degraded check")
	}
}

func TestChecker_ReadyNotStarted(t *testing.T) {
	t.Run("no checks", func(t *testing.T) {
		c := NewChecker()
		results := c.Ready(context.Background())
		if got := AggregateStatus(results); got != StatusUnhealthy {
			t.Fatalf("AggregateStatus = %s, want unhealthy: %+v", got, results)
		}
		if len(results) != 1 || results[0].Name != "startup" {
			t.Errorf("results = %+v", results)
		}
	})

	t.Run("with checks", func(t *testing.T) {
		c := NewChecker()
		c.RegisterCheck("a", healthy("a"))
		if c.IsHealthy(context.Background()) {
			t.Error("readiness must fail before startup completes")
		}
	})
}

func TestChecker_Timeout(t *testing.T) {
	c := NewChecker()
	c.MarkStarted()
	c.SetTimeout(20 * time.Millisecond)
	block := make(chan struct{})
	defer close(block)
	c.RegisterCheck("slow", func(ctx context.Context) CheckResult {
		<-block
		return CheckResult{Status: StatusHealthy}
	})

	results := c.Ready(context.Background())
	if len(results) != 1 || results[0].Status != StatusUnhealthy {
		t.Fatalf("slow check should time out: %+v", results)
	}
	if results[0].Message != "check timed out" {
		t.Errorf("message = %q", results[0].Message)
	}
}

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		name string
		in   []Status
		want Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make([]CheckResult, len(tt.in))
			for i, s := range tt.in {
				results[i].Status = s
			}
			if got := AggregateStatus(results); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

type brokenBackend struct {
	storage.Backend
}

func (brokenBackend) List(string) ([]string, error) {
	return nil, errors.New("connection refused")
}

func TestStorageCheck(t *testing.T) {
	metrics.Enable()
	backend := memory.New()
	for _, id := range []string{"aa", "bb"} {
		if err := backend.Put(storage.RecordPath(id), []byte("{}"), nil); err != nil {
			t.Fatal(err)
		}
	}

	r := StorageCheck("health-mem", backend)(context.Background())
	if r.Status != StatusHealthy {
		t.Fatalf("status = %s (%s)", r.Status, r.Error)
	}
	if !strings.Contains(r.Message, "2 records") {
		t.Errorf("message = %q", r.Message)
	}
	if got := testutil.ToFloat64(metrics.RecordsTotal.WithLabelValues("health-mem")); got != 2 {
		t.Errorf("records gauge = %v", got)
	}
	if got := testutil.ToFloat64(metrics.BackendHealthy.WithLabelValues("health-mem")); got != 1 {
		t.Errorf("health gauge = %v", got)
	}

	r = StorageCheck("health-broken", brokenBackend{memory.New()})(context.Background())
	if r.Status != StatusUnhealthy || r.Error == "" {
		t.Errorf("broken backend: %+v", r)
	}
	if got := testutil.ToFloat64(metrics.BackendHealthy.WithLabelValues("health-broken")); got != 0 {
		t.Errorf("health gauge = %v", got)
	}
}

type deadSource struct{ available bool }

func (deadSource) Fill([]byte) error { return errors.New("exhausted") }
func (deadSource) Rand(int) ([]byte, error) { return nil, errors.New("exhausted") }
func (d deadSource) Available() bool { return d.available }
func (deadSource) Close() error { return nil }

func TestRandomCheck(t *testing.T) {
	if r := RandomCheck(rand.Default())(context.Background()); r.Status != StatusHealthy {
		t.Errorf("default source: %+v", r)
	}
	if r := RandomCheck(deadSource{})(context.Background()); r.Status != StatusUnhealthy {
		t.Errorf("unavailable source: %+v", r)
	}
	if r := RandomCheck(deadSource{available: true})(context.Background()); r.Status != StatusUnhealthy {
		t.Errorf("failing source: %+v", r)
	}
}
