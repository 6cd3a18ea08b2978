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

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jeremyhahn/go-keymaster/pkg/correlation"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		name string
	}{
		{"debug", LevelDebug, "debug"},
		{"warn", LevelWarn, "warn"},
		{"warning", LevelWarn, "warn"},
		{"error", LevelError, "error"},
		{"info", LevelInfo, "info"},
		{"bogus", LevelInfo, "info"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseLevel(tt.in)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
			if got.String() != tt.name {
				t.Errorf("String() = %q, want %q", got.String(), tt.name)
			}
		})
	}
	if Level(42).String() != "unknown" {
		t.Error("out-of-range level should be unknown")
	}
}

func TestSlogAdapter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogAdapter(&SlogConfig{Format: "json", Output: &buf, Level: LevelDebug})

	log.Info("record written",
		String("store_id", "00ff"),
		Int("bits", 256),
		Bool("ok", true),
		Duration("took", 2*time.Millisecond),
		Error(errors.New("boom")),
		Any("curve", "secp256k1"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "record written" || entry["store_id"] != "00ff" || entry["error"] != "boom" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if entry["bits"].(float64) != 256 {
		t.Errorf("bits = %v", entry["bits"])
	}
}

func TestSlogAdapter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogAdapter(&SlogConfig{Output: &buf, Level: LevelWarn})

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")
	log.Error("shown too")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug/info should be filtered: %s", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "shown too") {
		t.Errorf("warn/error missing: %s", out)
	}
}

func TestSlogAdapter_With(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogAdapter(&SlogConfig{Output: &buf}).With(String("component", "keystore"))

	log.Info("hello")
	if !strings.Contains(buf.String(), "component=keystore") {
		t.Errorf("child logger should carry fields: %s", buf.String())
	}
}

func TestSlogAdapter_CorrelationID(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogAdapter(&SlogConfig{Output: &buf})

	ctx := correlation.WithCorrelationID(context.Background(), "req-123")
	log.InfoContext(ctx, "sign")
	log.ErrorContext(context.Background(), "no id")

	out := buf.String()
	if !strings.Contains(out, "correlation_id=req-123") {
		t.Errorf("correlation id missing: %s", out)
	}
	if strings.Count(out, "correlation_id") != 1 {
		t.Errorf("only one entry should carry a correlation id: %s", out)
	}
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Debug("x")
	log.Info("x")
	log.Warn("x")
	log.Error("x", Error(errors.New("y")))
	if log.With(String("a", "b")) == nil {
		t.Fatal("With should return a logger")
	}
}
