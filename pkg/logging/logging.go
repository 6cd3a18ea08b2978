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

// Package logging builds the process logger for the keymaster binaries from
// the level and format strings found in configuration.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jeremyhahn/go-keymaster/pkg/adapters/logger"
)

// Config selects the process logger.
type Config struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`

	// Output defaults to os.Stderr.
	Output io.Writer `yaml:"-" mapstructure:"-"`
}

// New returns a logger for cfg and installs it as the slog default so
// third-party libraries logging through slog land in the same stream.
func New(cfg Config) (*logger.SlogAdapter, error) {
	format := strings.ToLower(cfg.Format)
	switch format {
	case "", "text":
		format = "text"
	case "json":
	default:
		return nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}

	level := strings.ToLower(cfg.Level)
	switch level {
	case "", "info":
		level = "info"
	case "debug", "warn", "warning", "error":
	default:
		return nil, fmt.Errorf("logging: unknown level %q", cfg.Level)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	l := logger.NewSlogAdapter(&logger.SlogConfig{
		Level:  logger.ParseLevel(level),
		Format: format,
		Output: out,
	})
	slog.SetDefault(l.Slog())
	return l, nil
}

// Must is New for callers that have already validated cfg.
func Must(cfg Config) *logger.SlogAdapter {
	l, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return l
}
