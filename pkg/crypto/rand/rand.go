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

// Package rand supplies the cryptographically secure random bytes used for
// salts, initialization vectors, store identifiers and entropy.
//
// A failing source is a hard stop: Fill and Rand never hand back a partially
// filled buffer, and any buffer they were given is zeroed on failure.
package rand

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrUnavailable is returned when the random source cannot produce bytes.
var ErrUnavailable = errors.New("rand: random source unavailable")

// Mode specifies which random source to use.
type Mode string

const (
	// ModeAuto picks the best available source. Only the operating system
	// source is currently available, so auto resolves to software.
	ModeAuto Mode = "auto"

	// ModeSoftware uses crypto/rand from the Go standard library.
	ModeSoftware Mode = "software"
)

// Config contains RNG configuration.
type Config struct {
	// Mode specifies the RNG source. Defaults to ModeAuto.
	Mode Mode

	// Reader overrides the byte source for software mode. Intended for
	// tests that need to simulate an exhausted or failing source.
	Reader io.Reader
}

// Source fills buffers with random bytes.
type Source interface {
	// Fill fills buf entirely or returns an error wrapping ErrUnavailable.
	Fill(buf []byte) error

	// Rand returns n random bytes.
	Rand(n int) ([]byte, error)

	// Available returns true if this source is ready.
	Available() bool

	// Close releases any resources held by the source.
	Close() error
}

// Resolver is a Source that also implements io.Reader, so it can stand in
// for crypto/rand.Reader.
type Resolver interface {
	Source
	io.Reader
}

// NewResolver creates a resolver for the given configuration. A nil config
// selects auto mode.
func NewResolver(cfg *Config) (Resolver, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	switch cfg.Mode {
	case "", ModeAuto, ModeSoftware:
		r := cfg.Reader
		if r == nil {
			r = rand.Reader
		}
		return &SoftwareResolver{reader: r}, nil
	default:
		return nil, fmt.Errorf("rand: unknown mode %q", cfg.Mode)
	}
}

// Default returns a resolver over crypto/rand.
func Default() Resolver {
	return &SoftwareResolver{reader: rand.Reader}
}

// SoftwareResolver reads from an io.Reader, crypto/rand.Reader by default.
type SoftwareResolver struct {
	mu     sync.Mutex
	reader io.Reader
	closed bool
}

var _ Resolver = (*SoftwareResolver)(nil)

// Fill fills buf with random bytes.
func (s *SoftwareResolver) Fill(buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: resolver closed", ErrUnavailable)
	}
	if _, err := io.ReadFull(s.reader, buf); err != nil {
		clear(buf)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Rand returns n random bytes.
func (s *SoftwareResolver) Rand(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("rand: negative length %d", n)
	}
	buf := make([]byte, n)
	if err := s.Fill(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Read implements io.Reader.
func (s *SoftwareResolver) Read(p []byte) (int, error) {
	if err := s.Fill(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Available reports whether the resolver is open.
func (s *SoftwareResolver) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Close marks the resolver closed.
func (s *SoftwareResolver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
