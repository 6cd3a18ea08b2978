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

// Package vault stores keystore records in a HashiCorp Vault KV v2 engine.
// Records are already encrypted by the keystore engine; Vault adds access
// control and audit on top.
package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/jeremyhahn/go-keymaster/pkg/storage"
)

var (
	// ErrConnection is returned when the Vault client cannot be created.
	ErrConnection = errors.New("vault: connection failed")

	// ErrInvalidResponse is returned when Vault returns an unexpected payload.
	ErrInvalidResponse = errors.New("vault: invalid response")
)

const valueField = "value"

// Storage is a storage.Backend over Vault KV v2.
type Storage struct {
	mu      sync.RWMutex
	cfg     *Config
	logical Logical
	closed  bool
}

// New connects to Vault using cfg.
func New(cfg *Config) (storage.Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	logical, err := newLogical(cfg)
	if err != nil {
		return nil, err
	}
	return &Storage{cfg: cfg, logical: logical}, nil
}

// NewWithLogical builds a Storage around an existing Logical client.
func NewWithLogical(cfg *Config, logical Logical) (*Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if logical == nil {
		return nil, fmt.Errorf("vault: logical client is required")
	}
	return &Storage{cfg: cfg, logical: logical}, nil
}

func (s *Storage) dataPath(key string) string {
	return path.Join(s.cfg.Mount, "data", s.cfg.Prefix, key)
}

func (s *Storage) metadataPath(key string) string {
	return path.Join(s.cfg.Mount, "metadata", s.cfg.Prefix, key)
}

func (s *Storage) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.cfg.Timeout)
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return storage.ErrInvalidKey
	}
	return nil
}

// Get reads the latest version of key.
func (s *Storage) Get(key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}

	ctx, cancel := s.context()
	defer cancel()

	secret, err := s.logical.ReadWithContext(ctx, s.dataPath(key))
	if err != nil {
		return nil, fmt.Errorf("vault: read key %q: %w", key, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, storage.ErrNotFound
	}
	// A soft-deleted version has metadata but nil data.
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok || data == nil {
		return nil, storage.ErrNotFound
	}
	encoded, ok := data[valueField].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q field for key %q", ErrInvalidResponse, valueField, key)
	}
	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidData, err)
	}
	return value, nil
}

// Put writes a new version of key. Metadata from opts is stored alongside
// the value.
func (s *Storage) Put(key string, value []byte, opts *storage.Options) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	ctx, cancel := s.context()
	defer cancel()

	data := map[string]interface{}{
		valueField: base64.StdEncoding.EncodeToString(value),
	}
	if opts != nil {
		for k, v := range opts.Metadata {
			if k != valueField {
				data[k] = v
			}
		}
	}

	if _, err := s.logical.WriteWithContext(ctx, s.dataPath(key), map[string]interface{}{"data": data}); err != nil {
		return fmt.Errorf("vault: write key %q: %w", key, err)
	}
	return nil
}

// Delete permanently removes every version of key.
func (s *Storage) Delete(key string) error {
	exists, err := s.Exists(key)
	if err != nil {
		return err
	}
	if !exists {
		return storage.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	ctx, cancel := s.context()
	defer cancel()

	if _, err := s.logical.DeleteWithContext(ctx, s.metadataPath(key)); err != nil {
		return fmt.Errorf("vault: delete key %q: %w", key, err)
	}
	return nil
}

// List walks the metadata tree below the prefix's directory and returns
// sorted keys that start with prefix.
func (s *Storage) List(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}

	ctx, cancel := s.context()
	defer cancel()

	dir := ""
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir = prefix[:i+1]
	}

	keys := make([]string, 0)
	if err := s.walk(ctx, dir, prefix, &keys); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Storage) walk(ctx context.Context, dir, prefix string, out *[]string) error {
	secret, err := s.logical.ListWithContext(ctx, s.metadataPath(dir))
	if err != nil {
		return fmt.Errorf("vault: list %q: %w", dir, err)
	}
	if secret == nil || secret.Data == nil {
		return nil
	}
	entries, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return fmt.Errorf("%w: list %q returned no keys", ErrInvalidResponse, dir)
	}
	for _, e := range entries {
		name, ok := e.(string)
		if !ok {
			continue
		}
		full := dir + name
		if strings.HasSuffix(name, "/") {
			if strings.HasPrefix(full, prefix) || strings.HasPrefix(prefix, full) {
				if err := s.walk(ctx, full, prefix, out); err != nil {
					return err
				}
			}
			continue
		}
		if strings.HasPrefix(full, prefix) {
			*out = append(*out, full)
		}
	}
	return nil
}

// Exists reports whether key has a live version.
func (s *Storage) Exists(key string) (bool, error) {
	_, err := s.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close marks the backend closed. The HTTP client holds no persistent
// resources that need releasing.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
