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

// Package memory provides a map-backed storage.Backend for tests and
// ephemeral deployments. Values are copied on the way in and out so callers
// can never alias stored records.
package memory

import (
	"sort"
	"strings"
	"sync"

	"github.com/jeremyhahn/go-keymaster/pkg/storage"
)

// Storage is an in-memory storage.Backend.
type Storage struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// New creates an empty in-memory backend.
func New() storage.Backend {
	return &Storage{
		data: make(map[string][]byte),
	}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Get returns a copy of the value stored under key.
func (s *Storage) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}
	value, ok := s.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clone(value), nil
}

// Put stores a copy of value. Options are accepted for interface
// compatibility; metadata is not retained.
func (s *Storage) Put(key string, value []byte, _ *storage.Options) error {
	if key == "" {
		return storage.ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	if old, ok := s.data[key]; ok {
		wipe(old)
	}
	s.data[key] = clone(value)
	return nil
}

// Delete removes key, overwriting the stored bytes first.
func (s *Storage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	value, ok := s.data[key]
	if !ok {
		return storage.ErrNotFound
	}
	wipe(value)
	delete(s.data, key)
	return nil
}

// List returns the sorted keys that start with prefix.
func (s *Storage) List(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}
	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Exists reports whether key is present.
func (s *Storage) Exists(key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, storage.ErrClosed
	}
	_, ok := s.data[key]
	return ok, nil
}

// Close wipes every stored value and marks the backend closed.
// Subsequent calls return storage.ErrClosed; Close itself is idempotent.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.data {
		wipe(v)
	}
	s.data = nil
	s.closed = true
	return nil
}
