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

package config

import (
	"fmt"
	"strings"

	"github.com/jeremyhahn/go-keymaster/pkg/storage"
	"github.com/jeremyhahn/go-keymaster/pkg/storage/azurekv"
	"github.com/jeremyhahn/go-keymaster/pkg/storage/file"
	"github.com/jeremyhahn/go-keymaster/pkg/storage/memory"
	"github.com/jeremyhahn/go-keymaster/pkg/storage/sqlite"
	"github.com/jeremyhahn/go-keymaster/pkg/storage/vault"
	"github.com/jeremyhahn/go-keymaster/pkg/validation"
)

// Storage backend names.
const (
	BackendMemory  = "memory"
	BackendFile    = "file"
	BackendSQLite  = "sqlite"
	BackendVault   = "vault"
	BackendAzureKV = "azurekv"
)

// Backends lists the supported storage backends.
func Backends() []string {
	return []string{BackendMemory, BackendFile, BackendSQLite, BackendVault, BackendAzureKV}
}

func (s *StorageConfig) validate() error {
	s.Backend = strings.ToLower(s.Backend)
	if err := validation.ValidateBackendName(s.Backend); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch s.Backend {
	case BackendMemory:
	case BackendFile, BackendSQLite:
		if s.Path == "" {
			return fmt.Errorf("%w: storage path is required for %s", ErrInvalidConfig, s.Backend)
		}
	case BackendVault:
		cfg := s.Vault
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	case BackendAzureKV:
		cfg := s.AzureKV
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q (want one of %s)",
			ErrInvalidConfig, s.Backend, strings.Join(Backends(), ", "))
	}
	return nil
}

// OpenStorage opens the configured backend. The caller closes it.
func (s *StorageConfig) OpenStorage() (storage.Backend, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	switch s.Backend {
	case BackendMemory:
		return memory.New(), nil
	case BackendFile:
		return file.New(s.Path)
	case BackendSQLite:
		return sqlite.Open(s.Path)
	case BackendVault:
		cfg := s.Vault
		return vault.New(&cfg)
	default:
		cfg := s.AzureKV
		return azurekv.New(&cfg)
	}
}
