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

package vault

import (
	"context"
	"fmt"
	"time"

	vault "github.com/hashicorp/vault/api"
)

// Config holds the settings for the Vault KV v2 storage backend.
type Config struct {
	// Address is the Vault server address (e.g., "http://127.0.0.1:8200")
	Address string `yaml:"address" mapstructure:"address"`

	// Token is the Vault authentication token
	Token string `yaml:"token" mapstructure:"token"`

	// Mount is the KV v2 mount point (default: "secret")
	Mount string `yaml:"mount" mapstructure:"mount"`

	// Prefix is prepended to every key below the mount (default: "keymaster")
	Prefix string `yaml:"prefix" mapstructure:"prefix"`

	// Namespace is the Vault Enterprise namespace, optional
	Namespace string `yaml:"namespace" mapstructure:"namespace"`

	// TLSSkipVerify disables TLS certificate verification
	TLSSkipVerify bool `yaml:"tls_skip_verify" mapstructure:"tls_skip_verify"`

	// Timeout bounds every call made to Vault (default: 10s)
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Validate checks required fields and fills defaults.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("vault address is required")
	}
	if c.Token == "" {
		return fmt.Errorf("vault token is required")
	}
	if c.Mount == "" {
		c.Mount = "secret"
	}
	if c.Prefix == "" {
		c.Prefix = "keymaster"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return nil
}

// Logical is the subset of *vault.Logical the backend uses. Tests swap in a
// fake to avoid a running server.
type Logical interface {
	ReadWithContext(ctx context.Context, path string) (*vault.Secret, error)
	WriteWithContext(ctx context.Context, path string, data map[string]interface{}) (*vault.Secret, error)
	DeleteWithContext(ctx context.Context, path string) (*vault.Secret, error)
	ListWithContext(ctx context.Context, path string) (*vault.Secret, error)
}

// newLogical builds a real Vault client from the configuration.
func newLogical(cfg *Config) (Logical, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address
	vaultConfig.Timeout = cfg.Timeout

	if cfg.TLSSkipVerify {
		if err := vaultConfig.ConfigureTLS(&vault.TLSConfig{Insecure: true}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	client.SetToken(cfg.Token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	return client.Logical(), nil
}
