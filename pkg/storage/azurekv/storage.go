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

// Package azurekv stores keystore records as Azure Key Vault secrets.
//
// Secret names only allow alphanumerics and dashes, so storage keys are
// encoded with unpadded base32hex below a configurable name prefix. The
// original key is also kept in a tag for operators browsing the vault.
package azurekv

import (
	"context"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/jeremyhahn/go-keymaster/pkg/storage"
)

var nameEncoding = base32.HexEncoding.WithPadding(base32.NoPadding)

const (
	tagKey      = "storage-key"
	contentType = "application/vnd.keymaster.record+base64"
)

// Storage is a storage.Backend over Azure Key Vault secrets.
type Storage struct {
	mu     sync.RWMutex
	cfg    *Config
	client SecretsClient
	closed bool
}

// New authenticates against Azure and returns a backend for cfg.VaultURL.
func New(cfg *Config) (storage.Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := newSecretsClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create secrets client: %w", err)
	}
	return &Storage{cfg: cfg, client: client}, nil
}

// NewWithClient builds a backend around an existing client.
func NewWithClient(cfg *Config, client SecretsClient) (*Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("%w: secrets client is required", ErrInvalidConfig)
	}
	return &Storage{cfg: cfg, client: client}, nil
}

func (s *Storage) secretName(key string) string {
	return s.cfg.NamePrefix + "-" + strings.ToLower(nameEncoding.EncodeToString([]byte(key)))
}

func (s *Storage) keyFromName(name string) (string, bool) {
	p := strings.ToLower(s.cfg.NamePrefix) + "-"
	lower := strings.ToLower(name)
	if !strings.HasPrefix(lower, p) {
		return "", false
	}
	raw, err := nameEncoding.DecodeString(strings.ToUpper(lower[len(p):]))
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// nameFromID extracts the secret name from a Key Vault secret identifier
// such as https://v.vault.azure.net/secrets/<name>[/<version>].
func nameFromID(id string) string {
	const marker = "/secrets/"
	i := strings.Index(id, marker)
	if i < 0 {
		return ""
	}
	rest := id[i+len(marker):]
	if j := strings.Index(rest, "/"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

func (s *Storage) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.cfg.Timeout)
}

// Get reads the latest version of the secret for key.
func (s *Storage) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, storage.ErrInvalidKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}

	ctx, cancel := s.context()
	defer cancel()

	resp, err := s.client.GetSecret(ctx, s.secretName(key), "", nil)
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("azurekv: get key %q: %w", key, err)
	}
	if resp.Value == nil {
		return nil, fmt.Errorf("%w: secret value is nil", storage.ErrInvalidData)
	}
	value, err := base64.StdEncoding.DecodeString(*resp.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidData, err)
	}
	return value, nil
}

// Put writes a new secret version for key. Options metadata becomes tags.
func (s *Storage) Put(key string, value []byte, opts *storage.Options) error {
	if key == "" {
		return storage.ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	ctx, cancel := s.context()
	defer cancel()

	encoded := base64.StdEncoding.EncodeToString(value)
	ct := contentType
	enabled := true
	tags := map[string]*string{tagKey: &key}
	if opts != nil {
		for k, v := range opts.Metadata {
			v := v
			tags[k] = &v
		}
	}

	params := azsecrets.SetSecretParameters{
		Value:            &encoded,
		ContentType:      &ct,
		SecretAttributes: &azsecrets.SecretAttributes{Enabled: &enabled},
		Tags:             tags,
	}
	if _, err := s.client.SetSecret(ctx, s.secretName(key), params, nil); err != nil {
		return fmt.Errorf("azurekv: set key %q: %w", key, err)
	}
	return nil
}

// Delete soft-deletes the secret for key.
func (s *Storage) Delete(key string) error {
	if key == "" {
		return storage.ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	ctx, cancel := s.context()
	defer cancel()

	if _, err := s.client.DeleteSecret(ctx, s.secretName(key), nil); err != nil {
		if isNotFound(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("azurekv: delete key %q: %w", key, err)
	}
	return nil
}

// List pages through the vault's secrets and returns sorted keys with prefix.
// Secrets outside NamePrefix are ignored.
func (s *Storage) List(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}

	ctx, cancel := s.context()
	defer cancel()

	keys := make([]string, 0)
	pager := s.client.NewListSecretPropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azurekv: list secrets: %w", err)
		}
		for _, props := range page.Value {
			if props == nil || props.ID == nil {
				continue
			}
			key, ok := s.keyFromName(nameFromID(string(*props.ID)))
			if ok && strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Exists reports whether a live secret exists for key.
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

// Close marks the backend closed.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
