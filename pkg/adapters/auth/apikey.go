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

package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"net/http"
	"sync"
)

// DefaultAPIKeyHeader carries the key when no bearer token is sent.
const DefaultAPIKeyHeader = "X-API-Key"

// APIKeyAuthenticator accepts static API keys. Only SHA-256 digests of the
// keys are held in memory.
type APIKeyAuthenticator struct {
	mu         sync.RWMutex
	keys       map[[sha256.Size]byte]*Identity
	headerName string
}

// APIKeyConfig configures the API key authenticator.
type APIKeyConfig struct {
	// Keys maps raw API keys to the identity they grant.
	Keys map[string]*Identity

	// HeaderName defaults to X-API-Key.
	HeaderName string
}

// NewAPIKeyAuthenticator returns an authenticator for config.Keys.
func NewAPIKeyAuthenticator(config *APIKeyConfig) *APIKeyAuthenticator {
	if config == nil {
		config = &APIKeyConfig{}
	}
	header := config.HeaderName
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	a := &APIKeyAuthenticator{
		keys:       make(map[[sha256.Size]byte]*Identity, len(config.Keys)),
		headerName: header,
	}
	for k, id := range config.Keys {
		a.AddKey(k, id)
	}
	return a
}

// AddKey registers apiKey for identity.
func (a *APIKeyAuthenticator) AddKey(apiKey string, identity *Identity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys[sha256.Sum256([]byte(apiKey))] = identity
}

// RemoveKey revokes apiKey.
func (a *APIKeyAuthenticator) RemoveKey(apiKey string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.keys, sha256.Sum256([]byte(apiKey)))
}

// AuthenticateHTTP reads the key from the configured header, then from a
// bearer token. Query parameters are never consulted so keys stay out of
// access logs.
func (a *APIKeyAuthenticator) AuthenticateHTTP(r *http.Request) (*Identity, error) {
	key := r.Header.Get(a.headerName)
	if key == "" {
		key = bearerToken(r)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: no API key provided", ErrUnauthenticated)
	}

	digest := sha256.Sum256([]byte(key))
	a.mu.RLock()
	var match *Identity
	for d, id := range a.keys {
		if subtle.ConstantTimeCompare(d[:], digest[:]) == 1 {
			match = id
		}
	}
	a.mu.RUnlock()
	if match == nil {
		return nil, fmt.Errorf("%w: invalid API key", ErrUnauthenticated)
	}

	id := match.clone()
	id.Method = a.Name()
	id.Attributes["remote_addr"] = r.RemoteAddr
	return id, nil
}

// Name returns "apikey".
func (a *APIKeyAuthenticator) Name() string {
	return "apikey"
}
