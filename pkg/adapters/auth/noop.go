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

import "net/http"

// NoOpAuthenticator admits every request as "anonymous" with all scopes.
// Use it for local development only.
type NoOpAuthenticator struct{}

// NewNoOpAuthenticator returns a NoOpAuthenticator.
func NewNoOpAuthenticator() *NoOpAuthenticator {
	return &NoOpAuthenticator{}
}

// AuthenticateHTTP always succeeds.
func (a *NoOpAuthenticator) AuthenticateHTTP(r *http.Request) (*Identity, error) {
	return &Identity{
		Subject:    "anonymous",
		Method:     a.Name(),
		Scopes:     []string{ScopeAll},
		Attributes: map[string]string{"remote_addr": r.RemoteAddr},
	}, nil
}

// Name returns "noop".
func (a *NoOpAuthenticator) Name() string {
	return "noop"
}
