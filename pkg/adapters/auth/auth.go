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

// Package auth authenticates callers of the REST API. An Authenticator turns
// an *http.Request into an Identity; the identity's scopes decide which
// signing endpoints it may reach.
package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
)

var (
	// ErrUnauthenticated is returned when a request carries no usable credential.
	ErrUnauthenticated = errors.New("auth: unauthenticated")

	// ErrForbidden is returned when an identity lacks the scope an endpoint needs.
	ErrForbidden = errors.New("auth: forbidden")
)

// Scopes understood by the REST API.
const (
	ScopeSign      = "sign"
	ScopePublicKey = "pubkey"
	ScopeAudit     = "audit"
	ScopeVerify    = "verify"
	ScopeAll       = "*"
)

// Identity is an authenticated caller.
type Identity struct {
	// Subject identifies the caller in logs and audit events.
	Subject string

	// Method is the authenticator that produced the identity.
	Method string

	Scopes     []string
	Attributes map[string]string
}

// Authenticator authenticates an HTTP request.
type Authenticator interface {
	// AuthenticateHTTP returns the caller's identity or an error wrapping
	// ErrUnauthenticated.
	AuthenticateHTTP(r *http.Request) (*Identity, error)

	Name() string
}

type contextKey struct{}

// GetIdentity returns the identity stored in ctx, or nil.
func GetIdentity(ctx context.Context) *Identity {
	if ctx == nil {
		return nil
	}
	id, _ := ctx.Value(contextKey{}).(*Identity)
	return id
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// HasScope reports whether the identity was granted scope, directly or via ScopeAll.
func (i *Identity) HasScope(scope string) bool {
	if i == nil {
		return false
	}
	return slices.Contains(i.Scopes, scope) || slices.Contains(i.Scopes, ScopeAll)
}

func (i *Identity) clone() *Identity {
	c := &Identity{
		Subject:    i.Subject,
		Method:     i.Method,
		Scopes:     slices.Clone(i.Scopes),
		Attributes: make(map[string]string, len(i.Attributes)+1),
	}
	for k, v := range i.Attributes {
		c.Attributes[k] = v
	}
	return c
}

// bearerToken returns the token of an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
