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
	"crypto"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTAuthenticator verifies bearer tokens signed by a known key.
type JWTAuthenticator struct {
	publicKey crypto.PublicKey
	parser    *jwt.Parser
}

// JWTConfig configures the JWT authenticator.
type JWTConfig struct {
	// PublicKey verifies token signatures (required).
	PublicKey crypto.PublicKey

	// Methods lists accepted signing algorithms. Defaults to ES256, RS256 and EdDSA.
	Methods []string

	// Issuer and Audience are checked when set.
	Issuer   string
	Audience string
}

// NewJWTAuthenticator returns an authenticator for config.
func NewJWTAuthenticator(config *JWTConfig) (*JWTAuthenticator, error) {
	if config == nil || config.PublicKey == nil {
		return nil, errors.New("auth: jwt public key is required")
	}
	methods := config.Methods
	if len(methods) == 0 {
		methods = []string{"ES256", "RS256", "EdDSA"}
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}
	return &JWTAuthenticator{
		publicKey: config.PublicKey,
		parser:    jwt.NewParser(opts...),
	}, nil
}

// AuthenticateHTTP validates the bearer token and maps its claims to an
// Identity. Scopes come from the space separated "scope" claim.
func (a *JWTAuthenticator) AuthenticateHTTP(r *http.Request) (*Identity, error) {
	raw := bearerToken(r)
	if raw == "" {
		return nil, fmt.Errorf("%w: no bearer token", ErrUnauthenticated)
	}

	claims := jwt.MapClaims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing subject claim", ErrUnauthenticated)
	}

	id := &Identity{
		Subject:    sub,
		Method:     a.Name(),
		Attributes: map[string]string{"remote_addr": r.RemoteAddr},
	}
	if scope, ok := claims["scope"].(string); ok {
		id.Scopes = strings.Fields(scope)
	}
	if iss, err := claims.GetIssuer(); err == nil && iss != "" {
		id.Attributes["issuer"] = iss
	}
	return id, nil
}

// Name returns "jwt".
func (a *JWTAuthenticator) Name() string {
	return "jwt"
}
