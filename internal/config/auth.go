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
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/jeremyhahn/go-keymaster/pkg/adapters/auth"
)

// Authentication method names.
const (
	AuthNone   = "none"
	AuthAPIKey = "apikey"
	AuthJWT    = "jwt"
	AuthMTLS   = "mtls"
)

// AuthConfig selects how REST callers authenticate. Methods are tried in
// order; the first that accepts the request wins.
type AuthConfig struct {
	Methods []string  `yaml:"methods" mapstructure:"methods"`
	APIKeys []APIKey  `yaml:"api_keys" mapstructure:"api_keys"`
	JWT     JWTConfig `yaml:"jwt" mapstructure:"jwt"`
}

// APIKey grants Scopes to the holder of Key.
type APIKey struct {
	Key     string   `yaml:"key" mapstructure:"key"`
	Subject string   `yaml:"subject" mapstructure:"subject"`
	Scopes  []string `yaml:"scopes" mapstructure:"scopes"`
}

// JWTConfig configures bearer token verification.
type JWTConfig struct {
	// PublicKeyFile is a PEM encoded PKIX public key.
	PublicKeyFile string   `yaml:"public_key_file" mapstructure:"public_key_file"`
	Issuer        string   `yaml:"issuer" mapstructure:"issuer"`
	Audience      string   `yaml:"audience" mapstructure:"audience"`
	Methods       []string `yaml:"methods" mapstructure:"methods"`
}

func (a *AuthConfig) validate(tls TLSConfig) error {
	if len(a.Methods) == 0 {
		return fmt.Errorf("%w: auth methods must not be empty", ErrInvalidConfig)
	}
	for _, m := range a.Methods {
		switch strings.ToLower(m) {
		case AuthNone:
			if len(a.Methods) > 1 {
				return fmt.Errorf("%w: auth method none cannot be combined", ErrInvalidConfig)
			}
		case AuthAPIKey:
			if len(a.APIKeys) == 0 {
				return fmt.Errorf("%w: apikey auth needs at least one key", ErrInvalidConfig)
			}
			for i, k := range a.APIKeys {
				if k.Key == "" || k.Subject == "" {
					return fmt.Errorf("%w: api_keys[%d] needs key and subject", ErrInvalidConfig, i)
				}
			}
		case AuthJWT:
			if a.JWT.PublicKeyFile == "" {
				return fmt.Errorf("%w: jwt auth needs public_key_file", ErrInvalidConfig)
			}
		case AuthMTLS:
			if !tls.Enabled || tls.ClientCAFile == "" {
				return fmt.Errorf("%w: mtls auth needs tls with client_ca_file", ErrInvalidConfig)
			}
		default:
			return fmt.Errorf("%w: unknown auth method %q", ErrInvalidConfig, m)
		}
	}
	return nil
}

// Authenticator builds the configured authenticator chain.
func (a *AuthConfig) Authenticator() (auth.Authenticator, error) {
	chain := make(auth.Chain, 0, len(a.Methods))
	for _, m := range a.Methods {
		switch strings.ToLower(m) {
		case AuthNone:
			return auth.NewNoOpAuthenticator(), nil
		case AuthAPIKey:
			keys := make(map[string]*auth.Identity, len(a.APIKeys))
			for _, k := range a.APIKeys {
				keys[k.Key] = &auth.Identity{Subject: k.Subject, Scopes: k.Scopes}
			}
			chain = append(chain, auth.NewAPIKeyAuthenticator(&auth.APIKeyConfig{Keys: keys}))
		case AuthJWT:
			pub, err := loadPublicKey(a.JWT.PublicKeyFile)
			if err != nil {
				return nil, err
			}
			j, err := auth.NewJWTAuthenticator(&auth.JWTConfig{
				PublicKey: pub,
				Methods:   a.JWT.Methods,
				Issuer:    a.JWT.Issuer,
				Audience:  a.JWT.Audience,
			})
			if err != nil {
				return nil, err
			}
			chain = append(chain, j)
		case AuthMTLS:
			chain = append(chain, auth.NewMTLSAuthenticator(nil))
		default:
			return nil, fmt.Errorf("%w: unknown auth method %q", ErrInvalidConfig, m)
		}
	}
	if len(chain) == 1 {
		return chain[0], nil
	}
	return chain, nil
}

func loadPublicKey(path string) (any, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from operator config
	if err != nil {
		return nil, fmt.Errorf("config: read jwt public key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: %s is not PEM", ErrInvalidConfig, path)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: jwt public key: %w", ErrInvalidConfig, err)
	}
	return pub, nil
}
