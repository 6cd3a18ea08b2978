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
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig controls the server certificate and client verification.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	CertFile string `yaml:"cert_file" mapstructure:"cert_file"`
	KeyFile  string `yaml:"key_file" mapstructure:"key_file"`

	// ClientCAFile enables client certificate verification against the
	// PEM bundle it names.
	ClientCAFile string `yaml:"client_ca_file" mapstructure:"client_ca_file"`

	// ClientAuth is request, verify or require_and_verify. Defaults to
	// require_and_verify when ClientCAFile is set.
	ClientAuth string `yaml:"client_auth" mapstructure:"client_auth"`

	// MinVersion is TLS1.2 (default) or TLS1.3.
	MinVersion string `yaml:"min_version" mapstructure:"min_version"`
}

// Load builds a *tls.Config. It returns nil when TLS is disabled.
func (c *TLSConfig) Load() (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("config: load server certificate: %w", err)
	}
	minVersion, err := parseTLSVersion(c.MinVersion)
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVersion,
	}
	if c.ClientCAFile == "" {
		return cfg, nil
	}

	pem, err := os.ReadFile(c.ClientCAFile) // #nosec G304 -- path from operator config
	if err != nil {
		return nil, fmt.Errorf("config: read client CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%w: no certificates in %s", ErrInvalidConfig, c.ClientCAFile)
	}
	cfg.ClientCAs = pool
	if cfg.ClientAuth, err = parseClientAuth(c.ClientAuth); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseTLSVersion(v string) (uint16, error) {
	switch v {
	case "", "TLS1.2":
		return tls.VersionTLS12, nil
	case "TLS1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("%w: tls min_version %q", ErrInvalidConfig, v)
	}
}

func parseClientAuth(v string) (tls.ClientAuthType, error) {
	switch v {
	case "", "require_and_verify":
		return tls.RequireAndVerifyClientCert, nil
	case "verify":
		return tls.VerifyClientCertIfGiven, nil
	case "request":
		return tls.RequestClientCert, nil
	default:
		return tls.NoClientCert, fmt.Errorf("%w: tls client_auth %q", ErrInvalidConfig, v)
	}
}
