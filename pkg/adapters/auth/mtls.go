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
	"crypto/x509"
	"fmt"
	"net/http"
)

// MTLSAuthenticator trusts the verified client certificate of a TLS
// connection. Chain verification is the TLS listener's job.
type MTLSAuthenticator struct {
	scopes func(*x509.Certificate) []string
}

// MTLSConfig configures the mTLS authenticator.
type MTLSConfig struct {
	// Scopes maps a client certificate to scopes. The default grants the
	// certificate's OrganizationalUnit values.
	Scopes func(*x509.Certificate) []string
}

// NewMTLSAuthenticator returns an mTLS authenticator.
func NewMTLSAuthenticator(config *MTLSConfig) *MTLSAuthenticator {
	a := &MTLSAuthenticator{scopes: unitScopes}
	if config != nil && config.Scopes != nil {
		a.scopes = config.Scopes
	}
	return a
}

// AuthenticateHTTP maps the leaf client certificate to an Identity.
func (a *MTLSAuthenticator) AuthenticateHTTP(r *http.Request) (*Identity, error) {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return nil, fmt.Errorf("%w: no client certificate", ErrUnauthenticated)
	}
	cert := r.TLS.PeerCertificates[0]
	return &Identity{
		Subject: certSubject(cert),
		Method:  a.Name(),
		Scopes:  a.scopes(cert),
		Attributes: map[string]string{
			"cert_serial": cert.SerialNumber.String(),
			"cert_issuer": cert.Issuer.String(),
			"remote_addr": r.RemoteAddr,
		},
	}, nil
}

// Name returns "mtls".
func (a *MTLSAuthenticator) Name() string {
	return "mtls"
}

func certSubject(cert *x509.Certificate) string {
	if cert.Subject.CommonName != "" {
		return cert.Subject.CommonName
	}
	if len(cert.DNSNames) > 0 {
		return cert.DNSNames[0]
	}
	return cert.SerialNumber.String()
}

func unitScopes(cert *x509.Certificate) []string {
	return append([]string(nil), cert.Subject.OrganizationalUnit...)
}
