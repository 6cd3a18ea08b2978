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

// Package client talks to a keymaster server over HTTP(S), HTTP/3 or a
// local Unix domain socket. It only holds credentials for the API itself;
// keystore passwords are sent per request and never cached.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/quic-go/quic-go/http3"
)

// Protocol selects the transport.
type Protocol string

const (
	// ProtocolREST is HTTP/1.1 or HTTP/2, with TLS when the address is https.
	ProtocolREST Protocol = "rest"
	// ProtocolUnix is plain HTTP over a Unix domain socket.
	ProtocolUnix Protocol = "unix"
	// ProtocolQUIC is HTTP/3. It always uses TLS.
	ProtocolQUIC Protocol = "quic"
)

// DefaultUnixSocketPath is where the server listens when configured with
// the packaged config file.
const DefaultUnixSocketPath = "/var/run/keymaster/keymaster.sock"

// DefaultTimeout bounds each request when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

var (
	// ErrUnsupportedProtocol is returned for an unknown Protocol or URL scheme.
	ErrUnsupportedProtocol = errors.New("client: unsupported protocol")

	// ErrConnectionFailed wraps transport failures.
	ErrConnectionFailed = errors.New("client: connection failed")
)

// Config configures a Client.
type Config struct {
	Protocol Protocol

	// Address is a base URL for rest, a socket path for unix and
	// host:port for quic.
	Address string

	TLSEnabled            bool
	TLSInsecureSkipVerify bool

	// TLSCAFile, TLSCertFile and TLSKeyFile are PEM files. The cert and
	// key enable mutual TLS.
	TLSCAFile   string
	TLSCertFile string
	TLSKeyFile  string

	// TLSConfig, when set, is used instead of the file settings.
	TLSConfig *tls.Config

	// APIKey is sent in X-API-Key; BearerToken in Authorization.
	APIKey      string
	BearerToken string

	// Headers are added to every request.
	Headers map[string]string

	Timeout time.Duration
}

// Client is a keymaster API client. It is safe for concurrent use.
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
	closeFn func() error
}

// New builds a client. No connection is made until the first call;
// use Ping to check reachability.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &Config{Protocol: ProtocolUnix, Address: DefaultUnixSocketPath}
	}
	c := &Client{cfg: *cfg}
	if c.cfg.Protocol == "" {
		c.cfg.Protocol = ProtocolREST
	}
	if c.cfg.Timeout == 0 {
		c.cfg.Timeout = DefaultTimeout
	}

	var (
		transport http.RoundTripper
		err       error
	)
	switch c.cfg.Protocol {
	case ProtocolREST:
		transport, err = c.restTransport()
	case ProtocolUnix:
		transport, err = c.unixTransport()
	case ProtocolQUIC:
		transport, err = c.quicTransport()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, c.cfg.Protocol)
	}
	if err != nil {
		return nil, err
	}
	c.http = &http.Client{Transport: transport, Timeout: c.cfg.Timeout}
	return c, nil
}

// NewFromURL builds a client from http://, https://, unix:// or quic://.
// A bare host:port is treated as http.
func NewFromURL(serverURL string) (*Client, error) {
	if serverURL == "" {
		return New(nil)
	}
	if path, ok := strings.CutPrefix(serverURL, "unix://"); ok {
		return New(&Config{Protocol: ProtocolUnix, Address: path})
	}
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" {
		return New(&Config{Protocol: ProtocolREST, Address: "http://" + serverURL})
	}
	switch u.Scheme {
	case "http":
		return New(&Config{Protocol: ProtocolREST, Address: serverURL})
	case "https":
		return New(&Config{Protocol: ProtocolREST, Address: serverURL, TLSEnabled: true})
	case "quic":
		return New(&Config{Protocol: ProtocolQUIC, Address: u.Host, TLSEnabled: true})
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedProtocol, u.Scheme)
	}
}

// Config returns a copy of the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}

// Ping fails unless the server answers its liveness probe.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.probe(ctx, "/health/live")
	return err
}

func (c *Client) restTransport() (http.RoundTripper, error) {
	base := strings.TrimSuffix(c.cfg.Address, "/")
	if base == "" {
		base = "http://localhost:8080"
	}
	if !strings.Contains(base, "://") {
		scheme := "http://"
		if c.cfg.TLSEnabled {
			scheme = "https://"
		}
		base = scheme + base
	}
	c.baseURL = base

	t := http.DefaultTransport.(*http.Transport).Clone()
	if c.cfg.TLSEnabled || strings.HasPrefix(base, "https://") {
		tlsCfg, err := c.tlsConfig()
		if err != nil {
			return nil, err
		}
		t.TLSClientConfig = tlsCfg
	}
	return t, nil
}

func (c *Client) unixTransport() (http.RoundTripper, error) {
	path := c.cfg.Address
	if path == "" {
		path = DefaultUnixSocketPath
	}
	// The host is ignored by the dialer but must be a valid URL.
	c.baseURL = "http://keymaster"
	t := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", path)
		},
		MaxIdleConns:    4,
		IdleConnTimeout: 90 * time.Second,
	}
	return t, nil
}

func (c *Client) quicTransport() (http.RoundTripper, error) {
	addr := c.cfg.Address
	if addr == "" {
		addr = "localhost:8443"
	}
	c.baseURL = "https://" + addr
	tlsCfg, err := c.tlsConfig()
	if err != nil {
		return nil, err
	}
	t := &http3.Transport{TLSClientConfig: tlsCfg}
	c.closeFn = t.Close
	return t, nil
}

func (c *Client) tlsConfig() (*tls.Config, error) {
	if c.cfg.TLSConfig != nil {
		return c.cfg.TLSConfig.Clone(), nil
	}
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.cfg.TLSInsecureSkipVerify, // #nosec G402 -- operator opt-in
	}
	if c.cfg.TLSCAFile != "" {
		pem, err := os.ReadFile(c.cfg.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("client: read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("client: no certificates in %s", c.cfg.TLSCAFile)
		}
		cfg.RootCAs = pool
	}
	if c.cfg.TLSCertFile != "" || c.cfg.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.cfg.TLSCertFile, c.cfg.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("client: load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
