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

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

// Error kinds returned by the server in APIError.Kind.
const (
	KindInvalidRequest   = "invalid_request"
	KindBadPassword      = "bad_password"
	KindNotFound         = "not_found"
	KindUnsupportedCurve = "unsupported_curve"
	KindStorage          = "storage"
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("keymaster: %d %s: %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("keymaster: %d: %s", e.StatusCode, e.Message)
}

// IsKind reports whether err is an APIError of the given kind.
func IsKind(err error, kind string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// SignRequest signs Message with the key at Path. Encoding is "utf8"
// (default) or "hex".
type SignRequest struct {
	KeyID    string `json:"key_id"`
	Path     string `json:"path"`
	Curve    string `json:"curve,omitempty"`
	Password string `json:"password"`
	Message  string `json:"message,omitempty"`
	Encoding string `json:"encoding,omitempty"`
	Recovery bool   `json:"recovery,omitempty"`
}

// SignResponse is a low-S signature as hex.
type SignResponse struct {
	KeyID string `json:"key_id"`
	Path  string `json:"path"`
	Curve string `json:"curve"`
	R     string `json:"r"`
	S     string `json:"s"`
	V     *uint8 `json:"v,omitempty"`
}

// PublicKeyRequest selects a derived key.
type PublicKeyRequest struct {
	KeyID    string `json:"key_id"`
	Path     string `json:"path"`
	Curve    string `json:"curve,omitempty"`
	Password string `json:"password"`
}

// PublicKeyResponse carries the compressed public key as hex.
type PublicKeyResponse struct {
	KeyID     string `json:"key_id"`
	Path      string `json:"path"`
	Curve     string `json:"curve"`
	PublicKey string `json:"public_key"`
}

// VerifyRequest checks R and S against PublicKey.
type VerifyRequest struct {
	Curve     string `json:"curve,omitempty"`
	PublicKey string `json:"public_key"`
	Message   string `json:"message"`
	Encoding  string `json:"encoding,omitempty"`
	R         string `json:"r"`
	S         string `json:"s"`
}

// VerifyResponse reports a match. Reason explains a mismatch.
type VerifyResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// CheckResult is one readiness check.
type CheckResult struct {
	Name    string        `json:"name"`
	Status  string        `json:"status"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// HealthResponse is the readiness probe body.
type HealthResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message,omitempty"`
	Checks  []CheckResult `json:"checks,omitempty"`
}

// AuditQuery filters GET /api/v1/audit. Zero values are omitted.
type AuditQuery struct {
	Limit   int
	KeyID   string
	Outcome string
}

// AuditEvent is one recorded operation.
type AuditEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Outcome   string    `json:"outcome"`
	Principal string    `json:"principal,omitempty"`
	KeyID     string    `json:"key_id,omitempty"`
	Path      string    `json:"path,omitempty"`
	Curve     string    `json:"curve,omitempty"`
	Backend   string    `json:"backend,omitempty"`
	Error     string    `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// Health returns the readiness status. An unhealthy server is reported in
// the response, not as an error.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	return c.probe(ctx, "/health/ready")
}

// Version returns the server build version.
func (c *Client) Version(ctx context.Context) (string, error) {
	var resp struct {
		Version string `json:"version"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/version", nil, &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

// Sign signs a message with a derived key.
func (c *Client) Sign(ctx context.Context, req *SignRequest) (*SignResponse, error) {
	var resp SignResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/sign", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PublicKey returns the public key at a derivation path.
func (c *Client) PublicKey(ctx context.Context, req *PublicKeyRequest) (*PublicKeyResponse, error) {
	var resp PublicKeyResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/pubkey", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Verify asks the server to check a signature.
func (c *Client) Verify(ctx context.Context, req *VerifyRequest) (*VerifyResponse, error) {
	var resp VerifyResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/verify", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Audit returns recent audit events, newest first.
func (c *Client) Audit(ctx context.Context, q *AuditQuery) ([]AuditEvent, error) {
	v := url.Values{}
	if q != nil {
		if q.Limit > 0 {
			v.Set("limit", strconv.Itoa(q.Limit))
		}
		if q.KeyID != "" {
			v.Set("key_id", q.KeyID)
		}
		if q.Outcome != "" {
			v.Set("outcome", q.Outcome)
		}
	}
	path := "/api/v1/audit"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var resp struct {
		Events []AuditEvent `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *Client) probe(ctx context.Context, path string) (*HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable && resp.Status != "" {
		return &resp, nil
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// do sends body as JSON and decodes the response into out. Error bodies
// are decoded into out as well so probes can read a 503.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}
	if c.cfg.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrConnectionFailed, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		if out != nil {
			_ = json.Unmarshal(data, out)
		}
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var e struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			apiErr.Message, apiErr.Kind = e.Error, e.Kind
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}
