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

package rest

import (
	"time"

	"github.com/jeremyhahn/go-keymaster/pkg/adapters/audit"
	"github.com/jeremyhahn/go-keymaster/pkg/health"
)

// Message encodings accepted in KeyRequest.Encoding.
const (
	EncodingUTF8 = "utf8"
	EncodingHex  = "hex"
)

// KeyRequest is the body of POST /api/v1/sign and POST /api/v1/pubkey.
type KeyRequest struct {
	KeyID    string `json:"key_id"`
	Path     string `json:"path"`
	Curve    string `json:"curve,omitempty"`
	Password string `json:"password"`

	// Message and Encoding are only read by the sign route.
	Message  string `json:"message,omitempty"`
	Encoding string `json:"encoding,omitempty"`
	Recovery bool   `json:"recovery,omitempty"`
}

// VerifyRequest is the body of POST /api/v1/verify. The signature is
// checked against PublicKey; no keystore is involved.
type VerifyRequest struct {
	Curve     string `json:"curve,omitempty"`
	PublicKey string `json:"public_key"`
	Message   string `json:"message"`
	Encoding  string `json:"encoding,omitempty"`
	R         string `json:"r"`
	S         string `json:"s"`
}

// VerifyResponse reports whether the signature matched. Reason is set
// when it did not.
type VerifyResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// SignResponse carries the canonical signature.
type SignResponse struct {
	KeyID string `json:"key_id"`
	Path  string `json:"path"`
	Curve string `json:"curve"`
	R     string `json:"r"`
	S     string `json:"s"`
	V     *uint8 `json:"v,omitempty"`
}

// PublicKeyResponse carries a hex-encoded compressed public key.
type PublicKeyResponse struct {
	KeyID     string `json:"key_id"`
	Path      string `json:"path"`
	Curve     string `json:"curve"`
	PublicKey string `json:"public_key"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Code  int    `json:"code"`
}

// VersionResponse describes the running build.
type VersionResponse struct {
	Version string `json:"version"`
}

// AuditEventResponse is the wire form of an audit event.
type AuditEventResponse struct {
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

// AuditResponse lists audit events, newest first.
type AuditResponse struct {
	Events []AuditEventResponse `json:"events"`
}

func newAuditEventResponse(e *audit.AuditEvent) AuditEventResponse {
	return AuditEventResponse{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Type:      string(e.EventType),
		Outcome:   string(e.Outcome),
		Principal: e.Principal,
		KeyID:     e.KeyID,
		Path:      e.Path,
		Curve:     e.Curve,
		Backend:   e.Backend,
		Error:     e.Error,
		RequestID: e.RequestID,
	}
}

// HealthResponse is the body of the health routes.
type HealthResponse struct {
	Status  health.Status        `json:"status"`
	Message string               `json:"message,omitempty"`
	Checks  []health.CheckResult `json:"checks,omitempty"`
}
