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
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/jeremyhahn/go-keymaster/pkg/adapters/audit"
	"github.com/jeremyhahn/go-keymaster/pkg/signing"
	"github.com/jeremyhahn/go-keymaster/pkg/validation"
	"github.com/jeremyhahn/go-keymaster/pkg/verification"
)

// maxAuditLimit bounds GET /api/v1/audit?limit=.
const maxAuditLimit = 1000

// SignHandler handles POST /api/v1/sign.
func (s *Server) SignHandler(w http.ResponseWriter, r *http.Request) {
	var body KeyRequest
	if !s.decode(w, r, &body) {
		return
	}
	msg, err := body.message()
	if err != nil {
		handleError(w, err)
		return
	}
	req, err := body.signRequest(msg)
	if err != nil {
		handleError(w, err)
		return
	}

	sig, err := s.km.Sign(r.Context(), req, body.Password)
	if err != nil {
		handleError(w, err)
		return
	}
	resp := SignResponse{
		KeyID: req.KeyID,
		Path:  req.Path,
		Curve: req.Curve.String(),
		R:     sig.R,
		S:     sig.S,
	}
	if body.Recovery {
		resp.V = sig.V
	}
	writeJSON(w, resp, http.StatusOK)
}

// PublicKeyHandler handles POST /api/v1/pubkey.
func (s *Server) PublicKeyHandler(w http.ResponseWriter, r *http.Request) {
	var body KeyRequest
	if !s.decode(w, r, &body) {
		return
	}
	req, err := body.signRequest(nil)
	if err != nil {
		handleError(w, err)
		return
	}

	pub, err := s.km.PublicKey(r.Context(), req, body.Password)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, PublicKeyResponse{
		KeyID:     req.KeyID,
		Path:      req.Path,
		Curve:     req.Curve.String(),
		PublicKey: hex.EncodeToString(pub),
	}, http.StatusOK)
}

// VerifyHandler handles POST /api/v1/verify. A well-formed signature that
// does not match is a 200 with valid=false; malformed input is a 400.
func (s *Server) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	var body VerifyRequest
	if !s.decode(w, r, &body) {
		return
	}
	msg, err := decodeMessage(body.Message, body.Encoding)
	if err != nil {
		handleError(w, err)
		return
	}
	pub, err := hex.DecodeString(body.PublicKey)
	if err != nil || len(pub) == 0 {
		handleError(w, fmt.Errorf("%w: public_key must be hex", ErrInvalidRequest))
		return
	}
	curve := signing.Secp256k1
	if body.Curve != "" {
		if curve, err = signing.ParseCurve(body.Curve); err != nil {
			handleError(w, err)
			return
		}
	}

	err = verification.Verify(curve, pub, msg, &signing.Signature{R: body.R, S: body.S})
	switch {
	case err == nil:
		writeJSON(w, VerifyResponse{Valid: true}, http.StatusOK)
	case errors.Is(err, verification.ErrSignatureVerification), errors.Is(err, verification.ErrNonCanonical):
		writeJSON(w, VerifyResponse{Reason: err.Error()}, http.StatusOK)
	case errors.Is(err, verification.ErrInvalidSignature), errors.Is(err, verification.ErrInvalidPublicKey):
		handleError(w, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	default:
		handleError(w, err)
	}
}

// AuditHandler handles GET /api/v1/audit. Query parameters: limit,
// key_id and outcome.
func (s *Server) AuditHandler(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, ErrAuditDisabled, http.StatusNotFound)
		return
	}
	q := r.URL.Query()
	query := &audit.EventQuery{Limit: 100, KeyID: q.Get("key_id")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxAuditLimit {
			handleError(w, fmt.Errorf("%w: limit must be 1-%d", ErrInvalidRequest, maxAuditLimit))
			return
		}
		query.Limit = n
	}
	if query.KeyID != "" {
		if err := validation.ValidateStoreID(query.KeyID); err != nil {
			handleError(w, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
			return
		}
	}
	if v := q.Get("outcome"); v != "" {
		query.Outcomes = []audit.EventOutcome{audit.EventOutcome(v)}
	}

	events, err := s.events.GetEvents(r.Context(), query)
	if err != nil {
		handleError(w, err)
		return
	}
	resp := AuditResponse{Events: make([]AuditEventResponse, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, newAuditEventResponse(e))
	}
	writeJSON(w, resp, http.StatusOK)
}

// VersionHandler handles GET /api/v1/version.
func (s *Server) VersionHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, VersionResponse{Version: s.version}, http.StatusOK)
}

// decode reads a single JSON object into v, writing the error response
// itself when it returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, fmt.Errorf("%w: body exceeds %d bytes", ErrInvalidRequest, tooBig.Limit), http.StatusRequestEntityTooLarge)
			return false
		}
		handleError(w, fmt.Errorf("%w: malformed JSON body", ErrInvalidRequest))
		return false
	}
	if dec.More() {
		handleError(w, fmt.Errorf("%w: trailing data after JSON body", ErrInvalidRequest))
		return false
	}
	return true
}

func (b *KeyRequest) message() ([]byte, error) {
	return decodeMessage(b.Message, b.Encoding)
}

func decodeMessage(message, encoding string) ([]byte, error) {
	switch encoding {
	case "", EncodingUTF8:
		return []byte(message), nil
	case EncodingHex:
		msg, err := hex.DecodeString(message)
		if err != nil {
			return nil, fmt.Errorf("%w: message is not valid hex", ErrInvalidRequest)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: encoding must be %q or %q", ErrInvalidRequest, EncodingUTF8, EncodingHex)
	}
}

func (b *KeyRequest) signRequest(msg []byte) (signing.SignRequest, error) {
	if err := validation.ValidateStoreID(b.KeyID); err != nil {
		return signing.SignRequest{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := validation.ValidateDerivationPath(b.Path); err != nil {
		return signing.SignRequest{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	curve := signing.Secp256k1
	if b.Curve != "" {
		c, err := signing.ParseCurve(b.Curve)
		if err != nil {
			return signing.SignRequest{}, err
		}
		curve = c
	}
	return signing.NewSignRequest(b.KeyID, b.Path, msg, curve), nil
}
