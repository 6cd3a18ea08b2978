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
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jeremyhahn/go-keymaster/pkg/keymaster"
)

// KindInvalidRequest marks request validation failures that happen before
// the key master is called.
const KindInvalidRequest = "invalid_request"

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternal       = errors.New("internal server error")
	ErrAuditDisabled  = errors.New("audit log is disabled")
)

// statusForKind maps a keymaster error kind to an HTTP status.
func statusForKind(kind string) int {
	switch kind {
	case KindInvalidRequest,
		keymaster.KindInvalidLength,
		keymaster.KindInvalidPath,
		keymaster.KindSeedLength,
		keymaster.KindUnsupportedCurve,
		keymaster.KindMnemonic:
		return http.StatusBadRequest
	case keymaster.KindBadPassword:
		return http.StatusUnauthorized
	case keymaster.KindNotFound:
		return http.StatusNotFound
	case keymaster.KindStorage, keymaster.KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes err with the status its kind maps to. Server-side
// failures get a generic message so backend detail stays in the logs.
func handleError(w http.ResponseWriter, err error) {
	kind := keymaster.ErrorKind(err)
	if errors.Is(err, ErrInvalidRequest) {
		kind = KindInvalidRequest
	}
	code := statusForKind(kind)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		msg = http.StatusText(code)
	}
	writeJSON(w, ErrorResponse{Error: msg, Kind: kind, Code: code}, code)
}

func writeError(w http.ResponseWriter, err error, code int) {
	writeJSON(w, ErrorResponse{Error: err.Error(), Code: code}, code)
}

func writeJSON(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
