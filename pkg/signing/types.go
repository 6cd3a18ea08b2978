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

package signing

import (
	"fmt"
	"strings"
)

// Curve identifies an elliptic-curve signature scheme.
type Curve string

const (
	Secp256k1 Curve = "secp256k1"
	Secp256r1 Curve = "secp256r1"
	Ed25519   Curve = "ed25519"
)

func (c Curve) String() string {
	return string(c)
}

// ParseCurve maps a curve name to a Curve. Matching is case-insensitive and
// accepts the common aliases "k1", "p256", "prime256v1" and "r1".
func ParseCurve(name string) (Curve, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "secp256k1", "k1":
		return Secp256k1, nil
	case "secp256r1", "p256", "p-256", "prime256v1", "r1":
		return Secp256r1, nil
	case "ed25519":
		return Ed25519, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurve, name)
	}
}

// SignRequest is one unit of signing work. Construct it with NewSignRequest
// so the payload is copied away from the caller.
type SignRequest struct {
	// Path is the BIP32 derivation path of the signing key.
	Path string

	// UnsignedData is the raw message. It is hashed by the signer.
	UnsignedData []byte

	// KeyID is the store ID of the seed record.
	KeyID string

	Curve Curve
}

// NewSignRequest builds a SignRequest holding its own copy of data.
func NewSignRequest(keyID, path string, data []byte, curve Curve) SignRequest {
	return SignRequest{
		Path:         path,
		UnsignedData: append([]byte(nil), data...),
		KeyID:        keyID,
		Curve:        curve,
	}
}

// Signature is the canonical signature encoding: 32-byte big-endian R and S
// as lowercase hex, plus the recovery id when the signer was asked for it.
type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V *uint8 `json:"v,omitempty"`
}
