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

	"github.com/jeremyhahn/go-keymaster/pkg/keystore"
)

// Secp256r1Signer is a placeholder for NIST P-256. Every call fails.
type Secp256r1Signer struct{}

func (Secp256r1Signer) DeriveKey(SignRequest, string, keystore.Keystore) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurve, Secp256r1)
}

func (Secp256r1Signer) Sign(SignRequest, string, keystore.Keystore) (*Signature, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurve, Secp256r1)
}

func (Secp256r1Signer) PublicKey(SignRequest, string, keystore.Keystore) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurve, Secp256r1)
}

// Ed25519Signer is a placeholder for Ed25519. Every call fails.
type Ed25519Signer struct{}

func (Ed25519Signer) DeriveKey(SignRequest, string, keystore.Keystore) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurve, Ed25519)
}

func (Ed25519Signer) Sign(SignRequest, string, keystore.Keystore) (*Signature, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurve, Ed25519)
}

func (Ed25519Signer) PublicKey(SignRequest, string, keystore.Keystore) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurve, Ed25519)
}

var (
	_ CurveSigner = Secp256r1Signer{}
	_ CurveSigner = Ed25519Signer{}
)
