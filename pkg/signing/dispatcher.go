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

// Dispatcher routes a SignRequest to the signer for its curve.
type Dispatcher struct {
	secp256k1 CurveSigner
	secp256r1 CurveSigner
	ed25519   CurveSigner
}

// NewDispatcher returns a dispatcher whose secp256k1 signer is built with opts.
func NewDispatcher(opts ...Secp256k1Option) *Dispatcher {
	return &Dispatcher{
		secp256k1: NewSecp256k1Signer(opts...),
		secp256r1: Secp256r1Signer{},
		ed25519:   Ed25519Signer{},
	}
}

// Signer returns the signer registered for curve.
func (d *Dispatcher) Signer(curve Curve) (CurveSigner, error) {
	switch curve {
	case Secp256k1:
		return d.secp256k1, nil
	case Secp256r1:
		return d.secp256r1, nil
	case Ed25519:
		return d.ed25519, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCurve, curve)
	}
}

// Dispatch signs req with the signer for req.Curve.
func (d *Dispatcher) Dispatch(req SignRequest, password string, ks keystore.Keystore) (*Signature, error) {
	s, err := d.Signer(req.Curve)
	if err != nil {
		return nil, err
	}
	return s.Sign(req, password, ks)
}

// PublicKey returns the public key for req with the signer for req.Curve.
func (d *Dispatcher) PublicKey(req SignRequest, password string, ks keystore.Keystore) ([]byte, error) {
	s, err := d.Signer(req.Curve)
	if err != nil {
		return nil, err
	}
	return s.PublicKey(req, password, ks)
}
