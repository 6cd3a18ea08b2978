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

// Package signing turns a stored seed into a signature. A CurveSigner
// fetches the seed from a keystore, derives the leaf key for the request
// path and signs; the Dispatcher routes a request to the signer for its
// curve. Private key bytes live only for the duration of one call.
package signing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/jeremyhahn/go-keymaster/pkg/hd"
	"github.com/jeremyhahn/go-keymaster/pkg/keystore"
)

// CurveSigner signs requests for one curve.
type CurveSigner interface {
	// DeriveKey returns the private key for req. The caller must zero it.
	DeriveKey(req SignRequest, password string, ks keystore.Keystore) ([]byte, error)

	// Sign derives the key for req and signs req.UnsignedData.
	Sign(req SignRequest, password string, ks keystore.Keystore) (*Signature, error)

	// PublicKey returns the encoded public key for req.
	PublicKey(req SignRequest, password string, ks keystore.Keystore) ([]byte, error)
}

// Secp256k1Option configures a Secp256k1Signer.
type Secp256k1Option func(*Secp256k1Signer)

// WithRecoveryID makes the signer fill Signature.V.
func WithRecoveryID() Secp256k1Option {
	return func(s *Secp256k1Signer) {
		s.recovery = true
	}
}

// Secp256k1Signer produces deterministic (RFC 6979), low-S ECDSA
// signatures over the SHA-256 digest of the message.
type Secp256k1Signer struct {
	recovery bool
}

// NewSecp256k1Signer returns a secp256k1 signer.
func NewSecp256k1Signer(opts ...Secp256k1Option) *Secp256k1Signer {
	s := &Secp256k1Signer{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withSeed fetches the seed for req, hands it to fn and zeroes it.
func withSeed(req SignRequest, password string, ks keystore.Keystore, fn func(seed []byte) error) error {
	if ks == nil {
		return ErrKeystoreRequired
	}
	seed, err := ks.GetKey(password, req.KeyID)
	if err != nil {
		return err
	}
	defer zero(seed)
	return fn(seed)
}

// DeriveKey returns the 32-byte private key at req.Path.
func (s *Secp256k1Signer) DeriveKey(req SignRequest, password string, ks keystore.Keystore) ([]byte, error) {
	var key []byte
	err := withSeed(req, password, ks, func(seed []byte) (err error) {
		key, err = hd.DeriveKey(seed, req.Path)
		return err
	})
	return key, err
}

// PublicKey returns the 33-byte compressed public key at req.Path.
func (s *Secp256k1Signer) PublicKey(req SignRequest, password string, ks keystore.Keystore) ([]byte, error) {
	var pub []byte
	err := withSeed(req, password, ks, func(seed []byte) (err error) {
		pub, err = hd.DerivePublicKey(seed, req.Path)
		return err
	})
	return pub, err
}

// Sign signs req.UnsignedData with the key at req.Path.
func (s *Secp256k1Signer) Sign(req SignRequest, password string, ks keystore.Keystore) (*Signature, error) {
	key, err := s.DeriveKey(req, password, ks)
	if err != nil {
		return nil, err
	}
	defer zero(key)
	return SignSecp256k1(key, req.UnsignedData, s.recovery)
}

// SignSecp256k1 signs SHA-256(msg) with a raw 32-byte private key.
func SignSecp256k1(key, msg []byte, recovery bool) (*Signature, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: private key must be 32 bytes, got %d", ErrSigningFailed, len(key))
	}
	var scalar secp256k1.ModNScalar
	overflow := scalar.SetByteSlice(key)
	invalid := overflow || scalar.IsZero()
	scalar.Zero()
	if invalid {
		return nil, fmt.Errorf("%w: private key out of range", ErrSigningFailed)
	}

	priv := secp256k1.PrivKeyFromBytes(key)
	defer priv.Zero()

	digest := sha256.Sum256(msg)
	compact := ecdsa.SignCompact(priv, digest[:], true)
	if len(compact) != 65 {
		return nil, fmt.Errorf("%w: unexpected compact signature length %d", ErrSigningFailed, len(compact))
	}

	sig := &Signature{
		R: hex.EncodeToString(compact[1:33]),
		S: hex.EncodeToString(compact[33:65]),
	}
	if recovery {
		// The header byte is 27 + recovery id, plus 4 for a compressed key.
		v := (compact[0] - 27) & 0x03
		sig.V = &v
	}
	return sig, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

var _ CurveSigner = (*Secp256k1Signer)(nil)
