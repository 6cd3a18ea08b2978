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

// Package verification checks signatures produced by the signing package
// against a public key, and recovers the public key from a signature that
// carries a recovery id. Nothing here touches a keystore.
package verification

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/jeremyhahn/go-keymaster/pkg/signing"
)

// Verify checks sig over msg for the given curve. pub is the encoded
// public key as returned by the signer's PublicKey call.
func Verify(curve signing.Curve, pub, msg []byte, sig *signing.Signature) error {
	switch curve {
	case signing.Secp256k1:
		return VerifySecp256k1(pub, msg, sig)
	case signing.Secp256r1, signing.Ed25519:
		return fmt.Errorf("%w: %s", signing.ErrUnsupportedCurve, curve)
	default:
		return fmt.Errorf("%w: %q", signing.ErrUnsupportedCurve, string(curve))
	}
}

// VerifySecp256k1 checks a low-S signature over SHA-256(msg). pub may be
// compressed or uncompressed.
func VerifySecp256k1(pub, msg []byte, sig *signing.Signature) error {
	key, err := secp256k1.ParsePubKey(pub)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	r, s, err := scalars(sig)
	if err != nil {
		return err
	}
	if s.IsOverHalfOrder() {
		return ErrNonCanonical
	}
	digest := sha256.Sum256(msg)
	if !ecdsa.NewSignature(&r, &s).Verify(digest[:], key) {
		return ErrSignatureVerification
	}
	return nil
}

// RecoverSecp256k1 returns the compressed public key that produced sig
// over SHA-256(msg). sig.V must be set.
func RecoverSecp256k1(msg []byte, sig *signing.Signature) ([]byte, error) {
	if sig == nil || sig.V == nil {
		return nil, ErrRecoveryUnavailable
	}
	if *sig.V > 3 {
		return nil, fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, *sig.V)
	}
	r, s, err := scalars(sig)
	if err != nil {
		return nil, err
	}

	compact := make([]byte, 65)
	compact[0] = 27 + 4 + *sig.V
	r.PutBytesUnchecked(compact[1:33])
	s.PutBytesUnchecked(compact[33:65])

	digest := sha256.Sum256(msg)
	key, _, err := ecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSignatureVerification, err)
	}
	return key.SerializeCompressed(), nil
}

func scalars(sig *signing.Signature) (r, s secp256k1.ModNScalar, err error) {
	if sig == nil {
		return r, s, fmt.Errorf("%w: missing signature", ErrInvalidSignature)
	}
	if err = scalar(&r, "r", sig.R); err != nil {
		return r, s, err
	}
	err = scalar(&s, "s", sig.S)
	return r, s, err
}

func scalar(dst *secp256k1.ModNScalar, name, value string) error {
	b, err := hex.DecodeString(value)
	if err != nil || len(b) != 32 {
		return fmt.Errorf("%w: %s must be 32 bytes of hex", ErrInvalidSignature, name)
	}
	if dst.SetByteSlice(b) || dst.IsZero() {
		return fmt.Errorf("%w: %s out of range", ErrInvalidSignature, name)
	}
	return nil
}
