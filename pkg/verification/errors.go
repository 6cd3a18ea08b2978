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

package verification

import "errors"

var (
	// ErrSignatureVerification indicates the signature does not match the key and message.
	ErrSignatureVerification = errors.New("verification: signature verification failed")

	// ErrInvalidPublicKey indicates the public key bytes do not decode to a curve point.
	ErrInvalidPublicKey = errors.New("verification: invalid public key")

	// ErrInvalidSignature indicates r or s is malformed or out of range.
	ErrInvalidSignature = errors.New("verification: invalid signature encoding")

	// ErrNonCanonical indicates a high-S signature. Signers in this module
	// only emit low-S values.
	ErrNonCanonical = errors.New("verification: signature is not low-S")

	// ErrRecoveryUnavailable indicates a signature without a recovery id.
	ErrRecoveryUnavailable = errors.New("verification: signature has no recovery id")
)
