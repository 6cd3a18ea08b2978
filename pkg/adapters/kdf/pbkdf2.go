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

package kdf

import (
	"crypto"
	_ "crypto/sha256" // hmac-sha256
	_ "crypto/sha512" // hmac-sha512

	"golang.org/x/crypto/pbkdf2"
)

// PRF names used in keystore records.
const (
	PRFHmacSHA256 = "hmac-sha256"
	PRFHmacSHA512 = "hmac-sha512"
)

// HashForPRF maps a record PRF name to its hash.
func HashForPRF(prf string) (crypto.Hash, error) {
	switch prf {
	case PRFHmacSHA256:
		return crypto.SHA256, nil
	case PRFHmacSHA512:
		return crypto.SHA512, nil
	default:
		return 0, ErrInvalidHash
	}
}

// PRFForHash is the inverse of HashForPRF.
func PRFForHash(h crypto.Hash) (string, error) {
	switch h {
	case crypto.SHA256:
		return PRFHmacSHA256, nil
	case crypto.SHA512:
		return PRFHmacSHA512, nil
	default:
		return "", ErrInvalidHash
	}
}

const (
	// MinPBKDF2Iterations is the minimum accepted iteration count
	MinPBKDF2Iterations = 100000

	// MaxPBKDF2Iterations bounds the work a stored record can demand
	MaxPBKDF2Iterations = 10000000
)

// PBKDF2Adapter implements KDFAdapter using PBKDF2. Keystore records name
// the PRF as "hmac-sha256" or "hmac-sha512".
type PBKDF2Adapter struct{}

// NewPBKDF2Adapter creates a new PBKDF2 adapter
func NewPBKDF2Adapter() *PBKDF2Adapter {
	return &PBKDF2Adapter{}
}

// DeriveKey derives a key using PBKDF2
func (p *PBKDF2Adapter) DeriveKey(ikm []byte, params *KDFParams) ([]byte, error) {
	if err := p.ValidateParams(params); err != nil {
		return nil, err
	}

	if len(ikm) == 0 {
		return nil, ErrInvalidIKM
	}

	return pbkdf2.Key(ikm, params.Salt, params.Iterations, params.KeyLength, params.Hash.New), nil
}

// Algorithm returns the KDF algorithm
func (p *PBKDF2Adapter) Algorithm() KDFAlgorithm {
	return AlgorithmPBKDF2
}

// ValidateParams validates PBKDF2 parameters
func (p *PBKDF2Adapter) ValidateParams(params *KDFParams) error {
	if params == nil {
		return ErrInvalidParams
	}
	if params.Algorithm != AlgorithmPBKDF2 {
		return ErrUnsupportedAlgorithm
	}
	if err := validateKeyLength(params.KeyLength); err != nil {
		return err
	}
	if len(params.Salt) == 0 {
		return ErrInvalidSalt
	}
	if params.Iterations < MinPBKDF2Iterations || params.Iterations > MaxPBKDF2Iterations {
		return ErrInvalidIterations
	}
	switch params.Hash {
	case crypto.SHA256, crypto.SHA512:
	default:
		return ErrInvalidHash
	}
	if !params.Hash.Available() {
		return ErrInvalidHash
	}
	return nil
}
