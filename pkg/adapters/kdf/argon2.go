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
	"golang.org/x/crypto/argon2"
)

const (
	// MinArgon2SaltLength is the minimum accepted salt length in bytes
	MinArgon2SaltLength = 16

	// MinArgon2Memory is the minimum memory cost in KiB
	MinArgon2Memory = 8 * 1024 // 8 MiB

	// MaxArgon2Memory bounds what a stored record can demand, in KiB
	MaxArgon2Memory = 1024 * 1024 // 1 GiB

	// MinArgon2Time is the minimum time cost
	MinArgon2Time = 1

	// MaxArgon2Time bounds the time cost
	MaxArgon2Time = 64

	// MinArgon2Threads is the minimum number of threads
	MinArgon2Threads = 1
)

// Argon2idAdapter implements KDFAdapter using Argon2id.
type Argon2idAdapter struct{}

// NewArgon2idAdapter creates a new Argon2id adapter
func NewArgon2idAdapter() *Argon2idAdapter {
	return &Argon2idAdapter{}
}

// DeriveKey derives a key using Argon2id
func (a *Argon2idAdapter) DeriveKey(ikm []byte, params *KDFParams) ([]byte, error) {
	if err := a.ValidateParams(params); err != nil {
		return nil, err
	}
	if len(ikm) == 0 {
		return nil, ErrInvalidIKM
	}

	return argon2.IDKey(
		ikm,
		params.Salt,
		params.Time,
		params.Memory,
		params.Threads,
		uint32(params.KeyLength),
	), nil
}

// Algorithm returns the KDF algorithm
func (a *Argon2idAdapter) Algorithm() KDFAlgorithm {
	return AlgorithmArgon2id
}

// ValidateParams validates Argon2id parameters
func (a *Argon2idAdapter) ValidateParams(params *KDFParams) error {
	if params == nil {
		return ErrInvalidParams
	}
	if params.Algorithm != AlgorithmArgon2id {
		return ErrUnsupportedAlgorithm
	}
	if err := validateKeyLength(params.KeyLength); err != nil {
		return err
	}
	if len(params.Salt) < MinArgon2SaltLength {
		return ErrInvalidSalt
	}
	if params.Memory < MinArgon2Memory || params.Memory > MaxArgon2Memory {
		return ErrInvalidMemory
	}
	if params.Time < MinArgon2Time || params.Time > MaxArgon2Time {
		return ErrInvalidTime
	}
	if params.Threads < MinArgon2Threads {
		return ErrInvalidThreads
	}
	return nil
}
