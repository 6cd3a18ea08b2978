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
	"golang.org/x/crypto/scrypt"
)

const (
	// MinScryptCostLog2 and MaxScryptCostLog2 bound N = 2^log_n. The upper
	// bound keeps a crafted record from demanding gigabytes of memory.
	MinScryptCostLog2 = 10
	MaxScryptCostLog2 = 20

	// MaxScryptBlockSize bounds r
	MaxScryptBlockSize = 32

	// MaxScryptParallelism bounds p
	MaxScryptParallelism = 16
)

// ScryptAdapter implements KDFAdapter using scrypt.
type ScryptAdapter struct{}

// NewScryptAdapter creates a new scrypt adapter
func NewScryptAdapter() *ScryptAdapter {
	return &ScryptAdapter{}
}

// DeriveKey derives a key using scrypt with N = 2^CostLog2.
func (s *ScryptAdapter) DeriveKey(ikm []byte, params *KDFParams) ([]byte, error) {
	if err := s.ValidateParams(params); err != nil {
		return nil, err
	}
	if len(ikm) == 0 {
		return nil, ErrInvalidIKM
	}

	n := 1 << params.CostLog2
	key, err := scrypt.Key(ikm, params.Salt, n, params.BlockSize, params.Parallelism, params.KeyLength)
	if err != nil {
		return nil, ErrInvalidCost
	}
	return key, nil
}

// Algorithm returns the KDF algorithm
func (s *ScryptAdapter) Algorithm() KDFAlgorithm {
	return AlgorithmScrypt
}

// ValidateParams validates scrypt parameters
func (s *ScryptAdapter) ValidateParams(params *KDFParams) error {
	if params == nil {
		return ErrInvalidParams
	}
	if params.Algorithm != AlgorithmScrypt {
		return ErrUnsupportedAlgorithm
	}
	if err := validateKeyLength(params.KeyLength); err != nil {
		return err
	}
	if len(params.Salt) == 0 {
		return ErrInvalidSalt
	}
	if params.CostLog2 < MinScryptCostLog2 || params.CostLog2 > MaxScryptCostLog2 {
		return ErrInvalidCost
	}
	if params.BlockSize < 1 || params.BlockSize > MaxScryptBlockSize {
		return ErrInvalidCost
	}
	if params.Parallelism < 1 || params.Parallelism > MaxScryptParallelism {
		return ErrInvalidCost
	}
	return nil
}
