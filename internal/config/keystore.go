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

package config

import (
	"fmt"
	"strings"

	"github.com/jeremyhahn/go-keymaster/pkg/adapters/kdf"
	"github.com/jeremyhahn/go-keymaster/pkg/crypto/rand"
)

// KDFParams returns the write template for the configured KDF.
func (k *KeystoreConfig) KDFParams() (*kdf.KDFParams, error) {
	alg := kdf.KDFAlgorithm(strings.ToLower(k.KDF))
	params := kdf.DefaultParams(alg)
	if params == nil {
		return nil, fmt.Errorf("%w: unknown kdf %q", ErrInvalidConfig, k.KDF)
	}
	switch alg {
	case kdf.AlgorithmScrypt:
		if k.ScryptLogN != 0 {
			params.CostLog2 = k.ScryptLogN
		}
		if k.ScryptR != 0 {
			params.BlockSize = k.ScryptR
		}
		if k.ScryptP != 0 {
			params.Parallelism = k.ScryptP
		}
	case kdf.AlgorithmPBKDF2:
		if k.PBKDF2Iterations != 0 {
			params.Iterations = k.PBKDF2Iterations
		}
		if k.PBKDF2PRF != "" {
			h, err := kdf.HashForPRF(k.PBKDF2PRF)
			if err != nil {
				return nil, fmt.Errorf("%w: pbkdf2 prf %q", ErrInvalidConfig, k.PBKDF2PRF)
			}
			params.Hash = h
		}
	case kdf.AlgorithmArgon2id:
		if k.Argon2Time != 0 {
			params.Time = k.Argon2Time
		}
		if k.Argon2Memory != 0 {
			params.Memory = k.Argon2Memory
		}
		if k.Argon2Threads != 0 {
			params.Threads = k.Argon2Threads
		}
	}

	// Probe with a dummy salt; the engine draws a real one per record.
	probe := *params
	probe.Salt = make([]byte, 16)
	adapter, err := kdf.NewRegistry().Get(alg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := adapter.ValidateParams(&probe); err != nil {
		return nil, fmt.Errorf("%w: kdf params: %w", ErrInvalidConfig, err)
	}
	return params, nil
}

func (k *KeystoreConfig) randomMode() (rand.Mode, error) {
	switch mode := rand.Mode(strings.ToLower(k.Random)); mode {
	case "", rand.ModeAuto:
		return rand.ModeAuto, nil
	case rand.ModeSoftware:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: unknown random mode %q", ErrInvalidConfig, k.Random)
	}
}

// RandomSource resolves the configured entropy source.
func (k *KeystoreConfig) RandomSource() (rand.Resolver, error) {
	mode, err := k.randomMode()
	if err != nil {
		return nil, err
	}
	return rand.NewResolver(&rand.Config{Mode: mode})
}
