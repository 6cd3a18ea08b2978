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

// Package kdf turns passwords into fixed-length symmetric keys. Each
// algorithm is an adapter behind KDFAdapter; a Registry resolves the
// algorithm named in a stored keystore record back to its adapter so that
// records are always read with the parameters they were written with.
package kdf

import (
	"crypto"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// KDFAlgorithm is the algorithm name as it appears in a keystore record.
type KDFAlgorithm string

const (
	// AlgorithmScrypt is the memory-hard scrypt KDF (RFC 7914).
	AlgorithmScrypt KDFAlgorithm = "scrypt"

	// AlgorithmPBKDF2 is PBKDF2 with an HMAC PRF (RFC 8018).
	AlgorithmPBKDF2 KDFAlgorithm = "pbkdf2"

	// AlgorithmArgon2id is the Argon2id variant of Argon2 (RFC 9106).
	AlgorithmArgon2id KDFAlgorithm = "argon2id"
)

// String returns the string representation of the KDF algorithm
func (a KDFAlgorithm) String() string {
	return string(a)
}

// KDFParams contains parameters for key derivation
type KDFParams struct {
	// Algorithm specifies which KDF algorithm to use
	Algorithm KDFAlgorithm

	// Salt is the random per-record salt
	Salt []byte

	// KeyLength is the desired output key length in bytes (dklen)
	KeyLength int

	// CostLog2 is log2 of the scrypt CPU/memory cost N
	CostLog2 uint8

	// BlockSize is the scrypt block size r
	BlockSize int

	// Parallelism is the scrypt parallelization parameter p
	Parallelism int

	// Iterations is the PBKDF2 iteration count
	Iterations int

	// Hash is the PBKDF2 HMAC hash
	Hash crypto.Hash

	// Memory is the Argon2 memory cost in KiB
	Memory uint32

	// Time is the Argon2 time cost
	Time uint32

	// Threads is the Argon2 parallelism
	Threads uint8
}

// KDFAdapter is implemented by every key derivation algorithm.
type KDFAdapter interface {
	// DeriveKey derives a key from the input key material using params
	DeriveKey(ikm []byte, params *KDFParams) ([]byte, error)

	// Algorithm returns the KDF algorithm this adapter implements
	Algorithm() KDFAlgorithm

	// ValidateParams rejects parameters this adapter cannot or will not use
	ValidateParams(params *KDFParams) error
}

var (
	// ErrInvalidParams indicates params is nil
	ErrInvalidParams = errors.New("kdf: invalid parameters")

	// ErrInvalidSalt indicates the salt is invalid (nil, empty, or too short)
	ErrInvalidSalt = errors.New("kdf: invalid salt")

	// ErrInvalidKeyLength indicates the requested key length is invalid
	ErrInvalidKeyLength = errors.New("kdf: invalid key length")

	// ErrInvalidCost indicates the scrypt cost, block size or parallelism is invalid
	ErrInvalidCost = errors.New("kdf: invalid cost parameters")

	// ErrInvalidIterations indicates the iteration count is invalid
	ErrInvalidIterations = errors.New("kdf: invalid iterations")

	// ErrInvalidMemory indicates the memory cost is invalid
	ErrInvalidMemory = errors.New("kdf: invalid memory cost")

	// ErrInvalidThreads indicates the thread count is invalid
	ErrInvalidThreads = errors.New("kdf: invalid threads")

	// ErrInvalidTime indicates the time cost is invalid
	ErrInvalidTime = errors.New("kdf: invalid time cost")

	// ErrInvalidHash indicates the hash function is invalid or not supported
	ErrInvalidHash = errors.New("kdf: invalid or unsupported hash function")

	// ErrInvalidIKM indicates the input key material is invalid
	ErrInvalidIKM = errors.New("kdf: invalid input key material")

	// ErrUnsupportedAlgorithm indicates the algorithm is not supported by this adapter
	ErrUnsupportedAlgorithm = errors.New("kdf: unsupported algorithm")
)

const (
	// MaxKeyLength caps dklen for any algorithm.
	MaxKeyLength = 64
)

// DefaultParams returns the write-path parameters for an algorithm with no
// salt set. The scrypt defaults (N=8192, r=8, p=1, dklen=16) are the
// keystore's standard configuration.
func DefaultParams(algorithm KDFAlgorithm) *KDFParams {
	switch algorithm {
	case AlgorithmScrypt:
		return &KDFParams{
			Algorithm:   AlgorithmScrypt,
			CostLog2:    13,
			BlockSize:   8,
			Parallelism: 1,
			KeyLength:   16,
		}
	case AlgorithmPBKDF2:
		return &KDFParams{
			Algorithm:  AlgorithmPBKDF2,
			Iterations: 262144,
			KeyLength:  16,
			Hash:       crypto.SHA256,
		}
	case AlgorithmArgon2id:
		return &KDFParams{
			Algorithm: AlgorithmArgon2id,
			Memory:    64 * 1024, // 64 MiB
			Time:      3,
			Threads:   4,
			KeyLength: 16,
		}
	default:
		return nil
	}
}

func validateKeyLength(n int) error {
	if n <= 0 || n > MaxKeyLength {
		return ErrInvalidKeyLength
	}
	return nil
}

// Registry maps algorithm names to adapters. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[KDFAlgorithm]KDFAdapter
}

// NewRegistry returns a registry holding the scrypt, pbkdf2 and argon2id
// adapters.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[KDFAlgorithm]KDFAdapter)}
	r.Register(NewScryptAdapter())
	r.Register(NewPBKDF2Adapter())
	r.Register(NewArgon2idAdapter())
	return r
}

// Register adds or replaces the adapter for its algorithm.
func (r *Registry) Register(a KDFAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Algorithm()] = a
}

// Get returns the adapter for algorithm.
func (r *Registry) Get(algorithm KDFAlgorithm) (KDFAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	return a, nil
}

// Algorithms returns the registered algorithm names in sorted order.
func (r *Registry) Algorithms() []KDFAlgorithm {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]KDFAlgorithm, 0, len(r.adapters))
	for a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Derive looks up the adapter for params.Algorithm and derives a key.
func (r *Registry) Derive(ikm []byte, params *KDFParams) ([]byte, error) {
	if params == nil {
		return nil, ErrInvalidParams
	}
	a, err := r.Get(params.Algorithm)
	if err != nil {
		return nil, err
	}
	return a.DeriveKey(ikm, params)
}
