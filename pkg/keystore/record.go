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

package keystore

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/jeremyhahn/go-keymaster/pkg/adapters/kdf"
)

const (
	// CipherAES128CTR is the only cipher records are written or read with.
	CipherAES128CTR = "aes-128-ctr"

	// AESKeyLength is the number of derived-key bytes used as the AES key.
	AESKeyLength = 16

	// IVLength is the AES-CTR initial counter length.
	IVLength = 16

	// MACLength is the Keccak-256 digest length.
	MACLength = 32
)

// Record is the persisted form of one encrypted secret. Field order is the
// wire order.
type Record struct {
	Ciphertext   string       `json:"ciphertext"`
	Cipher       string       `json:"cipher"`
	CipherParams CipherParams `json:"cipherparams"`
	KDF          string       `json:"kdf"`
	KDFParams    KDFParams    `json:"kdfparams"`
	MAC          string       `json:"mac"`
}

// CipherParams holds the hex encoded IV.
type CipherParams struct {
	IV string `json:"iv"`
}

// KDFParams carries the parameters of whichever KDF the record names.
// scrypt uses log_n, r and p; pbkdf2 uses c and prf; argon2id uses time,
// memory and threads.
type KDFParams struct {
	DKLen   int    `json:"dklen"`
	Salt    string `json:"salt"`
	LogN    uint8  `json:"log_n,omitempty"`
	R       int    `json:"r,omitempty"`
	P       int    `json:"p,omitempty"`
	C       int    `json:"c,omitempty"`
	PRF     string `json:"prf,omitempty"`
	Time    uint32 `json:"time,omitempty"`
	Memory  uint32 `json:"memory,omitempty"`
	Threads uint8  `json:"threads,omitempty"`
}

// sealed is a decoded, validated record.
type sealed struct {
	ciphertext []byte
	iv         []byte
	mac        []byte
	kdf        *kdf.KDFParams
}

// newRecord builds the wire form of a sealed secret.
func newRecord(s *sealed) (*Record, error) {
	p := s.kdf
	rec := &Record{
		Ciphertext:   hex.EncodeToString(s.ciphertext),
		Cipher:       CipherAES128CTR,
		CipherParams: CipherParams{IV: hex.EncodeToString(s.iv)},
		KDF:          p.Algorithm.String(),
		KDFParams: KDFParams{
			DKLen: p.KeyLength,
			Salt:  hex.EncodeToString(p.Salt),
		},
		MAC: hex.EncodeToString(s.mac),
	}

	switch p.Algorithm {
	case kdf.AlgorithmScrypt:
		rec.KDFParams.LogN = p.CostLog2
		rec.KDFParams.R = p.BlockSize
		rec.KDFParams.P = p.Parallelism
	case kdf.AlgorithmPBKDF2:
		prf, err := kdf.PRFForHash(p.Hash)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedKDF, err)
		}
		rec.KDFParams.C = p.Iterations
		rec.KDFParams.PRF = prf
	case kdf.AlgorithmArgon2id:
		rec.KDFParams.Time = p.Time
		rec.KDFParams.Memory = p.Memory
		rec.KDFParams.Threads = p.Threads
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKDF, p.Algorithm)
	}
	return rec, nil
}

// kdfParams converts the record's KDF section to adapter parameters.
func (r *Record) kdfParams() (*kdf.KDFParams, error) {
	salt, err := hex.DecodeString(r.KDFParams.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: salt is not hex", ErrSerialize)
	}

	p := &kdf.KDFParams{
		Algorithm: kdf.KDFAlgorithm(r.KDF),
		Salt:      salt,
		KeyLength: r.KDFParams.DKLen,
	}
	switch p.Algorithm {
	case kdf.AlgorithmScrypt:
		p.CostLog2 = r.KDFParams.LogN
		p.BlockSize = r.KDFParams.R
		p.Parallelism = r.KDFParams.P
	case kdf.AlgorithmPBKDF2:
		h, err := kdf.HashForPRF(r.KDFParams.PRF)
		if err != nil {
			return nil, fmt.Errorf("%w: prf %q", ErrUnsupportedKDF, r.KDFParams.PRF)
		}
		p.Iterations = r.KDFParams.C
		p.Hash = h
	case kdf.AlgorithmArgon2id:
		p.Time = r.KDFParams.Time
		p.Memory = r.KDFParams.Memory
		p.Threads = r.KDFParams.Threads
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKDF, r.KDF)
	}
	return p, nil
}

// Validate checks everything that can be checked without the password.
func (r *Record) Validate(registry *kdf.Registry) error {
	_, err := r.open(registry)
	return err
}

func (r *Record) open(registry *kdf.Registry) (*sealed, error) {
	if r.Cipher != CipherAES128CTR {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCipher, r.Cipher)
	}

	ct, err := hex.DecodeString(r.Ciphertext)
	if err != nil || len(ct) == 0 {
		return nil, fmt.Errorf("%w: ciphertext", ErrSerialize)
	}
	iv, err := hex.DecodeString(r.CipherParams.IV)
	if err != nil || len(iv) != IVLength {
		return nil, fmt.Errorf("%w: iv", ErrSerialize)
	}
	mac, err := hex.DecodeString(r.MAC)
	if err != nil || len(mac) != MACLength {
		return nil, fmt.Errorf("%w: mac", ErrSerialize)
	}

	params, err := r.kdfParams()
	if err != nil {
		return nil, err
	}
	if params.KeyLength < AESKeyLength {
		return nil, fmt.Errorf("%w: dklen %d shorter than cipher key", ErrSerialize, params.KeyLength)
	}
	adapter, err := registry.Get(params.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedKDF, err)
	}
	if err := adapter.ValidateParams(params); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialize, err)
	}

	return &sealed{ciphertext: ct, iv: iv, mac: mac, kdf: params}, nil
}

// ParseRecord decodes and validates a stored record.
func ParseRecord(data []byte, registry *kdf.Registry) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialize, err)
	}
	if err := rec.Validate(registry); err != nil {
		return nil, err
	}
	return &rec, nil
}
