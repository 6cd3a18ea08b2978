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
	"bytes"
	"crypto"
	"encoding/hex"
	"errors"
	"testing"
)

var (
	testPassword = []byte("pass")
	testSalt     = []byte("saltsaltsaltsalt") // 16 bytes
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func withSalt(p *KDFParams, salt []byte) *KDFParams {
	p.Salt = salt
	return p
}

func TestDefaultParams(t *testing.T) {
	scryptParams := DefaultParams(AlgorithmScrypt)
	if scryptParams.CostLog2 != 13 || scryptParams.BlockSize != 8 || scryptParams.Parallelism != 1 || scryptParams.KeyLength != 16 {
		t.Errorf("unexpected scrypt defaults: %+v", scryptParams)
	}

	if p := DefaultParams(AlgorithmPBKDF2); p.Hash != crypto.SHA256 || p.KeyLength != 16 {
		t.Errorf("unexpected pbkdf2 defaults: %+v", p)
	}
	if p := DefaultParams(AlgorithmArgon2id); p.Memory != 64*1024 || p.KeyLength != 16 {
		t.Errorf("unexpected argon2id defaults: %+v", p)
	}
	if p := DefaultParams("bcrypt"); p != nil {
		t.Errorf("DefaultParams(bcrypt) = %+v, want nil", p)
	}
}

func TestScryptAdapter_KnownAnswer(t *testing.T) {
	a := NewScryptAdapter()
	key, err := a.DeriveKey(testPassword, withSalt(DefaultParams(AlgorithmScrypt), testSalt))
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	want := mustHex(t, "24c2a39e7daebf60cc2faf0cd939ed32")
	if !bytes.Equal(key, want) {
		t.Errorf("DeriveKey() = %x, want %x", key, want)
	}
}

func TestScryptAdapter_ValidateParams(t *testing.T) {
	base := func() *KDFParams { return withSalt(DefaultParams(AlgorithmScrypt), testSalt) }

	tests := []struct {
		name   string
		mutate func(*KDFParams)
		want   error
	}{
		{"valid", func(*KDFParams) {}, nil},
		{"wrong algorithm", func(p *KDFParams) { p.Algorithm = AlgorithmPBKDF2 }, ErrUnsupportedAlgorithm},
		{"zero key length", func(p *KDFParams) { p.KeyLength = 0 }, ErrInvalidKeyLength},
		{"huge key length", func(p *KDFParams) { p.KeyLength = 65 }, ErrInvalidKeyLength},
		{"empty salt", func(p *KDFParams) { p.Salt = nil }, ErrInvalidSalt},
		{"short salt", func(p *KDFParams) { p.Salt = []byte("short") }, nil},
		{"cost too low", func(p *KDFParams) { p.CostLog2 = 4 }, ErrInvalidCost},
		{"cost too high", func(p *KDFParams) { p.CostLog2 = 30 }, ErrInvalidCost},
		{"zero block size", func(p *KDFParams) { p.BlockSize = 0 }, ErrInvalidCost},
		{"zero parallelism", func(p *KDFParams) { p.Parallelism = 0 }, ErrInvalidCost},
	}

	a := NewScryptAdapter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base()
			tt.mutate(p)
			err := a.ValidateParams(p)
			if !errors.Is(err, tt.want) {
				t.Errorf("ValidateParams() = %v, want %v", err, tt.want)
			}
		})
	}

	if err := a.ValidateParams(nil); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("ValidateParams(nil) = %v", err)
	}
	if _, err := a.DeriveKey(nil, base()); !errors.Is(err, ErrInvalidIKM) {
		t.Errorf("DeriveKey(nil) = %v, want ErrInvalidIKM", err)
	}
}

func TestPBKDF2Adapter_KnownAnswers(t *testing.T) {
	tests := []struct {
		name       string
		hash       crypto.Hash
		iterations int
		keyLength  int
		want       string
	}{
		{"sha256", crypto.SHA256, 262144, 16, "8530fedf00665e12639197815889c397"},
		{"sha512", crypto.SHA512, 100000, 32, "66f80bbffbb10009497a74dfb0efd5a9ae5399889dab02e715d7ac0b8e962248"},
	}

	a := NewPBKDF2Adapter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := a.DeriveKey(testPassword, &KDFParams{
				Algorithm:  AlgorithmPBKDF2,
				Salt:       testSalt,
				Iterations: tt.iterations,
				KeyLength:  tt.keyLength,
				Hash:       tt.hash,
			})
			if err != nil {
				t.Fatalf("DeriveKey() error = %v", err)
			}
			if !bytes.Equal(key, mustHex(t, tt.want)) {
				t.Errorf("DeriveKey() = %x, want %s", key, tt.want)
			}
		})
	}
}

func TestPBKDF2Adapter_ValidateParams(t *testing.T) {
	a := NewPBKDF2Adapter()
	base := func() *KDFParams { return withSalt(DefaultParams(AlgorithmPBKDF2), testSalt) }

	p := base()
	p.Iterations = 1000
	if err := a.ValidateParams(p); !errors.Is(err, ErrInvalidIterations) {
		t.Errorf("low iterations: %v", err)
	}

	p = base()
	p.Hash = crypto.MD5
	if err := a.ValidateParams(p); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("md5: %v", err)
	}

	p = base()
	p.Salt = nil
	if err := a.ValidateParams(p); !errors.Is(err, ErrInvalidSalt) {
		t.Errorf("nil salt: %v", err)
	}
}

func TestPRFMapping(t *testing.T) {
	for _, prf := range []string{PRFHmacSHA256, PRFHmacSHA512} {
		h, err := HashForPRF(prf)
		if err != nil {
			t.Fatalf("HashForPRF(%s) error = %v", prf, err)
		}
		back, err := PRFForHash(h)
		if err != nil || back != prf {
			t.Errorf("PRFForHash(%v) = %s, %v", h, back, err)
		}
	}
	if _, err := HashForPRF("hmac-md5"); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("HashForPRF(hmac-md5) = %v", err)
	}
	if _, err := PRFForHash(crypto.SHA1); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("PRFForHash(SHA1) = %v", err)
	}
}

func TestArgon2idAdapter(t *testing.T) {
	a := NewArgon2idAdapter()
	params := &KDFParams{
		Algorithm: AlgorithmArgon2id,
		Salt:      testSalt,
		Memory:    MinArgon2Memory,
		Time:      1,
		Threads:   1,
		KeyLength: 16,
	}

	k1, err := a.DeriveKey(testPassword, params)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	k2, _ := a.DeriveKey(testPassword, params)
	if !bytes.Equal(k1, k2) || len(k1) != 16 {
		t.Fatalf("Argon2id must be deterministic with a 16-byte output")
	}
	k3, _ := a.DeriveKey([]byte("other"), params)
	if bytes.Equal(k1, k3) {
		t.Fatal("different passwords must produce different keys")
	}

	params.Memory = 1024
	if err := a.ValidateParams(params); !errors.Is(err, ErrInvalidMemory) {
		t.Errorf("low memory: %v", err)
	}
	params.Memory = MinArgon2Memory
	params.Time = 0
	if err := a.ValidateParams(params); !errors.Is(err, ErrInvalidTime) {
		t.Errorf("zero time: %v", err)
	}
	params.Time = 1
	params.Threads = 0
	if err := a.ValidateParams(params); !errors.Is(err, ErrInvalidThreads) {
		t.Errorf("zero threads: %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	want := []KDFAlgorithm{AlgorithmArgon2id, AlgorithmPBKDF2, AlgorithmScrypt}
	got := r.Algorithms()
	if len(got) != len(want) {
		t.Fatalf("Algorithms() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Algorithms()[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	key, err := r.Derive(testPassword, withSalt(DefaultParams(AlgorithmScrypt), testSalt))
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}
	if hex.EncodeToString(key) != "24c2a39e7daebf60cc2faf0cd939ed32" {
		t.Errorf("Derive() = %x", key)
	}

	if _, err := r.Get("bcrypt"); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Errorf("Get(bcrypt) = %v", err)
	}
	if _, err := r.Derive(testPassword, nil); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("Derive(nil) = %v", err)
	}
}
