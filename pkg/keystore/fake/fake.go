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

// Package fake provides an in-memory keystore.Keystore for tests. Each call
// to New returns an independent instance, so tests never share state.
package fake

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-keymaster/pkg/keystore"
)

const (
	// FixtureStoreID addresses the seed passed to New.
	FixtureStoreID = "0000000000000000000000000000f00d"

	// FixturePassword unlocks the seed passed to New.
	FixturePassword = "pass"

	fixtureSeedHex = "5eb00bbddcf069084889a8ab9155568165f5c453ccb85e70811aaed6f6da5fc1" +
		"9a5ac40b389cd370d086206dec8aa6c43daea6690f20ad3d8d48b2d2ce9e38e4"
)

// Fixture returns the well-known 64-byte test seed (the BIP39 seed of
// "abandon ... about" with an empty passphrase).
func Fixture() []byte {
	seed, _ := hex.DecodeString(fixtureSeedHex)
	return seed
}

type entry struct {
	password string
	key      []byte
}

// Keystore is a plaintext, map-backed keystore.
type Keystore struct {
	mu      sync.Mutex
	entries map[string]entry
	next    uint64
	err     error
	reads   int
	writes  int
}

// New returns a keystore holding seed under FixtureStoreID. A nil seed
// yields an empty keystore.
func New(seed []byte) *Keystore {
	ks := &Keystore{entries: make(map[string]entry)}
	if seed != nil {
		ks.entries[FixtureStoreID] = entry{password: FixturePassword, key: clone(seed)}
	}
	return ks
}

// FailWith makes every subsequent call return err. Pass nil to clear.
func (k *Keystore) FailWith(err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.err = err
}

// Reads returns how many times GetKey was called.
func (k *Keystore) Reads() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.reads
}

// Writes returns how many times WriteKey was called.
func (k *Keystore) Writes() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.writes
}

// GenerateEntropy returns a deterministic, non-secret byte pattern.
func (k *Keystore) GenerateEntropy(bits int) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.err != nil {
		return nil, k.err
	}
	if bits != keystore.EntropyBits128 && bits != keystore.EntropyBits256 {
		return nil, keystore.ErrInvalidLength
	}
	out := make([]byte, bits/8)
	for i := range out {
		out[i] = byte(i + 1)
	}
	return out, nil
}

// WriteKey stores a copy of key under a sequential store ID.
func (k *Keystore) WriteKey(password string, key []byte) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.writes++
	if k.err != nil {
		return "", k.err
	}
	if password == "" {
		return "", keystore.ErrPasswordRequired
	}
	k.next++
	id := fmt.Sprintf("%032x", k.next)
	k.entries[id] = entry{password: password, key: clone(key)}
	return id, nil
}

// GetKey returns a copy of the key stored under storeID.
func (k *Keystore) GetKey(password, storeID string) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.reads++
	if k.err != nil {
		return nil, k.err
	}
	e, ok := k.entries[storeID]
	if !ok {
		return nil, keystore.ErrNotExist
	}
	if e.password != password {
		return nil, keystore.ErrPasswordInvalid
	}
	return clone(e.key), nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ keystore.Keystore = (*Keystore)(nil)
