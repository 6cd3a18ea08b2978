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

// Package keystore persists secret key material encrypted under a password.
//
// Each secret is stored as a JSON record holding the ciphertext, the cipher
// and KDF parameters, and an integrity tag. The record is self-describing:
// reading it needs only the password and the parameters it carries.
//
//	ks, _ := keystore.NewEngine(&keystore.Config{Storage: memory.New()})
//	id, _ := ks.WriteKey("password", seed)
//	seed, _ = ks.GetKey("password", id)
package keystore

const (
	// EntropyBits128 and EntropyBits256 are the only supported entropy sizes.
	EntropyBits128 = 128
	EntropyBits256 = 256

	// StoreIDLength is the number of random bytes in a store ID. IDs are
	// hex encoded, so the string form is twice as long.
	StoreIDLength = 16
)

// Keystore is the surface the signing layer depends on.
type Keystore interface {
	// GenerateEntropy returns bits/8 bytes from the random source.
	GenerateEntropy(bits int) ([]byte, error)

	// WriteKey encrypts key under password, persists it and returns the
	// store ID that addresses it.
	WriteKey(password string, key []byte) (string, error)

	// GetKey decrypts and returns the key stored under storeID.
	GetKey(password, storeID string) ([]byte, error)
}

// Manager adds record administration to Keystore. The CLI uses it; signing
// never does.
type Manager interface {
	Keystore

	// Exists reports whether a record is stored under storeID.
	Exists(storeID string) (bool, error)

	// Delete removes the record stored under storeID.
	Delete(storeID string) error

	// List returns every store ID held by the backend.
	List() ([]string, error)
}
