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

// Package hd derives secp256k1 child keys from a 64-byte seed along a
// BIP32 derivation path.
package hd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// SeedLength is the only accepted seed size.
const SeedLength = 64

var (
	// ErrInvalidSeedLength is returned when the seed is not SeedLength bytes
	ErrInvalidSeedLength = errors.New("hd: invalid seed length")

	// ErrDerivation is returned for malformed paths and failed derivation steps
	ErrDerivation = errors.New("hd: derivation failed")
)

// Path is a sequence of child indexes. Hardened indexes have
// hdkeychain.HardenedKeyStart added.
type Path []uint32

// ParsePath parses "m/44'/0'/0'/0/0". A trailing ', h or H marks a hardened
// component. "m" alone is the master key.
func ParsePath(s string) (Path, error) {
	parts := strings.Split(s, "/")
	if parts[0] != "m" {
		return nil, fmt.Errorf("%w: path must start with m", ErrDerivation)
	}

	path := make(Path, 0, len(parts)-1)
	for i, part := range parts[1:] {
		hardened := false
		if n := len(part); n > 0 {
			switch part[n-1] {
			case '\'', 'h', 'H':
				hardened = true
				part = part[:n-1]
			}
		}
		// ParseUint accepts a leading '+'; only plain digits are valid here.
		if part == "" || part[0] < '0' || part[0] > '9' {
			return nil, fmt.Errorf("%w: component %d is not an index", ErrDerivation, i+1)
		}
		idx, err := strconv.ParseUint(part, 10, 32)
		if err != nil || idx >= hdkeychain.HardenedKeyStart {
			return nil, fmt.Errorf("%w: component %d out of range", ErrDerivation, i+1)
		}
		if hardened {
			idx += hdkeychain.HardenedKeyStart
		}
		path = append(path, uint32(idx))
	}
	return path, nil
}

// String formats the path using ' for hardened components.
func (p Path) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, idx := range p {
		b.WriteByte('/')
		if idx >= hdkeychain.HardenedKeyStart {
			b.WriteString(strconv.FormatUint(uint64(idx-hdkeychain.HardenedKeyStart), 10))
			b.WriteByte('\'')
			continue
		}
		b.WriteString(strconv.FormatUint(uint64(idx), 10))
	}
	return b.String()
}

// derive walks path from the master key of seed. The caller must Zero the
// returned key.
func derive(seed []byte, path string) (*hdkeychain.ExtendedKey, error) {
	if len(seed) != SeedLength {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidSeedLength, len(seed), SeedLength)
	}
	p, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("%w: master key: %v", ErrDerivation, err)
	}
	for depth, idx := range p {
		child, err := key.Derive(idx)
		key.Zero()
		if err != nil {
			return nil, fmt.Errorf("%w: depth %d: %v", ErrDerivation, depth+1, err)
		}
		key = child
	}
	return key, nil
}

// DeriveKey returns the 32-byte private key at path. The caller owns the
// returned slice and should zero it after use.
func DeriveKey(seed []byte, path string) ([]byte, error) {
	key, err := derive(seed, path)
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDerivation, err)
	}
	defer priv.Zero()
	return priv.Serialize(), nil
}

// DerivePublicKey returns the 33-byte compressed public key at path.
func DerivePublicKey(seed []byte, path string) ([]byte, error) {
	key, err := derive(seed, path)
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	pub, err := key.ECPubKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDerivation, err)
	}
	return pub.SerializeCompressed(), nil
}
