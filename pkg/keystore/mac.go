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
	"crypto/subtle"

	"golang.org/x/crypto/sha3"
)

// computeMAC returns Keccak-256(password || ciphertext).
func computeMAC(password, ciphertext []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(password)
	h.Write(ciphertext)
	return h.Sum(nil)
}

func verifyMAC(password, ciphertext, mac []byte) bool {
	return subtle.ConstantTimeCompare(computeMAC(password, ciphertext), mac) == 1
}

// zero overwrites b.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
