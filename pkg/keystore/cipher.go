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
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// xorCTR encrypts or decrypts in with AES-128-CTR. A new stream is built on
// every call so the keystream always starts at the IV.
func xorCTR(key, iv, in []byte) ([]byte, error) {
	if len(key) != AESKeyLength {
		return nil, fmt.Errorf("%w: cipher key must be %d bytes", ErrUnsupportedCipher, AESKeyLength)
	}
	if len(iv) != IVLength {
		return nil, fmt.Errorf("%w: iv must be %d bytes", ErrSerialize, IVLength)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedCipher, err)
	}
	out := make([]byte, len(in))
	cipher.NewCTR(block, iv).XORKeyStream(out, in)
	return out, nil
}
