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

import "errors"

var (
	// ErrInvalidLength is returned when entropy of an unsupported size is requested
	ErrInvalidLength = errors.New("keystore: invalid entropy length")

	// ErrRandom is returned when the random source fails
	ErrRandom = errors.New("keystore: random source failure")

	// ErrNotExist is returned when no record exists for a store ID
	ErrNotExist = errors.New("keystore: key does not exist")

	// ErrPasswordInvalid is returned when the integrity tag does not match
	ErrPasswordInvalid = errors.New("keystore: invalid password")

	// ErrPasswordRequired is returned when the password is empty
	ErrPasswordRequired = errors.New("keystore: password required")

	// ErrSerialize is returned when a record cannot be encoded or decoded
	ErrSerialize = errors.New("keystore: serialization failure")

	// ErrStorage is returned when the backing store fails
	ErrStorage = errors.New("keystore: storage failure")

	// ErrInvalidStoreID is returned for store IDs that are not 32 hex characters
	ErrInvalidStoreID = errors.New("keystore: invalid store id")

	// ErrUnsupportedKDF is returned for records naming an unknown KDF
	ErrUnsupportedKDF = errors.New("keystore: unsupported kdf")

	// ErrUnsupportedCipher is returned for records naming an unknown cipher
	ErrUnsupportedCipher = errors.New("keystore: unsupported cipher")

	// ErrKDF is returned when key derivation fails
	ErrKDF = errors.New("keystore: key derivation failed")

	// ErrEmptyKey is returned when WriteKey is called with no key material
	ErrEmptyKey = errors.New("keystore: empty key material")
)
