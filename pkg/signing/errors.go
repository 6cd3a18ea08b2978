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

package signing

import "errors"

var (
	// ErrUnsupportedCurve indicates the curve has no signing implementation
	ErrUnsupportedCurve = errors.New("signing: unsupported curve")

	// ErrSigningFailed indicates the signing primitive failed or rejected the key
	ErrSigningFailed = errors.New("signing: operation failed")

	// ErrKeystoreRequired indicates a nil keystore was provided
	ErrKeystoreRequired = errors.New("signing: keystore is required")
)
