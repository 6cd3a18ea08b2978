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

package keymaster

import (
	"context"
	"errors"

	"github.com/jeremyhahn/go-keymaster/pkg/hd"
	"github.com/jeremyhahn/go-keymaster/pkg/keystore"
	"github.com/jeremyhahn/go-keymaster/pkg/signing"
)

// ErrInvalidMnemonic is returned for phrases that fail the BIP39 word list
// or checksum check.
var ErrInvalidMnemonic = errors.New("keymaster: invalid mnemonic")

// Error kinds used as metric labels and audit fields. They never carry
// caller data.
const (
	KindInvalidLength    = "invalid_length"
	KindInvalidPath      = "invalid_path"
	KindSeedLength       = "seed_length"
	KindUnsupportedCurve = "unsupported_curve"
	KindBadPassword      = "bad_password"
	KindNotFound         = "not_found"
	KindSerialize        = "serialize"
	KindStorage          = "storage"
	KindRandom           = "random"
	KindSigning          = "signing"
	KindMnemonic         = "invalid_mnemonic"
	KindCanceled         = "canceled"
	KindInternal         = "internal"
)

// ErrorKind classifies err into one of the Kind constants. nil maps to "".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, keystore.ErrInvalidLength):
		return KindInvalidLength
	case errors.Is(err, hd.ErrInvalidSeedLength):
		return KindSeedLength
	case errors.Is(err, hd.ErrDerivation):
		return KindInvalidPath
	case errors.Is(err, signing.ErrUnsupportedCurve):
		return KindUnsupportedCurve
	case errors.Is(err, keystore.ErrPasswordInvalid), errors.Is(err, keystore.ErrPasswordRequired):
		return KindBadPassword
	case errors.Is(err, keystore.ErrNotExist):
		return KindNotFound
	case errors.Is(err, keystore.ErrSerialize),
		errors.Is(err, keystore.ErrUnsupportedCipher),
		errors.Is(err, keystore.ErrUnsupportedKDF),
		errors.Is(err, keystore.ErrKDF):
		return KindSerialize
	case errors.Is(err, keystore.ErrStorage):
		return KindStorage
	case errors.Is(err, keystore.ErrRandom):
		return KindRandom
	case errors.Is(err, signing.ErrSigningFailed):
		return KindSigning
	case errors.Is(err, ErrInvalidMnemonic):
		return KindMnemonic
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}
