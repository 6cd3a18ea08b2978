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

// Package validation checks untrusted input at the edges of go-keymaster.
// The REST handlers and the CLI run every store ID, derivation path and
// backend name through here before it reaches the keystore.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrInvalidStoreID is returned for store IDs that are not 32 lowercase hex characters
	ErrInvalidStoreID = errors.New("validation: invalid store id")

	// ErrInvalidPath is returned for derivation paths with bad syntax
	ErrInvalidPath = errors.New("validation: invalid derivation path")

	// ErrInvalidBackend is returned for backend names with bad syntax
	ErrInvalidBackend = errors.New("validation: invalid backend name")
)

const (
	// StoreIDLength is the string length of a hex encoded 16-byte store ID.
	StoreIDLength = 32

	// MaxPathLength bounds derivation path strings. 255 levels is the BIP32
	// depth limit, each level needs at most 12 characters.
	MaxPathLength = 2 + 255*12
)

var (
	storeIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

	// backendPattern matches safe backend names (lowercase alphanumeric + hyphens)
	backendPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)
)

// ValidateStoreID validates a keystore record identifier.
func ValidateStoreID(id string) error {
	if len(id) != StoreIDLength {
		return fmt.Errorf("%w: expected %d characters, got %d", ErrInvalidStoreID, StoreIDLength, len(id))
	}
	if !storeIDPattern.MatchString(id) {
		return fmt.Errorf("%w: must be lowercase hex", ErrInvalidStoreID)
	}
	return nil
}

// ValidateDerivationPath performs a cheap syntactic check of a BIP32 path
// string. Index ranges are checked by the hd package when it parses the path.
func ValidateDerivationPath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	if len(path) > MaxPathLength {
		return fmt.Errorf("%w: too long (max %d characters)", ErrInvalidPath, MaxPathLength)
	}
	if path != "m" && !strings.HasPrefix(path, "m/") {
		return fmt.Errorf("%w: must start with m/", ErrInvalidPath)
	}
	for _, r := range path {
		switch {
		case r >= '0' && r <= '9':
		case r == 'm', r == '/', r == '\'', r == 'h', r == 'H':
		default:
			return fmt.Errorf("%w: unexpected character %q", ErrInvalidPath, r)
		}
	}
	return nil
}

// ValidateBackendName validates a storage backend name.
// Backend names must be simple lowercase identifiers.
func ValidateBackendName(backend string) error {
	if backend == "" {
		return fmt.Errorf("%w: empty", ErrInvalidBackend)
	}

	if len(backend) > 64 {
		return fmt.Errorf("%w: too long (max 64 characters)", ErrInvalidBackend)
	}

	// Only allow lowercase alphanumeric and hyphens
	if !backendPattern.MatchString(backend) {
		return fmt.Errorf("%w: allowed characters are a-z, 0-9 and -", ErrInvalidBackend)
	}

	return nil
}

// MaxLogValueLength caps a caller-supplied value in a log line, in bytes.
const MaxLogValueLength = 256

// SanitizeForLog strips control characters from a caller-supplied value and
// caps it at MaxLogValueLength, so request paths and headers cannot forge or
// flood log lines.
func SanitizeForLog(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	if len(s) <= MaxLogValueLength {
		return s
	}
	cut := MaxLogValueLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...[truncated]"
}
