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

// Package backup writes encrypted keystore records to a portable gzip'd
// JSON archive and restores them. Records are carried exactly as stored,
// so an archive is only as sensitive as the records themselves: it
// holds ciphertext, never a seed, and restoring needs no password.
package backup

import (
	"errors"
	"time"
)

const (
	// FormatVersion is the archive layout version written by Export.
	FormatVersion = 1

	// CompressionGzip is the only compression Export writes.
	CompressionGzip = "gzip"

	// MaxArchiveSize bounds the decompressed archive Import will read.
	MaxArchiveSize = 64 << 20
)

var (
	ErrUnsupportedVersion = errors.New("backup: unsupported archive version")
	ErrChecksumMismatch   = errors.New("backup: checksum mismatch")
	ErrInvalidArchive     = errors.New("backup: invalid archive")
	ErrInvalidRecord      = errors.New("backup: invalid record")
	ErrArchiveTooLarge    = errors.New("backup: archive too large")
)

// Metadata describes an archive.
type Metadata struct {
	ID          string    `json:"id"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	Source      string    `json:"source,omitempty"`
	Compression string    `json:"compression"`
	KeyCount    int       `json:"key_count"`
	KeyIDs      []string  `json:"key_ids"`

	// Checksum is the hex SHA-256 over the records in store ID order.
	Checksum string `json:"checksum"`
}

// ExportOptions selects what Export writes.
type ExportOptions struct {
	// IDs restricts the archive to these store IDs. Empty means all.
	IDs []string

	// Source labels the archive with the backend it came from.
	Source string
}

// ImportOptions controls Import.
type ImportOptions struct {
	// Overwrite replaces records already present in the destination.
	Overwrite bool

	// DryRun verifies the archive without writing.
	DryRun bool
}

// ImportResult reports what Import did.
type ImportResult struct {
	Metadata *Metadata
	Restored []string
	Skipped  []string
}
