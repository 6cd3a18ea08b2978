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

package backup

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-keymaster/pkg/adapters/kdf"
	"github.com/jeremyhahn/go-keymaster/pkg/keystore"
	"github.com/jeremyhahn/go-keymaster/pkg/storage"
	"github.com/jeremyhahn/go-keymaster/pkg/validation"
)

// archive is the decompressed file layout.
type archive struct {
	Metadata *Metadata                  `json:"metadata"`
	Records  map[string]json.RawMessage `json:"records"`
}

// Export writes the selected records from backend to w and returns the
// archive metadata. Every record is validated before anything is written.
func Export(ctx context.Context, backend storage.Backend, w io.Writer, opts *ExportOptions) (*Metadata, error) {
	if opts == nil {
		opts = &ExportOptions{}
	}
	ids := append([]string(nil), opts.IDs...)
	if len(ids) == 0 {
		var err error
		if ids, err = storage.ListRecords(backend); err != nil {
			return nil, fmt.Errorf("backup: list records: %w", err)
		}
	}
	sort.Strings(ids)
	ids = slices.Compact(ids)

	registry := kdf.NewRegistry()
	records := make(map[string]json.RawMessage, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := validation.ValidateStoreID(id); err != nil {
			return nil, err
		}
		data, err := backend.Get(storage.RecordPath(id))
		if err != nil {
			return nil, fmt.Errorf("backup: read %s: %w", id, err)
		}
		if _, err := keystore.ParseRecord(data, registry); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRecord, id, err)
		}
		// The encoder compacts raw messages, so hash what will be written.
		var compact bytes.Buffer
		if err := json.Compact(&compact, data); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRecord, id, err)
		}
		records[id] = compact.Bytes()
	}

	meta := &Metadata{
		ID:          uuid.New().String(),
		Version:     FormatVersion,
		CreatedAt:   time.Now().UTC(),
		Source:      opts.Source,
		Compression: CompressionGzip,
		KeyCount:    len(ids),
		KeyIDs:      ids,
		Checksum:    checksum(ids, records),
	}

	zw := gzip.NewWriter(w)
	zw.Comment = "keymaster backup " + meta.ID
	if err := json.NewEncoder(zw).Encode(&archive{Metadata: meta, Records: records}); err != nil {
		return nil, fmt.Errorf("backup: encode: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("backup: compress: %w", err)
	}
	return meta, nil
}

// Inspect reads and verifies an archive without touching any backend.
func Inspect(r io.Reader) (*Metadata, error) {
	a, err := read(r)
	if err != nil {
		return nil, err
	}
	return a.Metadata, nil
}

// Import verifies the archive read from r and restores its records into
// backend. Verification covers the whole archive before the first write.
func Import(ctx context.Context, r io.Reader, backend storage.Backend, opts *ImportOptions) (*ImportResult, error) {
	if opts == nil {
		opts = &ImportOptions{}
	}
	a, err := read(r)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Metadata: a.Metadata}
	for _, id := range a.Metadata.KeyIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		key := storage.RecordPath(id)
		exists, err := backend.Exists(key)
		if err != nil {
			return result, fmt.Errorf("backup: check %s: %w", id, err)
		}
		if exists && !opts.Overwrite {
			result.Skipped = append(result.Skipped, id)
			continue
		}
		if !opts.DryRun {
			if err := backend.Put(key, a.Records[id], storage.DefaultOptions()); err != nil {
				return result, fmt.Errorf("backup: write %s: %w", id, err)
			}
		}
		result.Restored = append(result.Restored, id)
	}
	return result, nil
}

func read(r io.Reader) (*archive, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(io.LimitReader(zr, MaxArchiveSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	if len(data) > MaxArchiveSize {
		return nil, ErrArchiveTooLarge
	}

	var a archive
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	if a.Metadata == nil {
		return nil, fmt.Errorf("%w: missing metadata", ErrInvalidArchive)
	}
	if a.Metadata.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, a.Metadata.Version)
	}
	if len(a.Metadata.KeyIDs) != len(a.Records) || a.Metadata.KeyCount != len(a.Records) {
		return nil, fmt.Errorf("%w: key count does not match records", ErrInvalidArchive)
	}

	registry := kdf.NewRegistry()
	for _, id := range a.Metadata.KeyIDs {
		if err := validation.ValidateStoreID(id); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
		}
		rec, ok := a.Records[id]
		if !ok {
			return nil, fmt.Errorf("%w: record %s missing", ErrInvalidArchive, id)
		}
		if _, err := keystore.ParseRecord(rec, registry); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRecord, id, err)
		}
	}
	if got := checksum(a.Metadata.KeyIDs, a.Records); got != a.Metadata.Checksum {
		return nil, ErrChecksumMismatch
	}
	return &a, nil
}

// checksum hashes id and record pairs in the given order.
func checksum(ids []string, records map[string]json.RawMessage) string {
	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
		h.Write(records[id])
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
