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

package storage

import (
	"strings"
)

const (
	// RecordPrefix is the namespace encrypted keystore records live under.
	RecordPrefix = "keys/"

	// RecordSuffix is appended to every record key.
	RecordSuffix = ".json"
)

// RecordPath returns the storage key for the record with the given store ID.
// The path follows the convention: keys/{id}.json
func RecordPath(id string) string {
	return RecordPrefix + id + RecordSuffix
}

// ListRecords returns the store IDs of every record held by the backend.
// Keys outside the record namespace are ignored.
func ListRecords(backend Backend) ([]string, error) {
	keys, err := backend.List(RecordPrefix)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if !strings.HasSuffix(k, RecordSuffix) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(k, RecordPrefix), RecordSuffix)
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
