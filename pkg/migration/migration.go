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

// Package migration copies encrypted keystore records between storage
// backends. Records are moved as opaque ciphertext: nothing is decrypted
// and no password is needed. Each record is parsed before it is written
// and read back afterwards so a damaged copy is never reported as a
// success.
package migration

import (
	"errors"
	"sort"
	"time"
)

var (
	// ErrSameBackend is returned when source and destination are the same value.
	ErrSameBackend = errors.New("migration: source and destination are the same backend")

	// ErrBackendRequired is returned when either backend is nil.
	ErrBackendRequired = errors.New("migration: source and destination are required")

	// ErrInvalidRecord is returned for source records that do not parse.
	ErrInvalidRecord = errors.New("migration: invalid record")

	// ErrVerifyFailed is returned when the copy read back differs from the source.
	ErrVerifyFailed = errors.New("migration: verification failed")
)

// Outcome is what happened to one record.
type Outcome string

const (
	OutcomeCopied  Outcome = "copied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"

	// OutcomePlanned is reported for records a dry run would copy.
	OutcomePlanned Outcome = "planned"
)

// Options controls a migration.
type Options struct {
	// IDs restricts the migration to these store IDs. Empty means all.
	IDs []string

	// DryRun validates and reports without writing anything.
	DryRun bool

	// Overwrite replaces records that already exist in the destination.
	// Without it they are skipped.
	Overwrite bool

	// DeleteSource removes each record from the source once its copy
	// has been verified.
	DeleteSource bool

	// StopOnError stops scheduling new records after the first failure.
	StopOnError bool

	// Parallel is the number of concurrent copies. Defaults to 1.
	Parallel int
}

// Result summarizes a migration.
type Result struct {
	Copied  []string
	Skipped []string
	Planned []string
	Failed  map[string]error

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// Err joins every per-record failure, or returns nil.
func (r *Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	ids := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	errs := make([]error, 0, len(ids))
	for _, id := range ids {
		errs = append(errs, r.Failed[id])
	}
	return errors.Join(errs...)
}

func (r *Result) record(id string, outcome Outcome, err error) {
	switch outcome {
	case OutcomeCopied:
		r.Copied = append(r.Copied, id)
	case OutcomeSkipped:
		r.Skipped = append(r.Skipped, id)
	case OutcomePlanned:
		r.Planned = append(r.Planned, id)
	case OutcomeFailed:
		r.Failed[id] = err
	}
}

func (r *Result) sort() {
	sort.Strings(r.Copied)
	sort.Strings(r.Skipped)
	sort.Strings(r.Planned)
}
