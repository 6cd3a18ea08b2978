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

package migration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jeremyhahn/go-keymaster/pkg/adapters/kdf"
	"github.com/jeremyhahn/go-keymaster/pkg/adapters/logger"
	"github.com/jeremyhahn/go-keymaster/pkg/keystore"
	"github.com/jeremyhahn/go-keymaster/pkg/storage"
	"github.com/jeremyhahn/go-keymaster/pkg/validation"
)

// Migrator copies records from one backend to another.
type Migrator struct {
	source   storage.Backend
	dest     storage.Backend
	registry *kdf.Registry
	log      logger.Logger
}

// NewMigrator returns a migrator from source to dest. The caller keeps
// ownership of both backends.
func NewMigrator(source, dest storage.Backend, log logger.Logger) (*Migrator, error) {
	if source == nil || dest == nil {
		return nil, ErrBackendRequired
	}
	if source == dest {
		return nil, ErrSameBackend
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Migrator{source: source, dest: dest, registry: kdf.NewRegistry(), log: log}, nil
}

// MigrateRecord copies the record with store ID id.
func (m *Migrator) MigrateRecord(ctx context.Context, id string, opts *Options) (Outcome, error) {
	if opts == nil {
		opts = &Options{}
	}
	if err := ctx.Err(); err != nil {
		return OutcomeFailed, err
	}
	if err := validation.ValidateStoreID(id); err != nil {
		return OutcomeFailed, err
	}
	key := storage.RecordPath(id)

	data, err := m.source.Get(key)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("migration: read %s: %w", id, err)
	}
	if _, err := keystore.ParseRecord(data, m.registry); err != nil {
		return OutcomeFailed, fmt.Errorf("%w: %s: %w", ErrInvalidRecord, id, err)
	}

	exists, err := m.dest.Exists(key)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("migration: check %s: %w", id, err)
	}
	if exists && !opts.Overwrite {
		return OutcomeSkipped, nil
	}
	if opts.DryRun {
		return OutcomePlanned, nil
	}

	if err := m.dest.Put(key, data, storage.DefaultOptions()); err != nil {
		return OutcomeFailed, fmt.Errorf("migration: write %s: %w", id, err)
	}
	copied, err := m.dest.Get(key)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("%w: %s: %w", ErrVerifyFailed, id, err)
	}
	if !bytes.Equal(copied, data) {
		return OutcomeFailed, fmt.Errorf("%w: %s: content differs", ErrVerifyFailed, id)
	}

	if opts.DeleteSource {
		if err := m.source.Delete(key); err != nil {
			return OutcomeFailed, fmt.Errorf("migration: delete source %s: %w", id, err)
		}
	}
	m.log.Debug("record migrated", logger.String("key_id", id))
	return OutcomeCopied, nil
}

// MigrateAll copies every selected record. Per-record failures land in the
// result; the returned error reports a source that cannot be listed or a
// cancelled ctx, in which case the partial result is still returned.
func (m *Migrator) MigrateAll(ctx context.Context, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	ids := opts.IDs
	if len(ids) == 0 {
		var err error
		if ids, err = storage.ListRecords(m.source); err != nil {
			return nil, fmt.Errorf("migration: list source: %w", err)
		}
	}

	result := &Result{StartTime: time.Now(), Failed: make(map[string]error)}
	parallel := opts.Parallel
	if parallel < 1 {
		parallel = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, parallel)
	)
	for _, id := range ids {
		select {
		case sem <- struct{}{}:
		case <-runCtx.Done():
		}
		if runCtx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := m.MigrateRecord(runCtx, id, opts)
			if errors.Is(err, context.Canceled) && runCtx.Err() != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			result.record(id, outcome, err)
			if err != nil {
				m.log.Warn("record migration failed", logger.String("key_id", id), logger.Error(err))
				if opts.StopOnError {
					cancel()
				}
			}
		}(id)
	}
	wg.Wait()

	result.sort()
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	m.log.Info("migration finished",
		logger.Int("copied", len(result.Copied)),
		logger.Int("skipped", len(result.Skipped)),
		logger.Int("planned", len(result.Planned)),
		logger.Int("failed", len(result.Failed)),
		logger.Bool("dry_run", opts.DryRun))
	return result, ctx.Err()
}
