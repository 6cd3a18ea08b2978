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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-keymaster/pkg/adapters/kdf"
	"github.com/jeremyhahn/go-keymaster/pkg/keystore"
	"github.com/jeremyhahn/go-keymaster/pkg/storage"
	"github.com/jeremyhahn/go-keymaster/pkg/storage/memory"
)

var seed = bytes.Repeat([]byte{0x5e}, 64)

func engine(t *testing.T, backend storage.Backend) *keystore.Engine {
	t.Helper()
	e, err := keystore.NewEngine(&keystore.Config{
		Storage: backend,
		KDF:     &kdf.KDFParams{Algorithm: kdf.AlgorithmScrypt, CostLog2: 10, BlockSize: 8, Parallelism: 1, KeyLength: 16},
	})
	require.NoError(t, err)
	return e
}

func populate(t *testing.T, backend storage.Backend, n int) []string {
	t.Helper()
	e := engine(t, backend)
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := e.WriteKey("pw", seed)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestNewMigrator(t *testing.T) {
	b := memory.New()
	_, err := NewMigrator(nil, b, nil)
	assert.ErrorIs(t, err, ErrBackendRequired)
	_, err = NewMigrator(b, b, nil)
	assert.ErrorIs(t, err, ErrSameBackend)
	_, err = NewMigrator(b, memory.New(), nil)
	assert.NoError(t, err)
}

func TestMigrateAll(t *testing.T) {
	tests := []struct {
		name     string
		parallel int
	}{
		{"sequential", 1},
		{"parallel", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, dst := memory.New(), memory.New()
			ids := populate(t, src, 5)
			m, err := NewMigrator(src, dst, nil)
			require.NoError(t, err)

			res, err := m.MigrateAll(context.Background(), &Options{Parallel: tt.parallel})
			require.NoError(t, err)
			require.NoError(t, res.Err())
			assert.ElementsMatch(t, ids, res.Copied)
			assert.Empty(t, res.Skipped)

			// The copies decrypt under the original password.
			e := engine(t, dst)
			for _, id := range ids {
				got, err := e.GetKey("pw", id)
				require.NoError(t, err)
				assert.Equal(t, seed, got)
			}
			left, err := storage.ListRecords(src)
			require.NoError(t, err)
			assert.Len(t, left, 5, "source untouched without DeleteSource")
		})
	}
}

func TestMigrateAll_SkipAndOverwrite(t *testing.T) {
	src, dst := memory.New(), memory.New()
	ids := populate(t, src, 2)
	require.NoError(t, dst.Put(storage.RecordPath(ids[0]), []byte("stale"), nil))

	m, err := NewMigrator(src, dst, nil)
	require.NoError(t, err)

	res, err := m.MigrateAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0]}, res.Skipped)
	assert.Equal(t, []string{ids[1]}, res.Copied)
	stale, err := dst.Get(storage.RecordPath(ids[0]))
	require.NoError(t, err)
	assert.Equal(t, []byte("stale"), stale)

	res, err = m.MigrateAll(context.Background(), &Options{Overwrite: true, IDs: []string{ids[0]}})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0]}, res.Copied)
	fresh, err := dst.Get(storage.RecordPath(ids[0]))
	require.NoError(t, err)
	want, err := src.Get(storage.RecordPath(ids[0]))
	require.NoError(t, err)
	assert.Equal(t, want, fresh)
}

func TestMigrateAll_DryRun(t *testing.T) {
	src, dst := memory.New(), memory.New()
	ids := populate(t, src, 3)
	m, err := NewMigrator(src, dst, nil)
	require.NoError(t, err)

	res, err := m.MigrateAll(context.Background(), &Options{DryRun: true, DeleteSource: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, res.Planned)
	assert.Empty(t, res.Copied)

	got, err := storage.ListRecords(dst)
	require.NoError(t, err)
	assert.Empty(t, got)
	got, err = storage.ListRecords(src)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestMigrateAll_DeleteSource(t *testing.T) {
	src, dst := memory.New(), memory.New()
	ids := populate(t, src, 2)
	m, err := NewMigrator(src, dst, nil)
	require.NoError(t, err)

	res, err := m.MigrateAll(context.Background(), &Options{DeleteSource: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, res.Copied)

	left, err := storage.ListRecords(src)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestMigrateAll_InvalidRecord(t *testing.T) {
	src, dst := memory.New(), memory.New()
	good := populate(t, src, 1)[0]
	bad := "ffffffffffffffffffffffffffffffff"
	require.NoError(t, src.Put(storage.RecordPath(bad), []byte(`{"cipher":"rot13"}`), nil))

	m, err := NewMigrator(src, dst, nil)
	require.NoError(t, err)
	res, err := m.MigrateAll(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{good}, res.Copied)
	require.Contains(t, res.Failed, bad)
	assert.ErrorIs(t, res.Failed[bad], ErrInvalidRecord)
	assert.ErrorIs(t, res.Err(), ErrInvalidRecord)

	exists, err := dst.Exists(storage.RecordPath(bad))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMigrateAll_StopOnError(t *testing.T) {
	src, dst := memory.New(), memory.New()
	populate(t, src, 3)
	// Sorted first, so it fails before anything else is scheduled.
	bad := "00000000000000000000000000000000"
	require.NoError(t, src.Put(storage.RecordPath(bad), []byte("not json"), nil))

	m, err := NewMigrator(src, dst, nil)
	require.NoError(t, err)
	res, err := m.MigrateAll(context.Background(), &Options{StopOnError: true})
	require.NoError(t, err)
	assert.Len(t, res.Failed, 1)
	assert.Empty(t, res.Copied)
}

func TestMigrateAll_Cancelled(t *testing.T) {
	src, dst := memory.New(), memory.New()
	populate(t, src, 2)
	m, err := NewMigrator(src, dst, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := m.MigrateAll(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Copied)
}

type failingPut struct {
	storage.Backend
}

func (failingPut) Put(string, []byte, *storage.Options) error {
	return errors.New("disk full")
}

func TestMigrateRecord_WriteFailure(t *testing.T) {
	src := memory.New()
	id := populate(t, src, 1)[0]
	m, err := NewMigrator(src, failingPut{memory.New()}, nil)
	require.NoError(t, err)

	outcome, err := m.MigrateRecord(context.Background(), id, nil)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.ErrorContains(t, err, "disk full")

	outcome, err = m.MigrateRecord(context.Background(), "nothex", nil)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Error(t, err)
}
