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

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-keymaster/internal/config"
	"github.com/jeremyhahn/go-keymaster/pkg/adapters/backup"
	"github.com/jeremyhahn/go-keymaster/pkg/migration"
)

// Records are copied as stored: nothing here decrypts, so none of these
// commands ask for a password.

func (a *app) migrateCommand() *cobra.Command {
	var (
		toBackend, toPath string
		opts              migration.Options
	)
	cmd := &cobra.Command{
		Use:   "migrate [key-id...]",
		Short: "Copy encrypted records to another storage backend",
		Long: `Copy encrypted records from the configured backend to --to-backend.
Each copy is read back and compared before it counts as done. Vault and
Azure Key Vault destinations take their settings from the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			log, err := a.logger(cfg)
			if err != nil {
				return err
			}

			dstCfg := cfg.Storage
			dstCfg.Backend, dstCfg.Path = toBackend, toPath
			if dstCfg.Backend == config.BackendMemory {
				return errors.New("--to-backend memory would discard every record on exit")
			}
			if strings.EqualFold(dstCfg.Backend, cfg.Storage.Backend) && dstCfg.Path == cfg.Storage.Path {
				return migration.ErrSameBackend
			}

			src, err := cfg.Storage.OpenStorage()
			if err != nil {
				return err
			}
			defer src.Close()
			dst, err := dstCfg.OpenStorage()
			if err != nil {
				return err
			}
			defer dst.Close()

			m, err := migration.NewMigrator(src, dst, log)
			if err != nil {
				return err
			}
			opts.IDs = args
			res, err := m.MigrateAll(cmd.Context(), &opts)
			if err != nil {
				return err
			}
			if perr := a.printer(cmd).Print(migrationSummary(res), func(w io.Writer) {
				fmt.Fprintf(w, "Copied: %d  Skipped: %d  Planned: %d  Failed: %d  (%s)\n",
					len(res.Copied), len(res.Skipped), len(res.Planned), len(res.Failed), res.Duration.Round(time.Millisecond))
				for _, id := range res.Skipped {
					fmt.Fprintf(w, "skipped %s (exists; use --overwrite)\n", id)
				}
			}); perr != nil {
				return perr
			}
			return res.Err()
		},
	}
	f := cmd.Flags()
	f.StringVar(&toBackend, "to-backend", "", "destination backend (file, sqlite, vault, azurekv)")
	f.StringVar(&toPath, "to-path", "", "destination path for file and sqlite")
	f.BoolVar(&opts.DryRun, "dry-run", false, "validate and report without writing")
	f.BoolVar(&opts.Overwrite, "overwrite", false, "replace records that exist in the destination")
	f.BoolVar(&opts.DeleteSource, "delete-source", false, "delete each source record after a verified copy")
	f.BoolVar(&opts.StopOnError, "stop-on-error", false, "stop at the first failed record")
	f.IntVar(&opts.Parallel, "parallel", 1, "concurrent copies")
	_ = cmd.MarkFlagRequired("to-backend")
	return cmd
}

func migrationSummary(res *migration.Result) map[string]any {
	failed := make(map[string]string, len(res.Failed))
	for id, err := range res.Failed {
		failed[id] = err.Error()
	}
	return map[string]any{
		"copied":      nonNil(res.Copied),
		"skipped":     nonNil(res.Skipped),
		"planned":     nonNil(res.Planned),
		"failed":      failed,
		"duration_ms": res.Duration.Milliseconds(),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (a *app) exportCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export [key-id...]",
		Short: "Write encrypted records to a backup archive",
		Long: `Write encrypted records to a gzip archive. The archive holds the
records exactly as stored; the seeds inside stay encrypted under their
passwords.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			src, err := cfg.Storage.OpenStorage()
			if err != nil {
				return err
			}
			defer src.Close()

			var w io.Writer = cmd.OutOrStdout()
			var file *os.File
			if out != "-" {
				// #nosec G304 -- path supplied by the operator
				file, err = os.OpenFile(filepath.Clean(out), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
				if err != nil {
					return err
				}
				w = file
			}
			meta, err := backup.Export(cmd.Context(), src, w, &backup.ExportOptions{IDs: args, Source: cfg.Storage.Backend})
			if file != nil {
				if cerr := file.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					_ = os.Remove(file.Name())
				}
			}
			if err != nil || out == "-" {
				return err
			}
			return a.printer(cmd).Print(meta, func(w io.Writer) {
				fmt.Fprintf(w, "Exported %d records to %s (backup %s)\n", meta.KeyCount, out, meta.ID)
			})
		},
	}
	cmd.Flags().StringVar(&out, "file", "", "archive to create (\"-\" for stdout)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (a *app) importCommand() *cobra.Command {
	var in string
	var opts backup.ImportOptions
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Restore encrypted records from a backup archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			var r io.Reader = cmd.InOrStdin()
			if in != "-" {
				f, err := os.Open(filepath.Clean(in)) // #nosec G304 -- path supplied by the operator
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			dst, err := cfg.Storage.OpenStorage()
			if err != nil {
				return err
			}
			defer dst.Close()

			res, err := backup.Import(cmd.Context(), r, dst, &opts)
			if err != nil {
				return err
			}
			return a.printer(cmd).Print(map[string]any{
				"backup":   res.Metadata.ID,
				"restored": nonNil(res.Restored),
				"skipped":  nonNil(res.Skipped),
				"dry_run":  opts.DryRun,
			}, func(w io.Writer) {
				verb := "Restored"
				if opts.DryRun {
					verb = "Would restore"
				}
				fmt.Fprintf(w, "%s %d records, skipped %d (backup %s)\n", verb, len(res.Restored), len(res.Skipped), res.Metadata.ID)
			})
		},
	}
	cmd.Flags().StringVar(&in, "file", "", "archive to read (\"-\" for stdin)")
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "replace records that already exist")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "validate the archive without writing")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
