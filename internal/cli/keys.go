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

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-keymaster/pkg/validation"
)

func (a *app) keysCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage stored seed records",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List store IDs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, rt, err := a.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			ids, err := rt.Engine.List()
			if err != nil {
				return err
			}
			return a.printer(cmd).Print(map[string]any{"backend": cfg.Storage.Backend, "keys": ids}, func(w io.Writer) {
				if len(ids) == 0 {
					fmt.Fprintln(w, "No keys found")
					return
				}
				for _, id := range ids {
					fmt.Fprintln(w, id)
				}
			})
		},
	})

	var force bool
	del := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete a stored seed",
		Long:  "Delete a stored seed. Without a backup the seed and every key derived from it are lost.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := validation.ValidateStoreID(id); err != nil {
				return err
			}
			if !force {
				return errors.New("refusing to delete without --force")
			}
			_, rt, err := a.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Engine.Delete(id); err != nil {
				return err
			}
			return a.printer(cmd).Print(map[string]string{"deleted": id}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted %s\n", id)
			})
		},
	}
	del.Flags().BoolVar(&force, "force", false, "confirm deletion")
	cmd.AddCommand(del, a.migrateCommand(), a.exportCommand(), a.importCommand())
	return cmd
}

func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			out, err := cfg.Redacted().YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	return cmd
}

func readFileLimited(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path) // #nosec G304 -- path supplied by the operator
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, limit))
}
