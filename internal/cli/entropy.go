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
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func (a *app) entropyCommand() *cobra.Command {
	var bits int
	cmd := &cobra.Command{
		Use:   "entropy",
		Short: "Print fresh random bytes as hex",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, rt, err := a.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			buf, err := rt.KeyMaster.GenerateEntropy(cmd.Context(), bits)
			if err != nil {
				return err
			}
			out := hex.EncodeToString(buf)
			return a.printer(cmd).Print(map[string]any{"bits": bits, "entropy": out}, func(w io.Writer) {
				fmt.Fprintln(w, out)
			})
		},
	}
	cmd.Flags().IntVar(&bits, "bits", 256, "entropy size in bits (128 or 256)")
	return cmd
}

func (a *app) mnemonicCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mnemonic",
		Short: "BIP39 mnemonic phrases",
	}

	var bits int
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a new mnemonic phrase (not stored)",
		Long: `Generate a new BIP39 mnemonic. The phrase is printed and not stored;
import it with "keymaster seed write --mnemonic -".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, rt, err := a.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			phrase, err := rt.KeyMaster.NewMnemonic(cmd.Context(), bits)
			if err != nil {
				return err
			}
			words := len(strings.Fields(phrase))
			return a.printer(cmd).Print(map[string]any{"mnemonic": phrase, "words": words}, func(w io.Writer) {
				fmt.Fprintln(w, phrase)
			})
		},
	}
	newCmd.Flags().IntVar(&bits, "bits", 256, "entropy size in bits (128 gives 12 words, 256 gives 24)")
	cmd.AddCommand(newCmd)
	return cmd
}
