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
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func (a *app) seedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Manage stored seeds",
	}

	var hexSeed, phrase, passphraseFile string
	write := &cobra.Command{
		Use:   "write",
		Short: "Encrypt and store a 64-byte seed",
		Long: `Encrypt a seed under the keystore password and print its store ID.

The seed comes from --hex (128 hex characters) or from a BIP39 phrase via
--mnemonic. Pass "-" to either flag to read the value from stdin instead
of the command line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (hexSeed == "") == (phrase == "") {
				return errors.New("exactly one of --hex or --mnemonic is required")
			}
			var err error
			if hexSeed == "-" {
				hexSeed, err = readLine(cmd.InOrStdin())
			} else if phrase == "-" {
				phrase, err = readLine(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}

			passphrase := ""
			if passphraseFile != "" {
				if passphrase, err = readPassphrase(passphraseFile); err != nil {
					return err
				}
			}

			_, rt, err := a.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			pw, err := a.password(true)
			if err != nil {
				return err
			}

			var id string
			if hexSeed != "" {
				seed, derr := hex.DecodeString(strings.TrimPrefix(hexSeed, "0x"))
				if derr != nil {
					return fmt.Errorf("--hex: %w", derr)
				}
				id, err = rt.KeyMaster.WriteSeed(cmd.Context(), pw, seed)
				clear(seed)
			} else {
				id, err = rt.KeyMaster.ImportMnemonic(cmd.Context(), pw, phrase, passphrase)
			}
			if err != nil {
				return err
			}
			return a.printer(cmd).Print(map[string]string{"key_id": id}, func(w io.Writer) {
				fmt.Fprintln(w, id)
			})
		},
	}
	write.Flags().StringVar(&hexSeed, "hex", "", `seed as hex, or "-" for stdin`)
	write.Flags().StringVar(&phrase, "mnemonic", "", `BIP39 phrase, or "-" for stdin`)
	write.Flags().StringVar(&passphraseFile, "passphrase-file", "", "file holding the optional BIP39 passphrase")
	cmd.AddCommand(write)
	return cmd
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("nothing on stdin")
	}
	return line, nil
}

func readPassphrase(path string) (string, error) {
	b, err := readFileLimited(path, 1024)
	if err != nil {
		return "", fmt.Errorf("passphrase: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}
