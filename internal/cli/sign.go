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
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-keymaster/pkg/signing"
	"github.com/jeremyhahn/go-keymaster/pkg/validation"
)

type keyFlags struct {
	keyID string
	path  string
	curve string
}

func (f *keyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.keyID, "key-id", "", "store ID of the seed (required)")
	cmd.Flags().StringVar(&f.path, "path", "m/44'/60'/0'/0/0", "BIP32 derivation path")
	cmd.Flags().StringVar(&f.curve, "curve", signing.Secp256k1.String(), "signature curve")
	_ = cmd.MarkFlagRequired("key-id")
}

func (f *keyFlags) request(data []byte) (signing.SignRequest, error) {
	if err := validation.ValidateStoreID(f.keyID); err != nil {
		return signing.SignRequest{}, err
	}
	if err := validation.ValidateDerivationPath(f.path); err != nil {
		return signing.SignRequest{}, err
	}
	curve, err := signing.ParseCurve(f.curve)
	if err != nil {
		return signing.SignRequest{}, err
	}
	return signing.NewSignRequest(f.keyID, f.path, data, curve), nil
}

func (a *app) signCommand() *cobra.Command {
	var kf keyFlags
	var message, messageHex string
	var recovery bool
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a message with a derived key",
		Long: `Sign a message with the key at --path under the seed --key-id.
The message is hashed with SHA-256 and signed with RFC 6979 nonces; the
result is the low-S r and s as hex.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := messageBytes(message, messageHex)
			if err != nil {
				return err
			}
			req, err := kf.request(data)
			if err != nil {
				return err
			}

			var opts []signing.Secp256k1Option
			if recovery {
				opts = append(opts, signing.WithRecoveryID())
			}
			_, rt, err := a.runtime(opts...)
			if err != nil {
				return err
			}
			defer rt.Close()

			pw, err := a.password(false)
			if err != nil {
				return err
			}
			sig, err := rt.KeyMaster.Sign(cmd.Context(), req, pw)
			if err != nil {
				return err
			}
			return a.printer(cmd).Print(sig, func(w io.Writer) {
				fmt.Fprintf(w, "r: %s\ns: %s\n", sig.R, sig.S)
				if sig.V != nil {
					fmt.Fprintf(w, "v: %d\n", *sig.V)
				}
			})
		},
	}
	kf.register(cmd)
	cmd.Flags().StringVar(&message, "message", "", "message to sign (UTF-8)")
	cmd.Flags().StringVar(&messageHex, "message-hex", "", "message to sign as hex")
	cmd.Flags().BoolVar(&recovery, "recovery", false, "include the recovery id v")
	return cmd
}

func (a *app) pubkeyCommand() *cobra.Command {
	var kf keyFlags
	cmd := &cobra.Command{
		Use:   "pubkey",
		Short: "Print the compressed public key at a derivation path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := kf.request(nil)
			if err != nil {
				return err
			}
			_, rt, err := a.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			pw, err := a.password(false)
			if err != nil {
				return err
			}
			pub, err := rt.KeyMaster.PublicKey(cmd.Context(), req, pw)
			if err != nil {
				return err
			}
			out := hex.EncodeToString(pub)
			return a.printer(cmd).Print(map[string]string{
				"key_id":     req.KeyID,
				"path":       req.Path,
				"curve":      req.Curve.String(),
				"public_key": out,
			}, func(w io.Writer) {
				fmt.Fprintln(w, out)
			})
		},
	}
	kf.register(cmd)
	return cmd
}

func messageBytes(message, messageHex string) ([]byte, error) {
	switch {
	case message != "" && messageHex != "":
		return nil, errors.New("--message and --message-hex are mutually exclusive")
	case messageHex != "":
		b, err := hex.DecodeString(strings.TrimPrefix(messageHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("--message-hex: %w", err)
		}
		return b, nil
	default:
		return []byte(message), nil
	}
}
