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
	"github.com/jeremyhahn/go-keymaster/pkg/verification"
)

func (a *app) verifyCommand() *cobra.Command {
	var kf keyFlags
	var pubHex, message, messageHex, r, s string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a signature",
		Long: `Verify r and s over a message. The public key is taken from
--public-key, or derived from --key-id and --path (which needs the
keystore password). Exits non-zero when the signature does not match.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := messageBytes(message, messageHex)
			if err != nil {
				return err
			}
			curve, err := signing.ParseCurve(kf.curve)
			if err != nil {
				return err
			}
			var pub []byte
			switch {
			case pubHex != "" && kf.keyID != "":
				return errors.New("--public-key and --key-id are mutually exclusive")
			case pubHex != "":
				if pub, err = hex.DecodeString(strings.TrimPrefix(pubHex, "0x")); err != nil {
					return fmt.Errorf("--public-key: %w", err)
				}
			case kf.keyID != "":
				if pub, err = a.derivePublicKey(cmd, &kf); err != nil {
					return err
				}
			default:
				return errors.New("one of --public-key or --key-id is required")
			}

			err = verification.Verify(curve, pub, data, &signing.Signature{R: r, S: s})
			valid := err == nil
			if !valid && !errors.Is(err, verification.ErrSignatureVerification) && !errors.Is(err, verification.ErrNonCanonical) {
				return err
			}
			if perr := a.printer(cmd).Print(map[string]any{
				"valid":      valid,
				"public_key": hex.EncodeToString(pub),
			}, func(w io.Writer) {
				if valid {
					fmt.Fprintln(w, "Signature OK")
				}
			}); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&kf.keyID, "key-id", "", "store ID of the seed that signed")
	cmd.Flags().StringVar(&kf.path, "path", "m/44'/60'/0'/0/0", "BIP32 derivation path (with --key-id)")
	cmd.Flags().StringVar(&kf.curve, "curve", signing.Secp256k1.String(), "signature curve")
	cmd.Flags().StringVar(&pubHex, "public-key", "", "public key as hex")
	cmd.Flags().StringVar(&message, "message", "", "signed message (UTF-8)")
	cmd.Flags().StringVar(&messageHex, "message-hex", "", "signed message as hex")
	cmd.Flags().StringVar(&r, "r", "", "signature r as hex (required)")
	cmd.Flags().StringVar(&s, "s", "", "signature s as hex (required)")
	_ = cmd.MarkFlagRequired("r")
	_ = cmd.MarkFlagRequired("s")
	return cmd
}

func (a *app) derivePublicKey(cmd *cobra.Command, kf *keyFlags) ([]byte, error) {
	req, err := kf.request(nil)
	if err != nil {
		return nil, err
	}
	_, rt, err := a.runtime()
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	pw, err := a.password(false)
	if err != nil {
		return nil, err
	}
	return rt.KeyMaster.PublicKey(cmd.Context(), req, pw)
}
