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

// Package cli implements the keymaster command line tool.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-keymaster/internal/config"
	"github.com/jeremyhahn/go-keymaster/internal/password"
	"github.com/jeremyhahn/go-keymaster/pkg/adapters/logger"
	"github.com/jeremyhahn/go-keymaster/pkg/logging"
	"github.com/jeremyhahn/go-keymaster/pkg/signing"
)

// app carries state shared by every subcommand.
type app struct {
	v            *viper.Viper
	configFile   string
	passwordFile string

	// passwords is swapped in tests.
	passwords func(file string) *password.Reader
}

// NewRootCommand returns the keymaster command tree.
func NewRootCommand() *cobra.Command {
	a := &app{
		v:         config.NewViper(),
		passwords: password.New,
	}

	root := &cobra.Command{
		Use:   "keymaster",
		Short: "Password-protected HD seed custody and signing",
		Long: `keymaster stores BIP32 seeds encrypted under a password (scrypt +
AES-128-CTR + Keccak-256 MAC) and signs messages with keys derived
from them. Seeds and private keys never leave the process.

Storage backends: memory, file, sqlite, vault, azurekv`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (YAML)")
	flags.String("storage", "file", "storage backend (memory, file, sqlite, vault, azurekv)")
	flags.String("storage-path", "./keystore", "storage path for file and sqlite backends")
	flags.StringP("output", "o", "text", "output format (text, json)")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.StringVar(&a.passwordFile, "password-file", "",
		"read the keystore password from this file (default: $"+password.EnvVar+" or prompt)")

	for key, flag := range map[string]string{
		"storage.backend": "storage",
		"storage.path":    "storage-path",
		"logging.level":   "log-level",
		"output":          "output",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		a.entropyCommand(),
		a.mnemonicCommand(),
		a.seedCommand(),
		a.signCommand(),
		a.pubkeyCommand(),
		a.verifyCommand(),
		a.keysCommand(),
		a.configCommand(),
		a.healthCommand(),
		versionCommand(a),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		format, _ := cmd.PersistentFlags().GetString("output")
		_ = NewPrinter(format, os.Stderr).PrintError(err)
		return 1
	}
	return 0
}

// load resolves the configuration from file, environment and flags.
func (a *app) load() (*config.Config, error) {
	return config.Load(a.v, a.configFile)
}

// runtime opens the keystore described by the configuration.
func (a *app) runtime(opts ...signing.Secp256k1Option) (*config.Config, *config.Runtime, error) {
	cfg, err := a.load()
	if err != nil {
		return nil, nil, err
	}
	log, err := a.logger(cfg)
	if err != nil {
		return nil, nil, err
	}
	// The audit trail of a one-shot command only matters in the log.
	cfg.Audit.Enabled = false
	rt, err := cfg.Build(log, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cfg, rt, nil
}

func (a *app) logger(cfg *config.Config) (logger.Logger, error) {
	log, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return nil, err
	}
	return log.With(logger.String("component", "cli")), nil
}

func (a *app) printer(cmd *cobra.Command) *Printer {
	return NewPrinter(a.v.GetString("output"), cmd.OutOrStdout())
}

func (a *app) password(confirm bool) (string, error) {
	pw, err := a.passwords(a.passwordFile).Read(confirm)
	if err != nil {
		return "", fmt.Errorf("keystore password: %w", err)
	}
	return pw, nil
}
