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

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jeremyhahn/go-keymaster/internal/config"
	"github.com/jeremyhahn/go-keymaster/internal/server"
	"github.com/jeremyhahn/go-keymaster/pkg/adapters/logger"
	"github.com/jeremyhahn/go-keymaster/pkg/logging"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (default: built-in defaults plus KEYMASTER_* env)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("keymaster server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	if envConfig := os.Getenv("KEYMASTER_CONFIG"); envConfig != "" && *configPath == "" {
		*configPath = envConfig
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		slog.Error("Failed to configure logging", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("Starting keymaster server",
		logger.String("config", *configPath),
		logger.String("version", version),
		logger.String("storage", cfg.Storage.Backend))

	srv, err := server.New(cfg, log, version)
	if err != nil {
		log.Error("Failed to create server", logger.Error(err))
		os.Exit(1)
	}

	ctx, stop := server.SignalContext()
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Error("Server error", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Server stopped successfully")
}
