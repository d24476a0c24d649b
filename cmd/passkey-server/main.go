// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
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

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/internal/server"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "/etc/passkey/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("go-passkey server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	if envConfig := os.Getenv("PASSKEY_CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	slog.Info("Starting passkey server",
		"config", *configPath,
		"version", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("Configuration loaded successfully",
		"rp_id", cfg.Passkey.RPID,
		"storage", cfg.Storage.Backend,
		"addr", cfg.Server.Addr())

	srv, err := server.New(cfg)
	if err != nil {
		slog.Error("Failed to create server", slog.Any("error", err))
		os.Exit(1)
	}

	shutdownCtx, reloadCh := server.SetupSignalHandler()
	go func() {
		for range reloadCh {
			next, err := config.Load(*configPath)
			if err != nil {
				slog.Error("Failed to reload configuration", slog.Any("error", err))
				continue
			}
			if err := srv.Reload(next); err != nil {
				slog.Error("Failed to apply configuration", slog.Any("error", err))
			}
		}
	}()

	if err := srv.Run(shutdownCtx); err != nil {
		slog.Error("Server error", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
