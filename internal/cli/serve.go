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

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the passkey HTTP server",
		Long: `Run the passkey HTTP server until SIGINT or SIGTERM.

SIGHUP re-reads the configuration file and applies the log level.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svcCfg, err := cfg.LoadServiceConfig()
			if err != nil {
				return err
			}

			srv, err := server.New(svcCfg)
			if err != nil {
				return err
			}

			ctx, reloadCh := server.SetupSignalHandler()
			go watchReload(ctx, srv, cfg.ConfigFile, reloadCh)

			return srv.Run(ctx)
		},
	}
}

// watchReload applies configuration reloads until ctx is done.
func watchReload(ctx context.Context, srv *server.Server, path string, reloadCh <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-reloadCh:
			next, err := config.Load(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
				continue
			}
			if err := srv.Reload(next); err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			}
		}
	}
}
