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
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the passkeyctl command tree.
func NewRootCmd() *cobra.Command {
	cfg := NewConfig()

	rootCmd := &cobra.Command{
		Use:   "passkeyctl",
		Short: "go-passkey CLI - passkey server and maintenance tool",
		Long: `passkeyctl runs the passkey HTTP server and performs offline
maintenance against the configured user store.

Settings are read from --config (or PASSKEY_CONFIG); every service
option can also be overridden with PASSKEY_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Resolve()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to the YAML configuration file")
	flags.StringP("output", "o", string(OutputFormatText), "output format (text, json, yaml)")
	flags.BoolP("verbose", "v", false, "verbose output")
	// Lookup cannot fail for flags defined above.
	_ = cfg.BindFlags(flags)

	rootCmd.AddCommand(newVersionCmd(cfg))
	rootCmd.AddCommand(newServeCmd(cfg))
	rootCmd.AddCommand(newAdminCmd(cfg))
	rootCmd.AddCommand(newUserCmd(cfg))

	return rootCmd
}

// Execute runs the root command and reports a failure on stderr.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		format, _ := cmd.PersistentFlags().GetString("output")
		_ = NewPrinter(format, os.Stderr).PrintError(err)
	}
	return err
}
