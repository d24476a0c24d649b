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
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	"github.com/spf13/cobra"
)

func newAdminCmd(cfg *Config) *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Passkey data maintenance across all users",
	}

	adminCmd.AddCommand(&cobra.Command{
		Use:   "check-all",
		Short: "Report stored credential lists that need repair",
		Long: `Inspect every user's stored credential list and report entries
whose credential id would be re-encoded or discarded. Nothing is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBulk(cmd, cfg, false)
		},
	})

	adminCmd.AddCommand(&cobra.Command{
		Use:   "fix-all",
		Short: "Repair every user's stored credential list",
		Long: `Heal every user's stored credential list and persist the result.
Failures for individual users are reported and do not stop the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBulk(cmd, cfg, true)
		},
	})

	return adminCmd
}

func runBulk(cmd *cobra.Command, cfg *Config, repair bool) error {
	ctx := cmd.Context()
	_, comps, err := cfg.openComponents(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close() }()

	var result *passkey.BulkResult
	if repair {
		result, err = comps.Service.FixAll(ctx)
	} else {
		result, err = comps.Service.CheckAll(ctx)
	}
	if err != nil {
		return err
	}

	return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).PrintBulkResult(result, repair)
}
