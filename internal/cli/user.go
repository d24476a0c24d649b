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
	"fmt"

	"github.com/jeremyhahn/go-passkey/pkg/user"
	"github.com/spf13/cobra"
)

func newUserCmd(cfg *Config) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
		Long: `Commands for managing user accounts in the configured store.

Users register passkeys themselves through the HTTP API. The first
administrator must be created here.`,
	}

	createCmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a user account",
		Example: `  passkeyctl user create alice --display-name "Alice Smith"
  passkeyctl user create root --role admin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			displayName, _ := cmd.Flags().GetString("display-name")
			role, _ := cmd.Flags().GetString("role")
			if !user.IsValidRole(user.Role(role)) {
				return fmt.Errorf("%w: %s", user.ErrInvalidRole, role)
			}

			ctx := cmd.Context()
			_, comps, err := cfg.openComponents(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = comps.Close() }()

			u, err := comps.Users.Create(ctx, args[0], displayName, user.Role(role))
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
			return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).PrintUser(u)
		},
	}
	createCmd.Flags().String("display-name", "", "human readable name")
	createCmd.Flags().String("role", string(user.RoleUser), "role (admin or user)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, comps, err := cfg.openComponents(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = comps.Close() }()

			users, err := comps.Users.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list users: %w", err)
			}
			return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).PrintUserList(users)
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete a user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, comps, err := cfg.openComponents(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = comps.Close() }()

			u, err := comps.Users.GetByUsername(ctx, args[0])
			if err != nil {
				return err
			}
			if err := comps.Users.Delete(ctx, u.ID); err != nil {
				return fmt.Errorf("failed to delete user: %w", err)
			}
			return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).
				PrintSuccess(fmt.Sprintf("User %s deleted", u.Username))
		},
	}

	userCmd.AddCommand(createCmd, listCmd, deleteCmd)
	return userCmd
}
