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
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	"github.com/jeremyhahn/go-passkey/pkg/user"
	"gopkg.in/yaml.v3"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
	OutputFormatYAML OutputFormat = "yaml"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// userView is the serialized form of a user record. Raw credential JSON is
// summarized as a count.
type userView struct {
	ID              string `json:"id" yaml:"id"`
	Username        string `json:"username" yaml:"username"`
	DisplayName     string `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Role            string `json:"role" yaml:"role"`
	PasskeyEnabled  bool   `json:"passkey_enabled" yaml:"passkey_enabled"`
	CredentialCount int    `json:"credential_count" yaml:"credential_count"`
	CreatedAt       string `json:"created_at" yaml:"created_at"`
}

func toUserView(u *user.User) userView {
	var creds []json.RawMessage
	if err := json.Unmarshal(u.PasskeyCredentials, &creds); err != nil {
		creds = nil
	}
	return userView{
		ID:              u.ID,
		Username:        u.Username,
		DisplayName:     u.DisplayName,
		Role:            string(u.Role),
		PasskeyEnabled:  u.PasskeyEnabled,
		CredentialCount: len(creds),
		CreatedAt:       u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// PrintUser prints a single user
func (p *Printer) PrintUser(u *user.User) error {
	view := toUserView(u)
	switch p.format {
	case OutputFormatJSON, OutputFormatYAML:
		return p.print(view)
	default:
		fmt.Fprintf(p.writer, "ID:           %s\n", view.ID)
		fmt.Fprintf(p.writer, "Username:     %s\n", view.Username)
		if view.DisplayName != "" {
			fmt.Fprintf(p.writer, "Display Name: %s\n", view.DisplayName)
		}
		fmt.Fprintf(p.writer, "Role:         %s\n", view.Role)
		fmt.Fprintf(p.writer, "Passkeys:     %d\n", view.CredentialCount)
		fmt.Fprintf(p.writer, "Created:      %s\n", view.CreatedAt)
		return nil
	}
}

// PrintUserList prints users as a table in text mode
func (p *Printer) PrintUserList(users []*user.User) error {
	views := make([]userView, len(users))
	for i, u := range users {
		views[i] = toUserView(u)
	}

	switch p.format {
	case OutputFormatJSON, OutputFormatYAML:
		return p.print(map[string]interface{}{
			"users": views,
			"total": len(views),
		})
	default:
		if len(views) == 0 {
			fmt.Fprintln(p.writer, "No users found")
			return nil
		}
		fmt.Fprintf(p.writer, "%-36s %-24s %-6s %-8s\n", "ID", "USERNAME", "ROLE", "PASSKEYS")
		fmt.Fprintln(p.writer, strings.Repeat("-", 77))
		for _, v := range views {
			fmt.Fprintf(p.writer, "%-36s %-24s %-6s %-8d\n", v.ID, v.Username, v.Role, v.CredentialCount)
		}
		fmt.Fprintf(p.writer, "\nTotal: %d\n", len(views))
		return nil
	}
}

// PrintBulkResult prints the outcome of check-all or fix-all
func (p *Printer) PrintBulkResult(result *passkey.BulkResult, repaired bool) error {
	switch p.format {
	case OutputFormatJSON, OutputFormatYAML:
		return p.print(result)
	default:
		fmt.Fprintf(p.writer, "Users:              %d\n", result.TotalUsers)
		fmt.Fprintf(p.writer, "Users with passkey: %d\n", result.UsersWithPasskey)
		if repaired {
			fmt.Fprintf(p.writer, "Users fixed:        %d\n", result.FixedUsers)
			fmt.Fprintf(p.writer, "Credentials fixed:  %d\n", result.TotalFixedCredentials)
		} else {
			fmt.Fprintf(p.writer, "Users needing fix:  %d\n", result.FixedUsers)
		}
		fmt.Fprintf(p.writer, "Discarded entries:  %d\n", result.TotalDiscarded)

		for _, r := range result.Results {
			if !r.Report.Dirty() {
				continue
			}
			fmt.Fprintf(p.writer, "  - %s: %d rewritten, %d discarded\n",
				r.Username, r.Report.Rewritten, r.Report.Discarded)
		}
		for _, f := range result.Failures {
			fmt.Fprintf(p.writer, "  ! %s: %s\n", f.Username, f.Error)
		}
		return nil
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON, OutputFormatYAML:
		return p.print(map[string]interface{}{
			"success": true,
			"message": message,
		})
	default:
		_, err := fmt.Fprintln(p.writer, message)
		return err
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON, OutputFormatYAML:
		return p.print(map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
	default:
		_, werr := fmt.Fprintf(p.writer, "Error: %v\n", err)
		return werr
	}
}

// PrintJSON prints data as indented JSON regardless of the format.
func (p *Printer) PrintJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (p *Printer) print(data interface{}) error {
	if p.format == OutputFormatYAML {
		encoder := yaml.NewEncoder(p.writer)
		encoder.SetIndent(2)
		if err := encoder.Encode(data); err != nil {
			return err
		}
		return encoder.Close()
	}
	return p.PrintJSON(data)
}
