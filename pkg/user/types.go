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

// Package user persists the user records that passkeys are registered to.
// Store implements passkey.UserStore over any storage.Backend.
package user

import (
	"encoding/json"
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// Role represents a user's role for access control.
type Role string

const (
	// RoleAdmin may run maintenance across every user.
	RoleAdmin Role = "admin"
	// RoleUser manages only their own passkeys.
	RoleUser Role = "user"
)

// IsValidRole reports whether role is known.
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleUser:
		return true
	}
	return false
}

// User is the persisted user record.
type User struct {
	// ID is the unique identifier for the user and the WebAuthn user handle.
	ID string `json:"id"`

	// Username is the user's username (unique, lower case).
	Username string `json:"username"`

	// DisplayName is the human-readable name for display.
	DisplayName string `json:"display_name,omitempty"`

	// Role defines the user's access level.
	Role Role `json:"role"`

	// Enabled indicates if the user account is active.
	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Passkey state. The credential list is kept as raw JSON so records
	// written by older releases round-trip untouched until they are healed.
	PasskeyEnabled     bool            `json:"passkeyEnabled"`
	PasskeyCredentials json.RawMessage `json:"passkeyCredentials,omitempty"`
	PendingChallenge   string          `json:"pendingChallenge,omitempty"`
}

// Passkey returns the passkey view of the record.
func (u *User) Passkey() *passkey.User {
	return &passkey.User{
		ID:                 u.ID,
		Username:           u.Username,
		Role:               string(u.Role),
		PasskeyEnabled:     u.PasskeyEnabled,
		PasskeyCredentials: append(json.RawMessage(nil), u.PasskeyCredentials...),
		PendingChallenge:   u.PendingChallenge,
	}
}

// apply merges update into the record through its passkey view.
func (u *User) apply(update passkey.UserUpdate) error {
	view := u.Passkey()
	if err := update.Apply(view); err != nil {
		return err
	}
	u.PasskeyEnabled = view.PasskeyEnabled
	u.PasskeyCredentials = view.PasskeyCredentials
	u.PendingChallenge = view.PendingChallenge
	return nil
}

// IsAdmin checks if the user has admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
