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

package user

import (
	"errors"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

var (
	// ErrUserNotFound is returned when a user is not found. It is the passkey
	// sentinel so the orchestrator classifies it without translation.
	ErrUserNotFound = passkey.ErrUserNotFound

	// ErrUserAlreadyExists is returned when trying to create a user that already exists.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrLastAdmin is returned when trying to delete the last admin user.
	ErrLastAdmin = errors.New("cannot delete the last admin")

	// ErrStorageClosed is returned when the store has been closed.
	ErrStorageClosed = errors.New("storage closed")

	// ErrInvalidUsername is returned when a username is invalid.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrInvalidRole is returned when a role is invalid.
	ErrInvalidRole = errors.New("invalid role")
)
