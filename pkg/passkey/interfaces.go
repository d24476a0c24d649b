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

package passkey

import (
	"context"

	"github.com/go-webauthn/webauthn/protocol"
)

// UserStore is the persistence layer for user records. The passkey
// subsystem only reads and writes the fields of User.
type UserStore interface {
	// GetUserByID retrieves a user by id.
	// Returns ErrUserNotFound if the user does not exist.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	// Returns ErrUserNotFound if the user does not exist.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// UpdateUser atomically merges update into the stored record.
	// Returns ErrChallengeMismatch if the update's challenge guard fails.
	UpdateUser(ctx context.Context, id string, update UserUpdate) error

	// ListUsers returns every user.
	ListUsers(ctx context.Context) ([]*User, error)
}

// TokenIssuer issues a session token after a successful authentication.
type TokenIssuer interface {
	IssueToken(ctx context.Context, user *User) (string, error)
}

// RegistrationOptionsRequest describes the user a registration is for.
type RegistrationOptionsRequest struct {
	UserID      string
	Username    string
	DisplayName string

	// ExcludeCredentialIDs are canonical ids the authenticator must not
	// register again.
	ExcludeCredentialIDs []string
}

// RegistrationVerification is the input to registration verification.
type RegistrationVerification struct {
	UserID            string
	Username          string
	Response          RegistrationResponse
	ExpectedChallenge string
	ExpectedOrigin    string
}

// RegistrationInfo is produced by a verified registration.
type RegistrationInfo struct {
	Verified     bool
	CredentialID []byte
	PublicKey    []byte
	Counter      uint32
	DeviceType   string
	BackedUp     bool
	Transports   []string
	AAGUID       []byte
}

// AuthenticationOptionsRequest describes the credentials a login may use.
type AuthenticationOptionsRequest struct {
	UserID             string
	AllowCredentialIDs []string
}

// AuthenticationVerification is the input to authentication verification.
type AuthenticationVerification struct {
	UserID            string
	Username          string
	Response          AuthenticationResponse
	ExpectedChallenge string
	ExpectedOrigin    string
	Credential        Credential
}

// AuthenticationInfo is produced by a verified authentication.
type AuthenticationInfo struct {
	Verified   bool
	NewCounter uint32
	BackedUp   bool
}

// Ceremony binds the orchestrator to a WebAuthn library. Implementations
// return ErrMalformedCredentialList when a credential id in an allow or
// exclude list cannot be used, and errors wrapping ErrVerificationFailed when
// a response is rejected.
type Ceremony interface {
	RegistrationOptions(ctx context.Context, req RegistrationOptionsRequest) (*protocol.PublicKeyCredentialCreationOptions, error)
	VerifyRegistration(ctx context.Context, req RegistrationVerification) (*RegistrationInfo, error)
	AuthenticationOptions(ctx context.Context, req AuthenticationOptionsRequest) (*protocol.PublicKeyCredentialRequestOptions, error)
	VerifyAuthentication(ctx context.Context, req AuthenticationVerification) (*AuthenticationInfo, error)
}
