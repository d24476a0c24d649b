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
	"errors"
	"fmt"
)

// Kind classifies a passkey failure so callers can branch on it without
// inspecting error text.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidRequest
	KindInvalidUser
	KindNoUser
	KindUserNotFound
	KindOptionsGenerationFailed
	KindNoCredentials
	KindDuplicateCredential
	KindMissingCredentialID
	KindInvalidCredentialID
	KindCredentialNotFound
	KindVerificationFailed
	KindChallengeMismatch
	KindMalformedCredentialList
	KindStorage
)

var kindNames = map[Kind]string{
	KindUnknown:                 "unknown",
	KindInvalidRequest:          "invalid_request",
	KindInvalidUser:             "invalid_user",
	KindNoUser:                  "no_user",
	KindUserNotFound:            "user_not_found",
	KindOptionsGenerationFailed: "options_generation_failed",
	KindNoCredentials:           "no_credentials",
	KindDuplicateCredential:     "duplicate_credential",
	KindMissingCredentialID:     "missing_credential_id",
	KindInvalidCredentialID:     "invalid_credential_id",
	KindCredentialNotFound:      "credential_not_found",
	KindVerificationFailed:      "verification_failed",
	KindChallengeMismatch:       "challenge_mismatch",
	KindMalformedCredentialList: "malformed_credential_list",
	KindStorage:                 "storage",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinel errors for passkey operations. Each maps to exactly one Kind.
var (
	// ErrInvalidRequest is returned when a request is missing required fields.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidUser is returned when a user record lacks an id or username.
	ErrInvalidUser = errors.New("user is missing id or username")

	// ErrNoUser is returned when a ceremony is started without a user.
	ErrNoUser = errors.New("no user supplied")

	// ErrUserNotFound is returned when a user cannot be found.
	ErrUserNotFound = errors.New("user not found")

	// ErrOptionsGenerationFailed is returned when ceremony options could not be produced.
	ErrOptionsGenerationFailed = errors.New("failed to generate ceremony options")

	// ErrNoCredentials is returned when a user has no usable credentials.
	ErrNoCredentials = errors.New("user has no registered passkeys")

	// ErrDuplicateCredential is returned when a credential id is already registered for the user.
	ErrDuplicateCredential = errors.New("passkey already registered")

	// ErrMissingCredentialID is returned when a response carries neither id nor rawId.
	ErrMissingCredentialID = errors.New("response is missing a credential id")

	// ErrInvalidCredentialID is returned when a credential id cannot be normalized.
	ErrInvalidCredentialID = errors.New("invalid credential id")

	// ErrCredentialNotFound is returned when no stored credential matches.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrVerificationFailed is returned when the ceremony library rejects a response.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrClonedAuthenticator is returned when the signature counter did not advance.
	ErrClonedAuthenticator = errors.New("signature counter did not advance")

	// ErrChallengeMismatch is returned when no challenge is pending or the pending
	// challenge was superseded by a newer ceremony.
	ErrChallengeMismatch = errors.New("challenge mismatch")

	// ErrMalformedCredentialList is returned by a Ceremony when a stored credential
	// id cannot be handed to the underlying library.
	ErrMalformedCredentialList = errors.New("malformed credential list")

	// ErrStorage is returned when the user store fails.
	ErrStorage = errors.New("storage failure")
)

var sentinelKinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidRequest, KindInvalidRequest},
	{ErrInvalidUser, KindInvalidUser},
	{ErrNoUser, KindNoUser},
	{ErrUserNotFound, KindUserNotFound},
	{ErrOptionsGenerationFailed, KindOptionsGenerationFailed},
	{ErrNoCredentials, KindNoCredentials},
	{ErrDuplicateCredential, KindDuplicateCredential},
	{ErrMissingCredentialID, KindMissingCredentialID},
	{ErrInvalidCredentialID, KindInvalidCredentialID},
	{ErrCredentialNotFound, KindCredentialNotFound},
	{ErrVerificationFailed, KindVerificationFailed},
	{ErrClonedAuthenticator, KindVerificationFailed},
	{ErrChallengeMismatch, KindChallengeMismatch},
	{ErrMalformedCredentialList, KindMalformedCredentialList},
	{ErrStorage, KindStorage},
}

// Error wraps a failure with the operation that produced it and its kind.
type Error struct {
	Op   string // Operation that failed
	Kind Kind   // Classification of the failure
	Err  error  // Underlying error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates an Error for op. The kind is derived from err.
func NewError(op string, err error) error {
	return &Error{
		Op:   op,
		Kind: KindOf(err),
		Err:  err,
	}
}

// WrapError wraps err with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// KindOf returns the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var pe *Error
	if errors.As(err, &pe) && pe.Kind != KindUnknown {
		return pe.Kind
	}
	for _, sk := range sentinelKinds {
		if errors.Is(err, sk.err) {
			return sk.kind
		}
	}
	return KindUnknown
}

// IsNotFound returns true if err reports a missing user or credential.
func IsNotFound(err error) bool {
	switch KindOf(err) {
	case KindUserNotFound, KindCredentialNotFound:
		return true
	}
	return false
}

// IsVerificationFailed returns true if the ceremony library rejected a response.
func IsVerificationFailed(err error) bool {
	return errors.Is(err, ErrVerificationFailed) || errors.Is(err, ErrClonedAuthenticator)
}

// IsMalformedCredentialList returns true if a stored credential list could not
// be handed to the ceremony library.
func IsMalformedCredentialList(err error) bool {
	return errors.Is(err, ErrMalformedCredentialList)
}
