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

package http

import (
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// RoleAdmin is the role required by the bulk repair endpoints.
const RoleAdmin = "admin"

// RegisterStartRequest is the request body for starting registration.
type RegisterStartRequest struct {
	// CredentialName labels the new passkey (required).
	CredentialName string `json:"credentialName" validate:"required,max=128"`
}

// RegisterFinishRequest is the request body for completing registration.
type RegisterFinishRequest struct {
	CredentialName string                        `json:"credentialName" validate:"required,max=128"`
	Response       *passkey.RegistrationResponse `json:"response" validate:"required"`
}

// AuthenticateStartRequest is the request body for starting authentication.
type AuthenticateStartRequest struct {
	Username string `json:"username" validate:"required"`
}

// AuthenticateFinishRequest is the request body for completing authentication.
type AuthenticateFinishRequest struct {
	Username string                          `json:"username" validate:"required"`
	Response *passkey.AuthenticationResponse `json:"response" validate:"required"`
}

// OptionsResponse wraps ceremony options returned by the start endpoints.
type OptionsResponse struct {
	Options interface{} `json:"options"`
}

// RegisterFinishResponse is returned after a successful registration.
type RegisterFinishResponse struct {
	Verified   bool                `json:"verified"`
	Credential *passkey.Credential `json:"credential"`
}

// UserSummary identifies the authenticated user.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// AuthenticateFinishResponse is returned after a successful authentication.
type AuthenticateFinishResponse struct {
	Success bool        `json:"success"`
	Token   string      `json:"token"`
	User    UserSummary `json:"user"`
}

// SuccessResponse is returned by endpoints without a payload.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// CheckReport is a dry-run heal report for one user.
type CheckReport struct {
	passkey.HealReport
	NeedsRepair bool `json:"needsRepair"`
}

// DataCheckResponse is returned by GET /data/check.
type DataCheckResponse struct {
	Success bool        `json:"success"`
	Data    CheckReport `json:"data"`
}

// DataRepairResponse is returned by POST /data/repair.
type DataRepairResponse struct {
	Success                  bool               `json:"success"`
	Message                  string             `json:"message"`
	RepairedCredentialsCount int                `json:"repairedCredentialsCount"`
	Report                   passkey.HealReport `json:"report"`
}

// CredentialIDFixResponse is returned by POST /credential-id/fix.
type CredentialIDFixResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	FixedCredentials int    `json:"fixedCredentials"`
	TotalCredentials int    `json:"totalCredentials"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	HasPasskey bool           `json:"hasPasskey"`
	Stats      *passkey.Stats `json:"stats"`
}

// CheckAllResponse is returned by GET /admin/data/check-all.
type CheckAllResponse struct {
	Success bool                `json:"success"`
	Data    *passkey.BulkResult `json:"data"`
}

// BulkRepairResponse is returned by the admin repair endpoints.
type BulkRepairResponse struct {
	Success               bool                `json:"success"`
	Message               string              `json:"message"`
	TotalUsers            int                 `json:"totalUsers"`
	UsersWithPasskey      int                 `json:"usersWithPasskey"`
	FixedUsers            int                 `json:"fixedUsers"`
	TotalFixedCredentials int                 `json:"totalFixedCredentials"`
	TotalDiscarded        int                 `json:"totalDiscarded"`
	Failures              []passkey.UserCheck `json:"failures"`
}

// ErrorResponse is the response format for errors.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse that do not come from a
// passkey.Kind.
const (
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeUnauthorized   = "unauthorized"
	ErrorCodeForbidden      = "forbidden"
	ErrorCodeInternalError  = "internal_error"
)
