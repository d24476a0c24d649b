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
	"encoding/json"
	"fmt"
	"time"
)

// Credential device types recorded at registration.
const (
	DeviceTypeSingle = "singleDevice"
	DeviceTypeMulti  = "multiDevice"
)

// Credential is a registered authenticator as persisted on the user record.
type Credential struct {
	// ID mirrors CredentialID for records written by this package. Older
	// records may carry a different value.
	ID string `json:"id"`

	// Name is the user-supplied label.
	Name string `json:"name"`

	// CredentialID is the canonical base64url credential id.
	CredentialID string `json:"credentialID"`

	// CredentialPublicKey is the COSE public key in canonical base64url.
	CredentialPublicKey string `json:"credentialPublicKey"`

	// Counter is the last accepted signature counter.
	Counter uint32 `json:"counter"`

	CreatedAt time.Time `json:"createdAt"`

	IsPasskey            bool   `json:"isPasskey"`
	CredentialDeviceType string `json:"credentialDeviceType,omitempty"`
	CredentialBackedUp   bool   `json:"credentialBackedUp"`

	// Transports reported by the authenticator at registration.
	Transports []string `json:"transports,omitempty"`

	// AAGUID of the authenticator model in canonical base64url.
	AAGUID string `json:"aaguid,omitempty"`
}

// BackupEligible reports whether the credential may be synced between devices.
func (c Credential) BackupEligible() bool {
	return c.CredentialDeviceType == DeviceTypeMulti
}

// User is the subset of a user record the passkey subsystem reads and writes.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`

	// PasskeyEnabled is true iff the credential list is non-empty.
	PasskeyEnabled bool `json:"passkeyEnabled"`

	// PasskeyCredentials is the stored credential list exactly as persisted.
	// It may hold legacy shapes until Heal has been applied.
	PasskeyCredentials json.RawMessage `json:"passkeyCredentials,omitempty"`

	// PendingChallenge is the challenge of the single in-flight ceremony.
	PendingChallenge string `json:"pendingChallenge,omitempty"`
}

// UserUpdate is an atomic partial update of a user record. Nil fields are
// left untouched.
type UserUpdate struct {
	// Credentials replaces the stored credential list and recomputes
	// PasskeyEnabled.
	Credentials *[]Credential

	// PendingChallenge replaces the pending challenge. An empty value clears it.
	PendingChallenge *string

	// IfPendingChallenge makes the update conditional on the stored pending
	// challenge still being this value.
	IfPendingChallenge *string
}

// WithCredentials returns a copy of u that replaces the credential list.
func (u UserUpdate) WithCredentials(creds []Credential) UserUpdate {
	if creds == nil {
		creds = []Credential{}
	}
	u.Credentials = &creds
	return u
}

// WithPendingChallenge returns a copy of u that sets the pending challenge.
func (u UserUpdate) WithPendingChallenge(challenge string) UserUpdate {
	u.PendingChallenge = &challenge
	return u
}

// IfChallenge returns a copy of u guarded on the current pending challenge.
func (u UserUpdate) IfChallenge(challenge string) UserUpdate {
	u.IfPendingChallenge = &challenge
	return u
}

// Apply merges the update into user. It returns ErrChallengeMismatch without
// modifying user when the challenge guard does not hold. Stores call this
// while holding their per-user lock.
func (u UserUpdate) Apply(user *User) error {
	if u.IfPendingChallenge != nil && user.PendingChallenge != *u.IfPendingChallenge {
		return ErrChallengeMismatch
	}

	if u.Credentials != nil {
		raw, err := json.Marshal(*u.Credentials)
		if err != nil {
			return fmt.Errorf("failed to encode credentials: %w", err)
		}
		user.PasskeyCredentials = raw
		user.PasskeyEnabled = len(*u.Credentials) > 0
	}

	if u.PendingChallenge != nil {
		user.PendingChallenge = *u.PendingChallenge
	}

	return nil
}

// Stats summarizes a user's stored credentials.
type Stats struct {
	TotalCredentials    int `json:"totalCredentials"`
	PasskeyCredentials  int `json:"passkeyCredentials"`
	HardwareCredentials int `json:"hardwareCredentials"`
	ValidCredentials    int `json:"validCredentials"`
	InvalidCredentials  int `json:"invalidCredentials"`
}

// CredentialDetail is one entry of a credential id report.
type CredentialDetail struct {
	Index                int    `json:"index"`
	CredentialID         string `json:"credentialId"`
	Name                 string `json:"name"`
	IsPasskey            bool   `json:"isPasskey"`
	CredentialDeviceType string `json:"credentialDeviceType,omitempty"`
	CredentialBackedUp   bool   `json:"credentialBackedUp"`
	CredentialIDInfo
}

// CredentialIDReport describes every entry of a user's stored list.
type CredentialIDReport struct {
	HasPasskey         bool               `json:"hasPasskey"`
	TotalCredentials   int                `json:"totalCredentials"`
	ValidCredentials   int                `json:"validCredentials"`
	InvalidCredentials int                `json:"invalidCredentials"`
	PasskeyCredentials int                `json:"passkeyCredentials"`
	NeedsFix           bool               `json:"needsFix"`
	Details            []CredentialDetail `json:"credentialDetails"`
}

// UserCheck is the outcome of healing one user during a bulk pass.
type UserCheck struct {
	UserID   string     `json:"userId"`
	Username string     `json:"username"`
	Report   HealReport `json:"report"`
	Error    string     `json:"error,omitempty"`
}

// BulkResult aggregates a bulk check or repair over all users.
type BulkResult struct {
	TotalUsers            int         `json:"totalUsers"`
	UsersWithPasskey      int         `json:"usersWithPasskey"`
	FixedUsers            int         `json:"fixedUsers"`
	TotalFixedCredentials int         `json:"totalFixedCredentials"`
	TotalDiscarded        int         `json:"totalDiscarded"`
	Results               []UserCheck `json:"results"`
	Failures              []UserCheck `json:"failures,omitempty"`
}
