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

	"github.com/go-webauthn/webauthn/protocol"
)

// CredentialResponse holds the fields shared by registration and
// authentication responses submitted by a client.
type CredentialResponse struct {
	ID                      string          `json:"id,omitempty"`
	RawID                   string          `json:"rawId,omitempty"`
	Type                    string          `json:"type,omitempty"`
	AuthenticatorAttachment string          `json:"authenticatorAttachment,omitempty"`
	ClientExtensionResults  json.RawMessage `json:"clientExtensionResults,omitempty"`
}

// AttestationPayload is the authenticator output of a registration ceremony.
type AttestationPayload struct {
	ClientDataJSON    string   `json:"clientDataJSON" validate:"required"`
	AttestationObject string   `json:"attestationObject" validate:"required"`
	Transports        []string `json:"transports,omitempty"`
}

// AssertionPayload is the authenticator output of an authentication ceremony.
type AssertionPayload struct {
	ClientDataJSON    string `json:"clientDataJSON" validate:"required"`
	AuthenticatorData string `json:"authenticatorData" validate:"required"`
	Signature         string `json:"signature" validate:"required"`
	UserHandle        string `json:"userHandle,omitempty"`
}

// RegistrationResponse is a client's answer to registration options.
type RegistrationResponse struct {
	CredentialResponse
	Response AttestationPayload `json:"response"`
}

// AuthenticationResponse is a client's answer to authentication options.
type AuthenticationResponse struct {
	CredentialResponse
	Response AssertionPayload `json:"response"`
}

// FormatRegistration canonicalizes a registration response. The input is
// not modified.
func FormatRegistration(r RegistrationResponse) (RegistrationResponse, error) {
	cr, err := formatCredential(r.CredentialResponse)
	if err != nil {
		return RegistrationResponse{}, WrapError("FormatRegistration", err)
	}
	r.CredentialResponse = cr
	return r, nil
}

// FormatAuthentication canonicalizes an authentication response. The input
// is not modified.
func FormatAuthentication(r AuthenticationResponse) (AuthenticationResponse, error) {
	cr, err := formatCredential(r.CredentialResponse)
	if err != nil {
		return AuthenticationResponse{}, WrapError("FormatAuthentication", err)
	}
	r.CredentialResponse = cr
	return r, nil
}

// formatCredential sets id to the canonical form of id or rawId, fills rawId
// when absent and defaults the type to public-key.
func formatCredential(c CredentialResponse) (CredentialResponse, error) {
	id := c.ID
	if id == "" {
		id = c.RawID
	}
	if id == "" {
		return CredentialResponse{}, ErrMissingCredentialID
	}

	normalized := NormalizeString(id)
	if normalized == "" {
		return CredentialResponse{}, ErrInvalidCredentialID
	}
	c.ID = normalized

	if c.RawID == "" {
		c.RawID = normalized
	} else {
		c.RawID = NormalizeString(c.RawID)
	}

	if c.Type == "" {
		c.Type = string(protocol.PublicKeyCredentialType)
	}
	return c, nil
}
