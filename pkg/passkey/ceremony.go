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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// WebAuthnCeremony implements Ceremony with go-webauthn.
type WebAuthnCeremony struct {
	config   *Config
	webauthn *webauthn.WebAuthn
}

// NewWebAuthnCeremony validates cfg and creates the go-webauthn relying party.
func NewWebAuthnCeremony(cfg *Config) (*WebAuthnCeremony, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wa, err := webauthn.New(cfg.ToWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	return &WebAuthnCeremony{
		config:   cfg,
		webauthn: wa,
	}, nil
}

// Config returns the relying party configuration.
func (c *WebAuthnCeremony) Config() *Config {
	return c.config
}

// RegistrationOptions generates creation options excluding the given ids.
func (c *WebAuthnCeremony) RegistrationOptions(_ context.Context, req RegistrationOptionsRequest) (*protocol.PublicKeyCredentialCreationOptions, error) {
	exclusions, err := c.descriptors(req.ExcludeCredentialIDs)
	if err != nil {
		return nil, err
	}

	user := &ceremonyUser{
		id:          req.UserID,
		name:        req.Username,
		displayName: req.DisplayName,
	}

	creation, _, err := c.webauthn.BeginRegistration(user, webauthn.WithExclusions(exclusions))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOptionsGenerationFailed, err)
	}
	return &creation.Response, nil
}

// VerifyRegistration verifies an attestation against the expected challenge
// and origin.
func (c *WebAuthnCeremony) VerifyRegistration(_ context.Context, req RegistrationVerification) (*RegistrationInfo, error) {
	body, err := json.Marshal(req.Response)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	parsed, err := protocol.ParseCredentialCreationResponseBytes(body)
	if err != nil {
		return nil, verificationError(err)
	}

	wa, err := c.forOrigin(req.ExpectedOrigin)
	if err != nil {
		return nil, err
	}

	user := &ceremonyUser{id: req.UserID, name: req.Username}
	session := webauthn.SessionData{
		Challenge:        req.ExpectedChallenge,
		RelyingPartyID:   c.config.RPID,
		UserID:           user.WebAuthnID(),
		UserVerification: c.config.userVerification(),
		CredParams:       webauthn.CredentialParametersDefault(),
	}

	cred, err := wa.CreateCredential(user, session, parsed)
	if err != nil {
		return nil, verificationError(err)
	}

	deviceType := DeviceTypeSingle
	if cred.Flags.BackupEligible {
		deviceType = DeviceTypeMulti
	}

	transports := make([]string, len(cred.Transport))
	for i, t := range cred.Transport {
		transports[i] = string(t)
	}

	return &RegistrationInfo{
		Verified:     true,
		CredentialID: cred.ID,
		PublicKey:    cred.PublicKey,
		Counter:      cred.Authenticator.SignCount,
		DeviceType:   deviceType,
		BackedUp:     cred.Flags.BackupState,
		Transports:   transports,
		AAGUID:       cred.Authenticator.AAGUID,
	}, nil
}

// AuthenticationOptions generates request options restricted to the given ids.
func (c *WebAuthnCeremony) AuthenticationOptions(_ context.Context, req AuthenticationOptionsRequest) (*protocol.PublicKeyCredentialRequestOptions, error) {
	allowed, err := c.descriptors(req.AllowCredentialIDs)
	if err != nil {
		return nil, err
	}

	user := &ceremonyUser{id: req.UserID}
	for _, d := range allowed {
		user.credentials = append(user.credentials, webauthn.Credential{ID: d.CredentialID})
	}

	assertion, _, err := c.webauthn.BeginLogin(user,
		webauthn.WithAllowedCredentials(allowed),
		webauthn.WithUserVerification(c.config.userVerification()),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOptionsGenerationFailed, err)
	}
	return &assertion.Response, nil
}

// VerifyAuthentication verifies an assertion made with req.Credential. A
// signature counter that did not advance is rejected.
func (c *WebAuthnCeremony) VerifyAuthentication(_ context.Context, req AuthenticationVerification) (*AuthenticationInfo, error) {
	stored, err := toWebAuthnCredential(req.Credential)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req.Response)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	parsed, err := protocol.ParseCredentialRequestResponseBytes(body)
	if err != nil {
		return nil, verificationError(err)
	}

	wa, err := c.forOrigin(req.ExpectedOrigin)
	if err != nil {
		return nil, err
	}

	user := &ceremonyUser{
		id:          req.UserID,
		name:        req.Username,
		credentials: []webauthn.Credential{stored},
	}
	session := webauthn.SessionData{
		Challenge:        req.ExpectedChallenge,
		RelyingPartyID:   c.config.RPID,
		UserID:           user.WebAuthnID(),
		UserVerification: c.config.userVerification(),
	}

	cred, err := wa.ValidateLogin(user, session, parsed)
	if err != nil {
		return nil, verificationError(err)
	}
	if cred.Authenticator.CloneWarning {
		return nil, ErrClonedAuthenticator
	}

	return &AuthenticationInfo{
		Verified:   true,
		NewCounter: cred.Authenticator.SignCount,
		BackedUp:   cred.Flags.BackupState,
	}, nil
}

// forOrigin returns a relying party that accepts only origin. An empty origin
// keeps the configured list.
func (c *WebAuthnCeremony) forOrigin(origin string) (*webauthn.WebAuthn, error) {
	if origin == "" {
		return c.webauthn, nil
	}
	wa, err := webauthn.New(c.config.ToWebAuthnConfig(origin))
	if err != nil {
		return nil, fmt.Errorf("%w: origin %q: %v", ErrInvalidRequest, origin, err)
	}
	return wa, nil
}

func (c *WebAuthnCeremony) descriptors(ids []string) ([]protocol.CredentialDescriptor, error) {
	transports := c.config.transports()
	out := make([]protocol.CredentialDescriptor, 0, len(ids))
	for _, id := range ids {
		raw, err := decodeBase64URL(id)
		if err != nil || len(raw) == 0 {
			return nil, fmt.Errorf("%w: credential id %q", ErrMalformedCredentialList, truncateID(id))
		}
		out = append(out, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: raw,
			Transport:    transports,
		})
	}
	return out, nil
}

func toWebAuthnCredential(c Credential) (webauthn.Credential, error) {
	id, err := decodeBase64URL(c.CredentialID)
	if err != nil || len(id) == 0 {
		return webauthn.Credential{}, fmt.Errorf("%w: credential id %q", ErrMalformedCredentialList, truncateID(c.CredentialID))
	}
	publicKey, err := decodeBase64URL(c.CredentialPublicKey)
	if err != nil || len(publicKey) == 0 {
		return webauthn.Credential{}, fmt.Errorf("%w: public key of %q", ErrMalformedCredentialList, truncateID(c.CredentialID))
	}
	var aaguid []byte
	if c.AAGUID != "" {
		aaguid, _ = decodeBase64URL(c.AAGUID)
	}

	transports := make([]protocol.AuthenticatorTransport, len(c.Transports))
	for i, t := range c.Transports {
		transports[i] = protocol.AuthenticatorTransport(t)
	}

	return webauthn.Credential{
		ID:              id,
		PublicKey:       publicKey,
		AttestationType: "none",
		Transport:       transports,
		Flags: webauthn.CredentialFlags{
			UserPresent:    true,
			BackupEligible: c.BackupEligible(),
			BackupState:    c.CredentialBackedUp,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    aaguid,
			SignCount: c.Counter,
		},
	}, nil
}

// verificationError wraps a library rejection, keeping the library's debug
// detail when present.
func verificationError(err error) error {
	var perr *protocol.Error
	if errors.As(err, &perr) && perr.DevInfo != "" {
		return fmt.Errorf("%w: %s: %s", ErrVerificationFailed, perr.Details, perr.DevInfo)
	}
	return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
}

// ceremonyUser adapts a passkey user to webauthn.User.
type ceremonyUser struct {
	id          string
	name        string
	displayName string
	credentials []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte {
	return []byte(u.id)
}

func (u *ceremonyUser) WebAuthnName() string {
	return u.name
}

func (u *ceremonyUser) WebAuthnDisplayName() string {
	if u.displayName == "" {
		return u.name
	}
	return u.displayName
}

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}
