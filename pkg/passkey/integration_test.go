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
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type integrationEnv struct {
	svc           *Service
	store         *memStore
	rp            virtualwebauthn.RelyingParty
	authenticator virtualwebauthn.Authenticator
}

func newIntegrationEnv(t *testing.T, users ...*User) *integrationEnv {
	t.Helper()

	cfg := &Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigins:     []string{"https://example.com"},
	}
	ceremony, err := NewWebAuthnCeremony(cfg)
	require.NoError(t, err)

	issuer, err := NewJWTIssuer(&JWTIssuerConfig{Secret: []byte("integration-secret")})
	require.NoError(t, err)

	store := newMemStore(users...)
	svc, err := NewService(ServiceParams{
		Ceremony:  ceremony,
		UserStore: store,
		Tokens:    issuer,
	})
	require.NoError(t, err)

	return &integrationEnv{
		svc:   svc,
		store: store,
		rp: virtualwebauthn.RelyingParty{
			Name:   cfg.RPDisplayName,
			ID:     cfg.RPID,
			Origin: cfg.RPOrigins[0],
		},
		authenticator: virtualwebauthn.NewAuthenticator(),
	}
}

func (e *integrationEnv) register(t *testing.T, userID, name string, credential virtualwebauthn.Credential) *Credential {
	t.Helper()
	ctx := context.Background()

	options, err := e.svc.BeginRegistration(ctx, userID, name)
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(options)
	require.NoError(t, err)
	parsed, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)

	attestation := virtualwebauthn.CreateAttestationResponse(e.rp, e.authenticator, credential, *parsed)

	var resp RegistrationResponse
	require.NoError(t, json.Unmarshal([]byte(attestation), &resp))

	cred, err := e.svc.FinishRegistration(ctx, userID, name, resp, "")
	require.NoError(t, err)
	e.authenticator.AddCredential(credential)
	return cred
}

func (e *integrationEnv) authenticate(t *testing.T, username string, credential virtualwebauthn.Credential) (string, *User, error) {
	t.Helper()
	ctx := context.Background()

	options, err := e.svc.BeginAuthentication(ctx, username)
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(options)
	require.NoError(t, err)
	parsed, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)

	assertion := virtualwebauthn.CreateAssertionResponse(e.rp, e.authenticator, credential, *parsed)

	var resp AuthenticationResponse
	require.NoError(t, json.Unmarshal([]byte(assertion), &resp))

	return e.svc.FinishAuthentication(ctx, username, resp, "")
}

// TestIntegration_RegisterAndAuthenticate runs both ceremonies against a
// virtual authenticator.
func TestIntegration_RegisterAndAuthenticate(t *testing.T) {
	env := newIntegrationEnv(t, &User{ID: "user-1", Username: "alice", Role: "user"})
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	cred := env.register(t, "user-1", "Work laptop", credential)
	assert.True(t, IsValid(cred.CredentialID))
	assert.Equal(t, NormalizeBytes(credential.ID), cred.CredentialID)
	assert.NotEmpty(t, cred.CredentialPublicKey)
	assert.Equal(t, "Work laptop", cred.Name)

	user := env.store.get(t, "user-1")
	assert.True(t, user.PasskeyEnabled)
	assert.Empty(t, user.PendingChallenge)

	credential.Counter++
	token, authed, err := env.authenticate(t, "alice", credential)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, "user-1", authed.ID)

	creds := env.store.credentials(t, "user-1")
	require.Len(t, creds, 1)
	assert.Equal(t, uint32(1), creds[0].Counter)
	assert.Empty(t, env.store.get(t, "user-1").PendingChallenge)
}

// TestIntegration_DuplicateRegistration verifies that the same authenticator
// cannot be registered twice.
func TestIntegration_DuplicateRegistration(t *testing.T) {
	env := newIntegrationEnv(t, &User{ID: "user-1", Username: "alice"})
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	env.register(t, "user-1", "first", credential)

	ctx := context.Background()
	options, err := env.svc.BeginRegistration(ctx, "user-1", "second")
	require.NoError(t, err)
	require.Len(t, options.CredentialExcludeList, 1)
	assert.Equal(t, credential.ID, []byte(options.CredentialExcludeList[0].CredentialID))

	optionsJSON, err := json.Marshal(options)
	require.NoError(t, err)
	parsed, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)
	attestation := virtualwebauthn.CreateAttestationResponse(env.rp, env.authenticator, credential, *parsed)

	var resp RegistrationResponse
	require.NoError(t, json.Unmarshal([]byte(attestation), &resp))

	_, err = env.svc.FinishRegistration(ctx, "user-1", "second", resp, "")
	require.Error(t, err)
	assert.Equal(t, KindDuplicateCredential, KindOf(err))
	assert.Len(t, env.store.credentials(t, "user-1"), 1)
}

// TestIntegration_MultipleCredentials registers two authenticators and signs
// in with each.
func TestIntegration_MultipleCredentials(t *testing.T) {
	env := newIntegrationEnv(t, &User{ID: "user-1", Username: "alice"})
	first := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	second := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	env.register(t, "user-1", "laptop", first)
	env.register(t, "user-1", "phone", second)
	require.Len(t, env.store.credentials(t, "user-1"), 2)

	first.Counter++
	_, _, err := env.authenticate(t, "alice", first)
	require.NoError(t, err)

	second.Counter++
	_, _, err = env.authenticate(t, "alice", second)
	require.NoError(t, err)

	require.NoError(t, env.svc.RemoveCredential(context.Background(), "user-1", NormalizeBytes(first.ID)))
	creds := env.store.credentials(t, "user-1")
	require.Len(t, creds, 1)
	assert.Equal(t, "phone", creds[0].Name)
}

// TestIntegration_LegacyStoredID authenticates with a credential whose id was
// stored in standard base64 by an older client.
func TestIntegration_LegacyStoredID(t *testing.T) {
	env := newIntegrationEnv(t, &User{ID: "user-1", Username: "alice"})
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	cred := env.register(t, "user-1", "laptop", credential)

	raw, err := DecodeID(cred.CredentialID)
	require.NoError(t, err)
	legacy := []map[string]interface{}{{
		"id":                  cred.ID,
		"name":                cred.Name,
		"credentialID":        raw,
		"credentialPublicKey": cred.CredentialPublicKey,
		"counter":             cred.Counter,
		"isPasskey":           true,
	}}
	encoded, err := json.Marshal(legacy)
	require.NoError(t, err)
	env.store.users["user-1"].PasskeyCredentials = encoded

	credential.Counter++
	_, _, err = env.authenticate(t, "alice", credential)
	require.NoError(t, err)
	assert.Equal(t, cred.CredentialID, env.store.credentials(t, "user-1")[0].CredentialID)
}

// TestIntegration_CounterMustAdvance rejects an assertion that replays the
// stored counter.
func TestIntegration_CounterMustAdvance(t *testing.T) {
	env := newIntegrationEnv(t, &User{ID: "user-1", Username: "alice"})
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	env.register(t, "user-1", "laptop", credential)

	credential.Counter = 5
	_, _, err := env.authenticate(t, "alice", credential)
	require.NoError(t, err)

	_, _, err = env.authenticate(t, "alice", credential)
	require.Error(t, err)
	assert.True(t, IsVerificationFailed(err))
	assert.Equal(t, uint32(5), env.store.credentials(t, "user-1")[0].Counter)
	assert.NotEmpty(t, env.store.get(t, "user-1").PendingChallenge)
}
