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
	"sync"
	"testing"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/require"
)

var errDiskFull = errors.New("disk full")

// memStore is a UserStore backed by a map, with hooks to inject failures.
type memStore struct {
	mu      sync.Mutex
	users   map[string]*User
	updates int

	// failUpdate, when set, is consulted before every update.
	failUpdate func(id string, update UserUpdate) error
	failList   error
}

func newMemStore(users ...*User) *memStore {
	s := &memStore{users: make(map[string]*User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *memStore) GetUserByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *memStore) GetUserByUsername(_ context.Context, username string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *memStore) UpdateUser(_ context.Context, id string, update UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil {
		if err := s.failUpdate(id, update); err != nil {
			return err
		}
	}
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	clone := *u
	if err := update.Apply(&clone); err != nil {
		return err
	}
	s.users[id] = &clone
	s.updates++
	return nil
}

func (s *memStore) ListUsers(_ context.Context) ([]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList != nil {
		return nil, s.failList
	}
	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		clone := *u
		out = append(out, &clone)
	}
	return out, nil
}

func (s *memStore) get(t *testing.T, id string) *User {
	t.Helper()
	u, err := s.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (s *memStore) credentials(t *testing.T, id string) []Credential {
	t.Helper()
	var creds []Credential
	require.NoError(t, json.Unmarshal(s.get(t, id).PasskeyCredentials, &creds))
	return creds
}

// fakeCeremony is a scripted Ceremony that records its inputs.
type fakeCeremony struct {
	mu sync.Mutex

	challenges []string
	next       int

	regInfo  *RegistrationInfo
	regErr   error
	authInfo *AuthenticationInfo
	authErr  error

	// authOptionsErrs are returned by successive AuthenticationOptions calls.
	authOptionsErrs []error

	regOptionsCalls  []RegistrationOptionsRequest
	authOptionsCalls []AuthenticationOptionsRequest
	regVerifyCalls   []RegistrationVerification
	authVerifyCalls  []AuthenticationVerification
}

func newFakeCeremony() *fakeCeremony {
	return &fakeCeremony{
		challenges: []string{"Y2hhbGxlbmdlLTE", "Y2hhbGxlbmdlLTI", "Y2hhbGxlbmdlLTM", "Y2hhbGxlbmdlLTQ"},
	}
}

func (f *fakeCeremony) challenge() protocol.URLEncodedBase64 {
	c := f.challenges[f.next%len(f.challenges)]
	f.next++
	raw, _ := DecodeID(c)
	return raw
}

func (f *fakeCeremony) RegistrationOptions(_ context.Context, req RegistrationOptionsRequest) (*protocol.PublicKeyCredentialCreationOptions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regOptionsCalls = append(f.regOptionsCalls, req)
	return &protocol.PublicKeyCredentialCreationOptions{Challenge: f.challenge()}, nil
}

func (f *fakeCeremony) VerifyRegistration(_ context.Context, req RegistrationVerification) (*RegistrationInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regVerifyCalls = append(f.regVerifyCalls, req)
	return f.regInfo, f.regErr
}

func (f *fakeCeremony) AuthenticationOptions(_ context.Context, req AuthenticationOptionsRequest) (*protocol.PublicKeyCredentialRequestOptions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authOptionsCalls = append(f.authOptionsCalls, req)
	if len(f.authOptionsErrs) > 0 {
		err := f.authOptionsErrs[0]
		f.authOptionsErrs = f.authOptionsErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &protocol.PublicKeyCredentialRequestOptions{Challenge: f.challenge()}, nil
}

func (f *fakeCeremony) VerifyAuthentication(_ context.Context, req AuthenticationVerification) (*AuthenticationInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authVerifyCalls = append(f.authVerifyCalls, req)
	return f.authInfo, f.authErr
}

type stubTokens struct {
	token string
	err   error
}

func (s stubTokens) IssueToken(_ context.Context, _ *User) (string, error) {
	return s.token, s.err
}

func newTestService(t *testing.T, ceremony Ceremony, store UserStore) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Ceremony:      ceremony,
		UserStore:     store,
		Tokens:        stubTokens{token: "session-token"},
		DefaultOrigin: "https://example.com",
	})
	require.NoError(t, err)
	return svc
}

func testUser(id, username string, raw string) *User {
	u := &User{ID: id, Username: username}
	if raw != "" {
		u.PasskeyCredentials = json.RawMessage(raw)
		u.PasskeyEnabled = raw != "[]"
	}
	return u
}

func registrationResponse(id string) RegistrationResponse {
	return RegistrationResponse{
		CredentialResponse: CredentialResponse{ID: id, RawID: id, Type: "public-key"},
		Response: AttestationPayload{
			ClientDataJSON:    "e30",
			AttestationObject: "o2Nm",
		},
	}
}

func authenticationResponse(id string) AuthenticationResponse {
	return AuthenticationResponse{
		CredentialResponse: CredentialResponse{ID: id, RawID: id, Type: "public-key"},
		Response: AssertionPayload{
			ClientDataJSON:    "e30",
			AuthenticatorData: "AAAA",
			Signature:         "MEUC",
		},
	}
}
