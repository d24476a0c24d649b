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

package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jeremyhahn/go-passkey/pkg/adapters/auth"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

func TestCreateIssuer(t *testing.T) {
	cfg := &AuthConfig{JWTSecret: testSecret, JWTIssuer: "example"}
	issuer, err := cfg.CreateIssuer()
	if err != nil {
		t.Fatalf("CreateIssuer() error = %v, want nil", err)
	}
	if issuer.Issuer() != "example" {
		t.Errorf("Issuer() = %v, want example", issuer.Issuer())
	}
	if issuer.TTL() != passkey.DefaultTokenTTL {
		t.Errorf("TTL() = %v, want default", issuer.TTL())
	}

	if _, err := (&AuthConfig{}).CreateIssuer(); err == nil {
		t.Error("CreateIssuer() without secret should fail")
	}
}

func TestCreateAuthenticator_NilIssuer(t *testing.T) {
	if _, err := (&AuthConfig{}).CreateAuthenticator(nil); err == nil {
		t.Error("CreateAuthenticator(nil) should fail")
	}
}

func TestCreateAuthenticator_JWT(t *testing.T) {
	cfg := &AuthConfig{JWTSecret: testSecret}
	issuer, err := cfg.CreateIssuer()
	if err != nil {
		t.Fatalf("CreateIssuer() error = %v", err)
	}

	authenticator, err := cfg.CreateAuthenticator(issuer)
	if err != nil {
		t.Fatalf("CreateAuthenticator() error = %v", err)
	}
	if _, ok := authenticator.(auth.Chain); ok {
		t.Error("CreateAuthenticator() without API keys should not chain")
	}

	token, err := issuer.IssueToken(context.Background(), &passkey.User{ID: "u1", Username: "alice", Role: "admin"})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	identity, err := authenticator.AuthenticateHTTP(req)
	if err != nil {
		t.Fatalf("AuthenticateHTTP() error = %v", err)
	}
	if identity.Subject != "u1" || !identity.HasRole("admin") {
		t.Errorf("identity = %+v", identity)
	}
}

func TestCreateAuthenticator_APIKeys(t *testing.T) {
	cfg := &AuthConfig{
		JWTSecret: testSecret,
		APIKeys: map[string]APIKeyConfig{
			"ops-key": {Subject: "maintenance", Roles: []string{"admin"}},
		},
	}
	issuer, err := cfg.CreateIssuer()
	if err != nil {
		t.Fatalf("CreateIssuer() error = %v", err)
	}

	authenticator, err := cfg.CreateAuthenticator(issuer)
	if err != nil {
		t.Fatalf("CreateAuthenticator() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "ops-key")
	identity, err := authenticator.AuthenticateHTTP(req)
	if err != nil {
		t.Fatalf("AuthenticateHTTP() error = %v", err)
	}
	if identity.Subject != "maintenance" || !identity.HasRole("admin") {
		t.Errorf("identity = %+v", identity)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "wrong")
	if _, err := authenticator.AuthenticateHTTP(req); err == nil {
		t.Error("AuthenticateHTTP() with an unknown key should fail")
	}
}
