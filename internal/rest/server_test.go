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

package rest

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jeremyhahn/go-passkey/internal/testutil"
	"github.com/jeremyhahn/go-passkey/pkg/adapters/auth"
	"github.com/jeremyhahn/go-passkey/pkg/adapters/logger"
	"github.com/jeremyhahn/go-passkey/pkg/health"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	passkeyhttp "github.com/jeremyhahn/go-passkey/pkg/passkey/http"
	"github.com/jeremyhahn/go-passkey/pkg/ratelimit"
	"github.com/jeremyhahn/go-passkey/pkg/storage"
	"github.com/jeremyhahn/go-passkey/pkg/storage/memory"
	"github.com/jeremyhahn/go-passkey/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server  *Server
	store   *user.Store
	backend storage.Backend
	issuer  *passkey.JWTIssuer
	admin   *user.User
	alice   *user.User
}

type envOption func(cfg *Config)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()

	backend := memory.New()
	store, err := user.NewStore(backend)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	admin, err := store.Create(ctx, "root", "Root", user.RoleAdmin)
	require.NoError(t, err)
	alice, err := store.Create(ctx, "alice", "Alice", user.RoleUser)
	require.NoError(t, err)

	ceremony, err := passkey.NewWebAuthnCeremony(&passkey.Config{
		RPID:          "localhost",
		RPDisplayName: "Test",
		RPOrigins:     []string{"https://localhost"},
	})
	require.NoError(t, err)

	issuer, err := passkey.NewJWTIssuer(&passkey.JWTIssuerConfig{Secret: []byte("0123456789abcdef0123456789abcdef")})
	require.NoError(t, err)

	svc, err := passkey.NewService(passkey.ServiceParams{
		Ceremony:  ceremony,
		UserStore: store,
		Tokens:    issuer,
	})
	require.NoError(t, err)

	authenticator, err := auth.NewJWTAuthenticator(&auth.JWTConfig{
		KeyFunc: issuer.KeyFunc,
		Issuer:  issuer.Issuer(),
	})
	require.NoError(t, err)

	checker := health.NewChecker()
	checker.RegisterCheck("storage", health.BackendCheck("memory", backend))

	cfg := &Config{
		Passkey:       passkeyhttp.NewHandler(svc),
		Users:         store,
		Authenticator: authenticator,
		Health:        checker,
		MetricsPath:   "/metrics",
		Logger:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	server, err := NewServer(cfg)
	require.NoError(t, err)

	return &testEnv{
		server:  server,
		store:   store,
		backend: backend,
		issuer:  issuer,
		admin:   admin,
		alice:   alice,
	}
}

func (e *testEnv) token(t *testing.T, u *user.User) string {
	t.Helper()
	token, err := e.issuer.IssueToken(context.Background(), u.Passkey())
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.10:4000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestNewServer_Validation(t *testing.T) {
	handler := passkeyhttp.NewHandler(nil)
	authenticator, err := auth.NewJWTAuthenticator(&auth.JWTConfig{Secret: []byte("0123456789abcdef0123456789abcdef")})
	require.NoError(t, err)

	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{"nil config", nil, "config is required"},
		{"no passkey handler", &Config{Authenticator: authenticator}, "passkey handler"},
		{"no authenticator", &Config{Passkey: handler}, "authenticator"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewServer(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("defaults", func(t *testing.T) {
		cfg := &Config{Passkey: handler, Authenticator: authenticator, Logger: logger.Nop()}
		s, err := NewServer(cfg)
		require.NoError(t, err)
		assert.Equal(t, ":8080", s.Addr())
		assert.Equal(t, 15*time.Second, cfg.ReadTimeout)
		assert.Equal(t, 60*time.Second, cfg.IdleTimeout)
	})
}

func TestProbes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ready health.Response
	decodeBody(t, rec, &ready)
	require.Len(t, ready.Checks, 1)
	assert.Equal(t, "memory", ready.Checks[0].Name)

	require.NoError(t, env.backend.Close())
	rec = env.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = env.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "liveness ignores storage")
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodGet, "/health", "", nil)

	rec := env.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "passkey_http_requests_total")

	env = newTestEnv(t, func(cfg *Config) { cfg.MetricsPath = "" })
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/metrics", "", nil).Code)
}

func TestNotFoundIsJSON(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ErrorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "not_found", resp.Error)
}

func TestPasskeyRoutesRequireAuthentication(t *testing.T) {
	env := newTestEnv(t)

	protected := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/passkey/credentials"},
		{http.MethodPost, "/api/passkey/register/start"},
		{http.MethodGet, "/api/passkey/stats"},
		{http.MethodGet, "/api/passkey/admin/data/check-all"},
		{http.MethodDelete, "/api/passkey/credentials/abc"},
	}
	for _, p := range protected {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			rec := env.do(p.method, p.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
		})
	}

	rec := env.do(http.MethodGet, "/api/passkey/credentials", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/api/passkey/credentials", env.token(t, env.alice), nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodGet, "/api/passkey/stats", env.token(t, env.alice), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats map[string]interface{}
	decodeBody(t, rec, &stats)
	assert.Equal(t, false, stats["hasPasskey"])
}

func TestPasskeyAdminRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/passkey/admin/data/check-all", env.token(t, env.alice), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodGet, "/api/passkey/admin/data/check-all", env.token(t, env.admin), nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRegistrationStart(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/passkey/register/start", env.token(t, env.alice),
		map[string]string{"credentialName": "Laptop"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Options struct {
			Challenge string `json:"challenge"`
			RP        struct {
				ID string `json:"id"`
			} `json:"rp"`
		} `json:"options"`
	}
	decodeBody(t, rec, &resp)
	assert.NotEmpty(t, resp.Options.Challenge)
	assert.Equal(t, "localhost", resp.Options.RP.ID)

	u, err := env.store.Get(context.Background(), env.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.Options.Challenge, u.PendingChallenge)
}

func TestRateLimitedCeremonies(t *testing.T) {
	limiter := ratelimit.New(&ratelimit.Config{Enabled: true, RequestsPerMinute: 60, Burst: 2})
	t.Cleanup(limiter.Stop)
	env := newTestEnv(t, func(cfg *Config) { cfg.Limiter = limiter })

	body := map[string]string{"username": "alice"}
	for i := 0; i < 2; i++ {
		rec := env.do(http.MethodPost, "/api/passkey/authenticate/start", "", body)
		assert.NotEqual(t, http.StatusTooManyRequests, rec.Code)
	}

	rec := env.do(http.MethodPost, "/api/passkey/authenticate/start", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Read-only routes are not throttled.
	rec = env.do(http.MethodGet, "/api/passkey/credentials", env.token(t, env.alice), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUserAdminRoutes(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.token(t, env.admin)

	rec := env.do(http.MethodGet, "/api/users", env.token(t, env.alice), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodGet, "/api/users", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list UserListResponse
	decodeBody(t, rec, &list)
	assert.Equal(t, 2, list.Total)

	rec = env.do(http.MethodPost, "/api/users", adminToken, CreateUserRequest{Username: "Bob", Role: "user"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created UserInfo
	decodeBody(t, rec, &created)
	assert.Equal(t, "bob", created.Username)
	assert.Equal(t, 0, created.CredentialCount)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		code   int
	}{
		{"duplicate", http.MethodPost, "/api/users", CreateUserRequest{Username: "bob"}, http.StatusConflict},
		{"bad role", http.MethodPost, "/api/users", CreateUserRequest{Username: "carol", Role: "root"}, http.StatusBadRequest},
		{"missing username", http.MethodPost, "/api/users", CreateUserRequest{}, http.StatusBadRequest},
		{"get", http.MethodGet, "/api/users/" + created.ID, nil, http.StatusOK},
		{"get missing", http.MethodGet, "/api/users/missing", nil, http.StatusNotFound},
		{"delete last admin", http.MethodDelete, "/api/users/" + env.admin.ID, nil, http.StatusConflict},
		{"delete", http.MethodDelete, "/api/users/" + created.ID, nil, http.StatusOK},
		{"delete again", http.MethodDelete, "/api/users/" + created.ID, nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(tt.method, tt.path, adminToken, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.CORSOrigins = []string{"https://app.example.com/"} })

	rec := env.do(http.MethodOptions, "/api/passkey/authenticate/start", "", nil,
		"Origin", "https://app.example.com",
		"Access-Control-Request-Method", "POST")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	rec = env.do(http.MethodGet, "/health", "", nil, "Origin", "https://evil.example.com")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCorrelationHeader(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/health", "", nil, "X-Correlation-ID", "abc-123")
	assert.Equal(t, "abc-123", rec.Header().Get("X-Correlation-ID"))

	rec = env.do(http.MethodGet, "/health", "", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestServeAndStop(t *testing.T) {
	files := testutil.WriteServerTLS(t, "127.0.0.1")
	cert, err := tls.LoadX509KeyPair(files.CertFile, files.KeyFile)
	require.NoError(t, err)

	env := newTestEnv(t, func(cfg *Config) {
		cfg.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- env.server.Serve(ln) }()

	client := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: files.Roots, MinVersion: tls.VersionTLS12},
		},
	}
	url := "https://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := client.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.server.Stop(ctx))
	require.NoError(t, <-done)

	_, err = client.Get(url)
	assert.Error(t, err)
}
