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

// Package auth authenticates HTTP callers of the passkey API and carries the
// resulting identity through the request context.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Identity represents an authenticated user or service
type Identity struct {
	// Subject is the unique identifier for the authenticated entity (user ID, service name, etc.)
	Subject string

	// Claims contains additional authenticated information (roles, etc.)
	Claims map[string]interface{}

	// Attributes contains metadata about the authentication (auth method, remote address, etc.)
	Attributes map[string]string
}

// Authenticator is the interface for authentication adapters.
type Authenticator interface {
	// AuthenticateHTTP authenticates an HTTP request and returns an identity.
	// Returns ErrNoCredentials when the request carries nothing this
	// authenticator understands.
	AuthenticateHTTP(r *http.Request) (*Identity, error)

	// Name returns the authenticator name for logging/debugging
	Name() string
}

// ErrNoCredentials is returned when a request carries no credentials.
var ErrNoCredentials = errors.New("no credentials provided")

// ContextKey is the type for context keys used by the auth package
type ContextKey string

const (
	// IdentityContextKey is the context key for storing authenticated identity
	IdentityContextKey ContextKey = "auth.identity"
)

// GetIdentity extracts the identity from a context
func GetIdentity(ctx context.Context) *Identity {
	if identity, ok := ctx.Value(IdentityContextKey).(*Identity); ok {
		return identity
	}
	return nil
}

// WithIdentity adds an identity to a context
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

// HasRole checks if the identity has a specific role
func (i *Identity) HasRole(role string) bool {
	if i == nil || i.Claims == nil {
		return false
	}

	roles, ok := i.Claims["roles"]
	if !ok {
		return false
	}

	switch r := roles.(type) {
	case []string:
		for _, v := range r {
			if v == role {
				return true
			}
		}
	case []interface{}:
		for _, v := range r {
			if str, ok := v.(string); ok && str == role {
				return true
			}
		}
	case string:
		return r == role
	}

	return false
}

// Chain tries each authenticator in order and returns the first identity.
// An authenticator that finds no credentials is skipped; any other failure
// stops the chain.
type Chain []Authenticator

// AuthenticateHTTP implements Authenticator.
func (c Chain) AuthenticateHTTP(r *http.Request) (*Identity, error) {
	for _, a := range c {
		identity, err := a.AuthenticateHTTP(r)
		if errors.Is(err, ErrNoCredentials) {
			continue
		}
		return identity, err
	}
	return nil, ErrNoCredentials
}

// Name implements Authenticator.
func (c Chain) Name() string {
	names := make([]string, len(c))
	for i, a := range c {
		names[i] = a.Name()
	}
	return strings.Join(names, ",")
}

// FailureHandler is called when a request fails authentication.
type FailureHandler func(w http.ResponseWriter, r *http.Request, err error)

// Middleware authenticates every request with a and stores the identity in
// the request context. Failed requests are passed to onFailure, which
// defaults to a JSON 401.
func Middleware(a Authenticator, onFailure FailureHandler) func(http.Handler) http.Handler {
	if onFailure == nil {
		onFailure = Unauthorized
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := a.AuthenticateHTTP(r)
			if err != nil || identity == nil {
				if err == nil {
					err = ErrNoCredentials
				}
				onFailure(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// Unauthorized writes a JSON 401 response.
func Unauthorized(w http.ResponseWriter, _ *http.Request, _ error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="passkey"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": "authentication required",
	})
}

// bearerToken returns the token of an "Authorization: Bearer" header value.
func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func cloneIdentity(identity *Identity) *Identity {
	cloned := &Identity{
		Subject:    identity.Subject,
		Claims:     make(map[string]interface{}, len(identity.Claims)),
		Attributes: make(map[string]string, len(identity.Attributes)),
	}
	for k, v := range identity.Claims {
		cloned.Claims[k] = v
	}
	for k, v := range identity.Attributes {
		cloned.Attributes[k] = v
	}
	return cloned
}
