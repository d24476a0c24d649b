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

package auth

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"sync"
)

// APIKeyAuthenticator authenticates service callers, such as scheduled
// maintenance jobs, by a static API key.
type APIKeyAuthenticator struct {
	mu sync.RWMutex

	// validKeys maps the SHA-256 of each API key to its identity
	validKeys map[[sha256.Size]byte]*Identity

	// headerName is the HTTP header name for the API key (default: "X-API-Key")
	headerName string
}

// APIKeyConfig configures the API key authenticator
type APIKeyConfig struct {
	// Keys maps API keys to identities
	Keys map[string]*Identity

	// HeaderName is the HTTP header name (default: "X-API-Key")
	HeaderName string
}

// NewAPIKeyAuthenticator creates a new API key authenticator
func NewAPIKeyAuthenticator(config *APIKeyConfig) *APIKeyAuthenticator {
	if config == nil {
		config = &APIKeyConfig{}
	}

	headerName := config.HeaderName
	if headerName == "" {
		headerName = "X-API-Key"
	}

	a := &APIKeyAuthenticator{
		validKeys:  make(map[[sha256.Size]byte]*Identity, len(config.Keys)),
		headerName: headerName,
	}
	for key, identity := range config.Keys {
		a.AddKey(key, identity)
	}
	return a
}

// AddKey adds a new API key with the given identity
func (a *APIKeyAuthenticator) AddKey(apiKey string, identity *Identity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.validKeys[sha256.Sum256([]byte(apiKey))] = cloneIdentity(identity)
}

// RemoveKey removes an API key
func (a *APIKeyAuthenticator) RemoveKey(apiKey string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.validKeys, sha256.Sum256([]byte(apiKey)))
}

// AuthenticateHTTP authenticates an HTTP request using the API key header.
func (a *APIKeyAuthenticator) AuthenticateHTTP(r *http.Request) (*Identity, error) {
	apiKey := r.Header.Get(a.headerName)
	if apiKey == "" {
		return nil, ErrNoCredentials
	}

	a.mu.RLock()
	identity, ok := a.validKeys[sha256.Sum256([]byte(apiKey))]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("invalid API key")
	}

	cloned := cloneIdentity(identity)
	cloned.Attributes["auth_method"] = "apikey"
	cloned.Attributes["remote_addr"] = r.RemoteAddr
	return cloned, nil
}

// Name returns the authenticator name
func (a *APIKeyAuthenticator) Name() string {
	return "apikey"
}
