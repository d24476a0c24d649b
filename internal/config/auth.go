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
	"fmt"

	"github.com/jeremyhahn/go-passkey/pkg/adapters/auth"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// CreateIssuer creates the session token issuer.
func (cfg *AuthConfig) CreateIssuer() (*passkey.JWTIssuer, error) {
	return passkey.NewJWTIssuer(&passkey.JWTIssuerConfig{
		Secret: []byte(cfg.JWTSecret),
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.TokenTTL,
	})
}

// CreateAuthenticator creates the request authenticator: bearer tokens from
// issuer, then API keys when any are configured.
func (cfg *AuthConfig) CreateAuthenticator(issuer *passkey.JWTIssuer) (auth.Authenticator, error) {
	if issuer == nil {
		return nil, fmt.Errorf("token issuer is required")
	}

	jwtAuth, err := auth.NewJWTAuthenticator(&auth.JWTConfig{
		KeyFunc: issuer.KeyFunc,
		Issuer:  issuer.Issuer(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT authenticator: %w", err)
	}

	if len(cfg.APIKeys) == 0 {
		return jwtAuth, nil
	}
	return auth.Chain{jwtAuth, cfg.createAPIKeyAuthenticator()}, nil
}

// createAPIKeyAuthenticator creates an API key authenticator from config
func (cfg *AuthConfig) createAPIKeyAuthenticator() auth.Authenticator {
	keys := make(map[string]*auth.Identity, len(cfg.APIKeys))
	for apiKey, keyConfig := range cfg.APIKeys {
		identity := &auth.Identity{
			Subject:    keyConfig.Subject,
			Claims:     make(map[string]interface{}),
			Attributes: make(map[string]string),
		}
		if len(keyConfig.Roles) > 0 {
			identity.Claims["roles"] = keyConfig.Roles
		}
		keys[apiKey] = identity
	}

	return auth.NewAPIKeyAuthenticator(&auth.APIKeyConfig{
		Keys: keys,
	})
}
