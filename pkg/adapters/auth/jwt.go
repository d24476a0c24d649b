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
	"crypto"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

// JWTAuthenticator authenticates requests carrying a bearer JWT.
type JWTAuthenticator struct {
	keyFunc    jwt.Keyfunc
	parser     *jwt.Parser
	headerName string
}

// JWTConfig configures the JWT authenticator. Exactly one of KeyFunc, Secret
// or PublicKey must be set.
type JWTConfig struct {
	// KeyFunc resolves the verification key per token.
	KeyFunc jwt.Keyfunc

	// Secret verifies HMAC signed tokens.
	Secret []byte

	// PublicKey verifies asymmetric signatures.
	PublicKey crypto.PublicKey

	// Methods restricts the accepted signing algorithms.
	// Default: HS256 with Secret, ES256/RS256/EdDSA with PublicKey.
	Methods []string

	// Issuer is the expected issuer claim (optional, skips validation if empty)
	Issuer string

	// Audience is the expected audience claim (optional, skips validation if empty)
	Audience string

	// HeaderName is the HTTP header name (default: "Authorization")
	HeaderName string
}

// NewJWTAuthenticator creates a new JWT authenticator.
func NewJWTAuthenticator(config *JWTConfig) (*JWTAuthenticator, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	keyFunc := config.KeyFunc
	methods := config.Methods
	switch {
	case keyFunc != nil:
	case len(config.Secret) > 0:
		secret := config.Secret
		keyFunc = func(*jwt.Token) (interface{}, error) { return secret, nil }
		if len(methods) == 0 {
			methods = []string{jwt.SigningMethodHS256.Alg()}
		}
	case config.PublicKey != nil:
		publicKey := config.PublicKey
		keyFunc = func(*jwt.Token) (interface{}, error) { return publicKey, nil }
		if len(methods) == 0 {
			methods = []string{
				jwt.SigningMethodES256.Alg(),
				jwt.SigningMethodRS256.Alg(),
				jwt.SigningMethodEdDSA.Alg(),
			}
		}
	default:
		return nil, fmt.Errorf("a key function, secret or public key is required")
	}

	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if len(methods) > 0 {
		opts = append(opts, jwt.WithValidMethods(methods))
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}

	headerName := config.HeaderName
	if headerName == "" {
		headerName = "Authorization"
	}

	return &JWTAuthenticator{
		keyFunc:    keyFunc,
		parser:     jwt.NewParser(opts...),
		headerName: headerName,
	}, nil
}

// AuthenticateHTTP authenticates an HTTP request using a bearer JWT.
func (a *JWTAuthenticator) AuthenticateHTTP(r *http.Request) (*Identity, error) {
	tokenString := bearerToken(r.Header.Get(a.headerName))
	if tokenString == "" {
		return nil, ErrNoCredentials
	}

	identity, err := a.validateToken(tokenString)
	if err != nil {
		return nil, err
	}

	identity.Attributes["auth_method"] = "jwt"
	identity.Attributes["remote_addr"] = r.RemoteAddr
	return identity, nil
}

// validateToken parses and validates a JWT token.
func (a *JWTAuthenticator) validateToken(tokenString string) (*Identity, error) {
	claims := jwt.MapClaims{}
	token, err := a.parser.ParseWithClaims(tokenString, claims, a.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("missing subject claim")
	}

	identity := &Identity{
		Subject:    sub,
		Claims:     make(map[string]interface{}, len(claims)+1),
		Attributes: make(map[string]string),
	}
	for k, v := range claims {
		identity.Claims[k] = v
	}

	if role, ok := claims["role"].(string); ok && role != "" {
		identity.Claims["roles"] = []string{role}
	}
	if username, ok := claims["username"].(string); ok {
		identity.Attributes["username"] = username
	}

	return identity, nil
}

// Name returns the authenticator name.
func (a *JWTAuthenticator) Name() string {
	return "jwt"
}
