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
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of issued session tokens.
const DefaultTokenTTL = 24 * time.Hour

// JWTIssuer issues HS256 session tokens for authenticated users.
type JWTIssuer struct {
	// secret is the HMAC key used to sign tokens
	secret []byte
	// issuer is the JWT issuer claim
	issuer string
	// ttl is how long tokens are valid
	ttl time.Duration
	now func() time.Time
}

// JWTIssuerConfig contains configuration for the token issuer.
type JWTIssuerConfig struct {
	// Secret is the HMAC signing key (required)
	Secret []byte
	// Issuer is the JWT issuer claim (default: "go-passkey")
	Issuer string
	// TTL is how long tokens are valid (default: 24 hours)
	TTL time.Duration
}

// NewJWTIssuer creates a token issuer with the given configuration.
func NewJWTIssuer(config *JWTIssuerConfig) (*JWTIssuer, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if len(config.Secret) == 0 {
		return nil, fmt.Errorf("secret is required")
	}

	issuer := config.Issuer
	if issuer == "" {
		issuer = "go-passkey"
	}
	ttl := config.TTL
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}

	return &JWTIssuer{
		secret: config.Secret,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// IssueToken creates a signed token for user.
func (i *JWTIssuer) IssueToken(_ context.Context, user *User) (string, error) {
	if user == nil || user.ID == "" {
		return "", ErrInvalidUser
	}
	now := i.now()

	claims := jwt.MapClaims{
		"iss": i.issuer,
		"sub": user.ID,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(i.ttl).Unix(),
		// Custom claims
		"userId":   user.ID,
		"username": user.Username,
	}
	if user.Role != "" {
		claims["role"] = user.Role
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken verifies a token issued by i and returns its claims.
func (i *JWTIssuer) VerifyToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, i.KeyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}
	return claims, nil
}

// KeyFunc returns the verification key for tokens signed with HMAC.
func (i *JWTIssuer) KeyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return i.secret, nil
}

// Issuer returns the configured issuer.
func (i *JWTIssuer) Issuer() string {
	return i.issuer
}

// TTL returns the token lifetime.
func (i *JWTIssuer) TTL() time.Duration {
	return i.ttl
}
