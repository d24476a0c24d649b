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
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJWTIssuer(t *testing.T) {
	_, err := NewJWTIssuer(nil)
	assert.Error(t, err)

	_, err = NewJWTIssuer(&JWTIssuerConfig{})
	assert.ErrorContains(t, err, "secret is required")

	issuer, err := NewJWTIssuer(&JWTIssuerConfig{Secret: []byte("s3cret")})
	require.NoError(t, err)
	assert.Equal(t, "go-passkey", issuer.Issuer())
	assert.Equal(t, DefaultTokenTTL, issuer.TTL())
}

func TestJWTIssuer_RoundTrip(t *testing.T) {
	issuer, err := NewJWTIssuer(&JWTIssuerConfig{
		Secret: []byte("s3cret"),
		Issuer: "passkey-test",
		TTL:    time.Hour,
	})
	require.NoError(t, err)

	user := &User{ID: "u-1", Username: "alice", Role: "admin"}
	token, err := issuer.IssueToken(context.Background(), user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := issuer.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims["sub"])
	assert.Equal(t, "u-1", claims["userId"])
	assert.Equal(t, "alice", claims["username"])
	assert.Equal(t, "admin", claims["role"])
	assert.Equal(t, "passkey-test", claims["iss"])

	iat, _ := claims.GetIssuedAt()
	exp, _ := claims.GetExpirationTime()
	require.NotNil(t, iat)
	require.NotNil(t, exp)
	assert.Equal(t, time.Hour, exp.Sub(iat.Time))
}

func TestJWTIssuer_Rejects(t *testing.T) {
	issuer, err := NewJWTIssuer(&JWTIssuerConfig{Secret: []byte("s3cret"), TTL: time.Minute})
	require.NoError(t, err)
	user := &User{ID: "u-1", Username: "alice"}

	t.Run("nil user", func(t *testing.T) {
		_, err := issuer.IssueToken(context.Background(), nil)
		assert.ErrorIs(t, err, ErrInvalidUser)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewJWTIssuer(&JWTIssuerConfig{Secret: []byte("other"), TTL: time.Minute})
		require.NoError(t, err)
		token, err := other.IssueToken(context.Background(), user)
		require.NoError(t, err)

		_, err = issuer.VerifyToken(token)
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, err := NewJWTIssuer(&JWTIssuerConfig{Secret: []byte("s3cret"), Issuer: "someone-else"})
		require.NoError(t, err)
		token, err := other.IssueToken(context.Background(), user)
		require.NoError(t, err)

		_, err = issuer.VerifyToken(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := issuer.IssueToken(context.Background(), user)
		require.NoError(t, err)

		issuer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { issuer.now = time.Now }()

		_, err = issuer.VerifyToken(token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("unsigned", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u-1"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = issuer.VerifyToken(token)
		assert.Error(t, err)
	})
}
