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

package correlation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithAndGetCorrelationID(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "abc-123")
	assert.Equal(t, "abc-123", GetCorrelationID(ctx))

	//nolint:staticcheck // nil context is handled explicitly
	ctx = WithCorrelationID(nil, "from-nil")
	assert.Equal(t, "from-nil", GetCorrelationID(ctx))

	assert.Empty(t, GetCorrelationID(context.Background()))
	//nolint:staticcheck
	assert.Empty(t, GetCorrelationID(nil))
}

func TestNewIDIsUUID(t *testing.T) {
	id := NewID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, NewID())
}

func TestGetOrGenerate(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "existing")
	assert.Equal(t, "existing", GetOrGenerate(ctx))

	generated := GetOrGenerate(context.Background())
	_, err := uuid.Parse(generated)
	assert.NoError(t, err)
}

func TestFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"correlation header", map[string]string{CorrelationIDHeader: "corr"}, "corr"},
		{"request header", map[string]string{RequestIDHeader: "req"}, "req"},
		{"correlation wins", map[string]string{CorrelationIDHeader: "corr", RequestIDHeader: "req"}, "corr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, FromRequest(r))
		})
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := uuid.Parse(FromRequest(r))
	assert.NoError(t, err)
}

func TestMiddleware(t *testing.T) {
	var seen string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/passkey/authenticate/start", nil)
	req.Header.Set(RequestIDHeader, "client-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "client-id", seen)
	assert.Equal(t, "client-id", rec.Header().Get(CorrelationIDHeader))
}
