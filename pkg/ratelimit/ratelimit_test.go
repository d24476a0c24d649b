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

package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		config    *Config
		enabled   bool
		wantBurst int
	}{
		{"nil config", nil, false, 1},
		{"disabled", &Config{Enabled: false, RequestsPerMinute: 60}, false, 60},
		{"burst defaults to rate", &Config{Enabled: true, RequestsPerMinute: 30}, true, 30},
		{"explicit burst", &Config{Enabled: true, RequestsPerMinute: 60, Burst: 10}, true, 10},
		{"zero rate disables", &Config{Enabled: true}, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.config)
			defer l.Stop()

			assert.Equal(t, tt.enabled, l.IsEnabled())
			stats := l.Stats()
			assert.Equal(t, tt.enabled, stats["enabled"])
			assert.Equal(t, tt.wantBurst, stats["burst"])
		})
	}
}

func TestAllow(t *testing.T) {
	l := New(&Config{Enabled: true, RequestsPerMinute: 60, Burst: 5})
	defer l.Stop()

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("client"), "request %d within burst", i+1)
	}
	assert.False(t, l.Allow("client"))

	// Buckets are per client.
	assert.True(t, l.Allow("other"))
	assert.Equal(t, 2, l.Stats()["active_clients"])
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	l := New(&Config{Enabled: false, RequestsPerMinute: 1})
	defer l.Stop()

	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("client"))
		require.Zero(t, l.Reserve("client"))
	}
	require.NoError(t, l.Wait(context.Background(), "client"))
	assert.Equal(t, 0, l.Stats()["active_clients"])
}

func TestReserveDoesNotConsumeWhenRejected(t *testing.T) {
	l := New(&Config{Enabled: true, RequestsPerMinute: 60, Burst: 1})
	defer l.Stop()

	assert.Zero(t, l.Reserve("client"))

	delay := l.Reserve("client")
	assert.Greater(t, delay, time.Duration(0))
	assert.LessOrEqual(t, delay, time.Second)

	// A cancelled reservation leaves the next delay unchanged.
	again := l.Reserve("client")
	assert.InDelta(t, delay.Seconds(), again.Seconds(), 0.1)
}

func TestWaitHonoursContext(t *testing.T) {
	l := New(&Config{Enabled: true, RequestsPerMinute: 1, Burst: 1})
	defer l.Stop()

	require.NoError(t, l.Wait(context.Background(), "client"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "client"))
}

func TestCleanup(t *testing.T) {
	l := New(&Config{Enabled: true, RequestsPerMinute: 60, MaxIdle: time.Minute})
	defer l.Stop()

	now := time.Now()
	l.now = func() time.Time { return now }
	l.Allow("stale")

	now = now.Add(2 * time.Minute)
	l.Allow("fresh")
	l.cleanup()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.limiters, "stale")
	assert.Contains(t, l.limiters, "fresh")
}

func TestStopIsIdempotent(t *testing.T) {
	l := New(&Config{Enabled: true, RequestsPerMinute: 60})
	l.Stop()
	assert.NotPanics(t, l.Stop)
}

func TestConcurrentAllow(t *testing.T) {
	l := New(&Config{Enabled: true, RequestsPerMinute: 60, Burst: 50})
	defer l.Stop()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, allowed, 50)
	assert.LessOrEqual(t, allowed, 52)
}

func TestMiddleware(t *testing.T) {
	l := New(&Config{Enabled: true, RequestsPerMinute: 60, Burst: 2})
	defer l.Stop()

	handler := Middleware(l, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	// Different ports of one host share a bucket.
	assert.Equal(t, http.StatusOK, do("192.0.2.1:1000").Code)
	assert.Equal(t, http.StatusOK, do("192.0.2.1:1001").Code)

	rec := do("192.0.2.1:1002")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body["error"])

	assert.Equal(t, http.StatusOK, do("192.0.2.2:1000").Code)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		trust   bool
		remote  string
		headers map[string]string
		want    string
	}{
		{"remote with port", false, "10.0.0.1:5555", nil, "10.0.0.1"},
		{"ipv6 remote", false, "[2001:db8::1]:443", nil, "2001:db8::1"},
		{"remote without port", false, "10.0.0.1", nil, "10.0.0.1"},
		{"untrusted forwarded header ignored", false, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "203.0.113.9"}, "10.0.0.1"},
		{"trusted forwarded first hop", true, "10.0.0.1:1", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.2"}, "203.0.113.9"},
		{"trusted real ip", true, "10.0.0.1:1", map[string]string{"X-Real-IP": "203.0.113.7"}, "203.0.113.7"},
		{"trusted without headers", true, "10.0.0.1:1", nil, "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(tt.trust)(req))
		})
	}
}
