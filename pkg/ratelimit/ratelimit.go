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

// Package ratelimit provides per-client token bucket rate limiting for the
// HTTP surface.
package ratelimit

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/metrics"
	"golang.org/x/time/rate"
)

// Limiter implements a token bucket rate limiter with per-client tracking.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	rate     rate.Limit
	burst    int
	enabled  bool

	cleanupInterval time.Duration
	maxIdle         time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	now             func() time.Time
}

// Config holds rate limiter configuration.
type Config struct {
	// Enabled controls whether rate limiting is active.
	Enabled bool `yaml:"enabled" json:"enabled" mapstructure:"enabled"`

	// RequestsPerMinute sets the sustained rate limit.
	RequestsPerMinute int `yaml:"requests_per_min" json:"requests_per_min" mapstructure:"requests_per_min"`

	// Burst allows short bursts above the sustained rate.
	// If not set, defaults to RequestsPerMinute.
	Burst int `yaml:"burst" json:"burst" mapstructure:"burst"`

	// CleanupInterval controls how often to remove idle clients.
	// Defaults to 10 minutes.
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval" mapstructure:"cleanup_interval"`

	// MaxIdle is how long a client can be idle before cleanup.
	// Defaults to 30 minutes.
	MaxIdle time.Duration `yaml:"max_idle" json:"max_idle" mapstructure:"max_idle"`

	// TrustProxyHeaders keys clients by X-Forwarded-For and X-Real-IP.
	// Enable only behind a proxy that overwrites these headers.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers" json:"trust_proxy_headers" mapstructure:"trust_proxy_headers"`
}

// New creates a new rate limiter with the given configuration.
func New(config *Config) *Limiter {
	if config == nil {
		config = &Config{Enabled: false}
	}

	burst := config.Burst
	if burst <= 0 {
		burst = config.RequestsPerMinute
	}
	if burst <= 0 {
		burst = 1
	}

	cleanupInterval := config.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}

	maxIdle := config.MaxIdle
	if maxIdle <= 0 {
		maxIdle = 30 * time.Minute
	}

	l := &Limiter{
		limiters:        make(map[string]*rate.Limiter),
		lastSeen:        make(map[string]time.Time),
		rate:            rate.Limit(float64(config.RequestsPerMinute) / 60.0),
		burst:           burst,
		enabled:         config.Enabled && config.RequestsPerMinute > 0,
		cleanupInterval: cleanupInterval,
		maxIdle:         maxIdle,
		stopCleanup:     make(chan struct{}),
		now:             time.Now,
	}

	if l.enabled {
		go l.cleanupWorker()
	}

	return l
}

func (l *Limiter) getLimiter(clientID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[clientID]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[clientID] = limiter
	}

	l.lastSeen[clientID] = l.now()
	return limiter
}

// Allow reports whether a request from clientID is within its limit.
func (l *Limiter) Allow(clientID string) bool {
	if !l.enabled {
		return true
	}
	return l.getLimiter(clientID).Allow()
}

// Reserve consumes a token for clientID. It returns zero when the request may
// proceed now, otherwise the delay until a token is available. A rejected
// request does not consume a token.
func (l *Limiter) Reserve(clientID string) time.Duration {
	if !l.enabled {
		return 0
	}

	r := l.getLimiter(clientID).Reserve()
	if !r.OK() {
		return time.Duration(math.MaxInt64)
	}
	delay := r.Delay()
	if delay > 0 {
		r.Cancel()
	}
	return delay
}

// Wait blocks until the rate limit allows the request or ctx is done.
func (l *Limiter) Wait(ctx context.Context, clientID string) error {
	if !l.enabled {
		return nil
	}
	return l.getLimiter(clientID).Wait(ctx)
}

func (l *Limiter) cleanupWorker() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCleanup:
			return
		}
	}
}

// cleanup removes clients that haven't made requests recently.
func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for clientID, lastSeen := range l.lastSeen {
		if now.Sub(lastSeen) > l.maxIdle {
			delete(l.limiters, clientID)
			delete(l.lastSeen, clientID)
		}
	}
}

// Stop stops the cleanup worker. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCleanup) })
}

// Stats returns current rate limiter statistics.
func (l *Limiter) Stats() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	return map[string]interface{}{
		"enabled":        l.enabled,
		"active_clients": len(l.limiters),
		"rate_per_min":   float64(l.rate) * 60,
		"burst":          l.burst,
	}
}

// IsEnabled returns whether rate limiting is enabled.
func (l *Limiter) IsEnabled() bool {
	return l.enabled
}

// KeyFunc derives the client identifier from a request.
type KeyFunc func(r *http.Request) string

// Middleware returns an HTTP middleware that enforces rate limiting keyed by
// keyFn. A nil keyFn keys by remote IP without trusting proxy headers.
// Rejected requests receive a JSON 429 with a Retry-After header.
func Middleware(limiter *Limiter, keyFn KeyFunc) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = ClientIP(false)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			delay := limiter.Reserve(keyFn(r))
			if delay > 0 {
				metrics.RecordRateLimited()
				writeTooManyRequests(w, delay)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns a KeyFunc that keys by client IP. The port is stripped so
// every connection from one host shares a bucket.
func ClientIP(trustProxyHeaders bool) KeyFunc {
	return func(r *http.Request) string {
		if trustProxyHeaders {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
			if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
				return xri
			}
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		return host
	}
}

func writeTooManyRequests(w http.ResponseWriter, delay time.Duration) {
	seconds := int(math.Ceil(delay.Seconds()))
	if seconds < 1 || delay == time.Duration(math.MaxInt64) {
		seconds = 1
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "rate_limited",
		"message": "rate limit exceeded",
	})
}
