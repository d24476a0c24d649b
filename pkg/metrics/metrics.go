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

// Package metrics provides Prometheus instrumentation for passkey ceremonies.
// It exposes ceremony counters, latency histograms, self-heal counters and
// resource gauges for the passkey server.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all passkey metrics
	Namespace = "passkey"

	// Label names
	LabelOperation  = "operation"
	LabelStatus     = "status"
	LabelErrorType  = "error_type"
	LabelAction     = "action"
	LabelBackend    = "backend"
	LabelProtocol   = "protocol"
	LabelMethod     = "method"
	LabelRoute      = "route"
	LabelStatusCode = "status_code"

	LabelPasskeyEnabled = "passkey_enabled"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpRegisterBegin      = "register_begin"
	OpRegisterFinish     = "register_finish"
	OpAuthenticateBegin  = "authenticate_begin"
	OpAuthenticateFinish = "authenticate_finish"
	OpRemoveCredential   = "remove_credential"
	OpRepair             = "repair"
	OpFixAll             = "fix_all"

	// Heal actions
	ActionRewritten = "rewritten"
	ActionDiscarded = "discarded"
	ActionReset     = "reset"
)

var (
	// OperationsTotal tracks passkey operations by type and status.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of passkey operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// OperationDuration tracks the duration of passkey operations in seconds.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of passkey operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{LabelOperation},
	)

	// ErrorsTotal tracks failures by operation and error kind.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation and error type",
		},
		[]string{LabelOperation, LabelErrorType},
	)

	// HealedCredentialsTotal counts stored credential entries changed by self-healing.
	HealedCredentialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "healed_credentials_total",
			Help:      "Total number of stored credentials rewritten or discarded by self-healing",
		},
		[]string{LabelAction},
	)

	// ActiveConnections tracks the number of in-flight requests by protocol.
	ActiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_connections",
			Help:      "Number of active connections by protocol",
		},
		[]string{LabelProtocol},
	)

	// HTTPRequestsTotal tracks HTTP requests by method, route pattern and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route and status code",
		},
		[]string{LabelMethod, LabelRoute, LabelStatusCode},
	)

	// HTTPRequestDuration tracks the duration of HTTP requests in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod, LabelRoute},
	)

	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of HTTP requests rejected by the rate limiter",
		},
	)

	// Goroutines tracks the current number of goroutines.
	// Updated periodically by the resource collector.
	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	// MemoryAllocBytes tracks the current bytes of allocated heap objects.
	MemoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_alloc_bytes",
			Help:      "Current bytes of allocated heap objects",
		},
	)

	// Users tracks registered accounts, split by whether passkey login is enabled.
	// Updated periodically by the resource collector when a UserCounter is set.
	Users = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "users",
			Help:      "Registered users by passkey enablement",
		},
		[]string{LabelPasskeyEnabled},
	)

	// StorageHealthy indicates whether the storage backend is healthy (1) or unhealthy (0).
	StorageHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "storage_healthy",
			Help:      "Indicates whether a storage backend is healthy (1) or unhealthy (0)",
		},
		[]string{LabelBackend},
	)

	// ServerUptime tracks the server uptime in seconds since startup.
	ServerUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "server_uptime_seconds",
			Help:      "Server uptime in seconds since startup",
		},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordOperation records a passkey operation with its duration and status.
//
// Example:
//
//	start := time.Now()
//	_, err := svc.BeginRegistration(ctx, userID, name)
//	metrics.RecordOperation(metrics.OpRegisterBegin, metrics.StatusFor(err), time.Since(start).Seconds())
func RecordOperation(operation, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordError records a failed operation by error type, e.g. "verification_failed".
func RecordError(operation, errorType string) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordHeal records the outcome of one self-healing pass.
func RecordHeal(rewritten, discarded int, reset bool) {
	if !enabled.Load() {
		return
	}
	if rewritten > 0 {
		HealedCredentialsTotal.WithLabelValues(ActionRewritten).Add(float64(rewritten))
	}
	if discarded > 0 {
		HealedCredentialsTotal.WithLabelValues(ActionDiscarded).Add(float64(discarded))
	}
	if reset {
		HealedCredentialsTotal.WithLabelValues(ActionReset).Inc()
	}
}

// RecordHTTPRequest records an HTTP request with its duration and status.
// route is the matched route pattern, never the raw path.
func RecordHTTPRequest(method, route, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration)
}

// RecordRateLimited records a request rejected by the rate limiter.
func RecordRateLimited() {
	if !enabled.Load() {
		return
	}
	RateLimitedTotal.Inc()
}

// IncrementActiveConnections increments the active connection count for a protocol.
func IncrementActiveConnections(protocol string) {
	if !enabled.Load() {
		return
	}
	ActiveConnections.WithLabelValues(protocol).Inc()
}

// DecrementActiveConnections decrements the active connection count for a protocol.
func DecrementActiveConnections(protocol string) {
	if !enabled.Load() {
		return
	}
	ActiveConnections.WithLabelValues(protocol).Dec()
}

// SetStorageHealth sets the health gauge of a storage backend.
func SetStorageHealth(backend string, healthy bool) {
	if !enabled.Load() {
		return
	}
	value := 0.0
	if healthy {
		value = 1.0
	}
	StorageHealthy.WithLabelValues(backend).Set(value)
}

// StatusFor returns StatusError for a non-nil err and StatusSuccess otherwise.
func StatusFor(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
