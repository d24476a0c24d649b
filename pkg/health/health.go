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

package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultCheckTimeout bounds a single readiness check.
const DefaultCheckTimeout = 5 * time.Second

// Status represents the health status of a component.
type Status string

const (
	// StatusHealthy indicates the component is operating normally.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the component is not functioning.
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded indicates the component is functioning but with reduced capacity.
	StatusDegraded Status = "degraded"
)

// CheckResult represents the result of a single health check.
type CheckResult struct {
	// Name is the identifier for this health check.
	Name string `json:"name"`
	// Status is the health status of the component.
	Status Status `json:"status"`
	// Message provides additional context about the status.
	Message string `json:"message,omitempty"`
	// Latency is how long the check took to execute.
	Latency time.Duration `json:"latency"`
	// Error contains error details if the check failed.
	Error string `json:"error,omitempty"`
}

// CheckFunc is a function that performs a health check.
// It should return quickly (ideally < 1 second) and indicate component health.
type CheckFunc func(ctx context.Context) CheckResult

// Checker manages health checks following Kubernetes probe semantics.
//
// It supports three types of probes:
// - Liveness: Is the service alive? (should it be restarted?)
// - Readiness: Can the service accept requests? (should it receive traffic?)
// - Startup: Has initialization completed? (delay liveness/readiness until ready)
//
// See: https://kubernetes.io/docs/tasks/configure-pod-container/configure-liveness-readiness-startup-probes/
type Checker struct {
	mu        sync.RWMutex
	started   bool
	startTime time.Time
	checks    map[string]CheckFunc
	timeout   time.Duration
}

// NewChecker creates a new health checker.
func NewChecker() *Checker {
	return &Checker{
		checks:    make(map[string]CheckFunc),
		startTime: time.Now(),
		timeout:   DefaultCheckTimeout,
	}
}

// SetTimeout sets the per-check deadline applied by Ready. A non-positive
// value disables the deadline.
func (c *Checker) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

// RegisterCheck adds a health check with the given name.
// If a check with this name already exists, it will be replaced.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	if check == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// UnregisterCheck removes a health check.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// MarkStarted marks the service as fully started and ready.
// This should be called after all initialization is complete.
func (c *Checker) MarkStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
}

// MarkNotStarted marks the service as not started.
// This is useful for testing or graceful shutdown scenarios.
func (c *Checker) MarkNotStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
}

// Live performs a liveness check.
//
// Liveness probes determine if the service is alive. If a liveness probe
// fails, Kubernetes will restart the container.
//
// The liveness check should only fail if the service is in an unrecoverable
// state and needs to be restarted. Temporary failures (network issues, etc.)
// should NOT cause liveness to fail.
//
// Liveness here only reports that the process is serving requests.
func (c *Checker) Live(_ context.Context) CheckResult {
	start := time.Now()
	return CheckResult{
		Name:    "liveness",
		Status:  StatusHealthy,
		Message: "Service is alive",
		Latency: time.Since(start),
	}
}

// Ready runs every registered check concurrently and returns the results
// sorted by name. Readiness fails while the user storage backend is
// unreachable.
func (c *Checker) Ready(ctx context.Context) []CheckResult {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	timeout := c.timeout
	c.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]CheckResult, 0, len(checks))
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			result := c.run(ctx, timeout, check)
			if result.Name == "" {
				result.Name = name
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	// If no checks registered, return healthy by default
	if len(results) == 0 {
		return []CheckResult{{
			Name:    "default",
			Status:  StatusHealthy,
			Message: "No readiness checks configured",
			Latency: 0,
		}}
	}

	return results
}

func (c *Checker) run(ctx context.Context, timeout time.Duration, check CheckFunc) (result CheckResult) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = CheckResult{
				Status: StatusUnhealthy,
				Error:  fmt.Sprintf("check panicked: %v", r),
			}
		}
		result.Latency = time.Since(start)
	}()
	return check(ctx)
}

// Startup performs a startup check.
//
// Startup probes determine if the application has finished starting up.
// Kubernetes will not check liveness or readiness until startup succeeds.
//
// This is useful for services that have long initialization times.
// The startup check fails until MarkStarted() is called.
func (c *Checker) Startup(ctx context.Context) CheckResult {
	start := time.Now()

	c.mu.RLock()
	started := c.started
	startTime := c.startTime
	c.mu.RUnlock()

	if !started {
		return CheckResult{
			Name:    "startup",
			Status:  StatusUnhealthy,
			Message: "Service initialization not complete",
			Latency: time.Since(start),
		}
	}

	return CheckResult{
		Name:    "startup",
		Status:  StatusHealthy,
		Message: fmt.Sprintf("Service fully initialized (uptime: %s)", time.Since(startTime).Round(time.Second)),
		Latency: time.Since(start),
	}
}

// GetAllChecks returns the names of all registered checks.
func (c *Checker) GetAllChecks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsHealthy returns true if all readiness checks pass. A degraded check
// counts as unhealthy.
func (c *Checker) IsHealthy(ctx context.Context) bool {
	results := c.Ready(ctx)
	for _, result := range results {
		if result.Status != StatusHealthy {
			return false
		}
	}
	return true
}

// IsStarted returns true if the service has been marked as started.
func (c *Checker) IsStarted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}

// Uptime returns how long the service has been running.
func (c *Checker) Uptime() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.startTime)
}

// AggregateStatus returns the overall status based on check results.
// - If all checks are healthy, returns StatusHealthy
// - If any check is unhealthy, returns StatusUnhealthy
// - If any check is degraded (and none unhealthy), returns StatusDegraded
func AggregateStatus(results []CheckResult) Status {
	hasUnhealthy := false
	hasDegraded := false

	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			hasUnhealthy = true
		case StatusDegraded:
			hasDegraded = true
		}
	}

	if hasUnhealthy {
		return StatusUnhealthy
	}
	if hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}
