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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticCheck(status Status) CheckFunc {
	return func(context.Context) CheckResult {
		return CheckResult{Status: status}
	}
}

func TestNewChecker(t *testing.T) {
	c := NewChecker()
	require.NotNil(t, c)
	assert.Empty(t, c.GetAllChecks())
	assert.False(t, c.IsStarted())
	assert.Less(t, c.Uptime(), time.Second)
}

func TestRegisterCheck(t *testing.T) {
	c := NewChecker()

	c.RegisterCheck("storage", staticCheck(StatusHealthy))
	c.RegisterCheck("nil", nil)
	c.RegisterCheck("audit", staticCheck(StatusHealthy))
	assert.Equal(t, []string{"audit", "storage"}, c.GetAllChecks())

	c.RegisterCheck("storage", staticCheck(StatusDegraded))
	assert.Len(t, c.GetAllChecks(), 2)
	assert.False(t, c.IsHealthy(context.Background()))

	c.UnregisterCheck("storage")
	c.UnregisterCheck("missing")
	assert.Equal(t, []string{"audit"}, c.GetAllChecks())
}

func TestStartup(t *testing.T) {
	c := NewChecker()
	ctx := context.Background()

	assert.Equal(t, StatusUnhealthy, c.Startup(ctx).Status)

	c.MarkStarted()
	result := c.Startup(ctx)
	assert.Equal(t, StatusHealthy, result.Status)
	assert.Equal(t, "startup", result.Name)

	c.MarkNotStarted()
	assert.False(t, c.IsStarted())
}

func TestLive(t *testing.T) {
	c := NewChecker()
	c.RegisterCheck("storage", staticCheck(StatusUnhealthy))

	result := c.Live(context.Background())
	assert.Equal(t, StatusHealthy, result.Status)
	assert.Equal(t, "liveness", result.Name)
}

func TestReady(t *testing.T) {
	t.Run("no checks", func(t *testing.T) {
		results := NewChecker().Ready(context.Background())
		require.Len(t, results, 1)
		assert.Equal(t, "default", results[0].Name)
		assert.Equal(t, StatusHealthy, results[0].Status)
	})

	t.Run("sorted and named", func(t *testing.T) {
		c := NewChecker()
		c.RegisterCheck("zeta", staticCheck(StatusHealthy))
		c.RegisterCheck("alpha", staticCheck(StatusDegraded))
		c.RegisterCheck("mid", func(context.Context) CheckResult {
			return CheckResult{Name: "custom", Status: StatusHealthy}
		})

		results := c.Ready(context.Background())
		require.Len(t, results, 3)
		assert.Equal(t, "alpha", results[0].Name)
		assert.Equal(t, "custom", results[1].Name)
		assert.Equal(t, "zeta", results[2].Name)
		assert.Equal(t, StatusDegraded, AggregateStatus(results))
	})

	t.Run("timeout", func(t *testing.T) {
		c := NewChecker()
		c.SetTimeout(20 * time.Millisecond)
		c.RegisterCheck("slow", func(ctx context.Context) CheckResult {
			select {
			case <-ctx.Done():
				return CheckResult{Status: StatusUnhealthy, Error: ctx.Err().Error()}
			case <-time.After(5 * time.Second):
				return CheckResult{Status: StatusHealthy}
			}
		})

		start := time.Now()
		results := c.Ready(context.Background())
		assert.Less(t, time.Since(start), 2*time.Second)
		require.Len(t, results, 1)
		assert.Equal(t, StatusUnhealthy, results[0].Status)
		assert.Equal(t, context.DeadlineExceeded.Error(), results[0].Error)
	})

	t.Run("panic", func(t *testing.T) {
		c := NewChecker()
		c.RegisterCheck("broken", func(context.Context) CheckResult { panic("boom") })

		results := c.Ready(context.Background())
		require.Len(t, results, 1)
		assert.Equal(t, "broken", results[0].Name)
		assert.Equal(t, StatusUnhealthy, results[0].Status)
		assert.Contains(t, results[0].Error, "boom")
	})

	t.Run("latency", func(t *testing.T) {
		c := NewChecker()
		c.RegisterCheck("sleepy", func(context.Context) CheckResult {
			time.Sleep(10 * time.Millisecond)
			return CheckResult{Status: StatusHealthy}
		})

		results := c.Ready(context.Background())
		assert.GreaterOrEqual(t, results[0].Latency, 10*time.Millisecond)
	})
}

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make([]CheckResult, len(tt.statuses))
			for i, s := range tt.statuses {
				results[i] = CheckResult{Status: s}
			}
			assert.Equal(t, tt.want, AggregateStatus(results))
		})
	}
}

func TestConcurrentRegistration(t *testing.T) {
	c := NewChecker()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			name := string(rune('a' + i))
			c.RegisterCheck(name, staticCheck(StatusHealthy))
		}(i)
		go func() {
			defer wg.Done()
			_ = c.Ready(ctx)
		}()
	}
	wg.Wait()

	assert.Len(t, c.GetAllChecks(), 20)
	assert.True(t, c.IsHealthy(ctx))
}
