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

package metrics

import (
	"context"
	"runtime"
	"time"
)

// UserCounter reports the number of registered users and how many of them
// have passkey login enabled.
type UserCounter func(ctx context.Context) (total, withPasskey int, err error)

// ResourceCollector periodically refreshes the process and user gauges.
type ResourceCollector struct {
	ctx      context.Context
	cancel   context.CancelFunc
	interval time.Duration
	started  time.Time
	users    UserCounter
}

// NewResourceCollector creates a collector that refreshes metrics every interval.
//
// users may be nil, in which case the Users gauge is left alone.
//
//	collector := metrics.NewResourceCollector(ctx, 30*time.Second, nil)
//	go collector.Start()
//	defer collector.Stop()
func NewResourceCollector(ctx context.Context, interval time.Duration, users UserCounter) *ResourceCollector {
	collectorCtx, cancel := context.WithCancel(ctx)
	return &ResourceCollector{
		ctx:      collectorCtx,
		cancel:   cancel,
		interval: interval,
		started:  time.Now(),
		users:    users,
	}
}

// Start blocks, collecting until Stop is called or the parent context ends.
func (rc *ResourceCollector) Start() {
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	rc.collect()

	for {
		select {
		case <-rc.ctx.Done():
			return
		case <-ticker.C:
			rc.collect()
		}
	}
}

// Stop halts the resource collector.
func (rc *ResourceCollector) Stop() {
	rc.cancel()
}

func (rc *ResourceCollector) collect() {
	if !IsEnabled() {
		return
	}
	CollectOnce()
	ServerUptime.Set(time.Since(rc.started).Seconds())

	if rc.users == nil {
		return
	}
	total, withPasskey, err := rc.users(rc.ctx)
	if err != nil {
		// keep the last known values
		return
	}
	Users.WithLabelValues("true").Set(float64(withPasskey))
	Users.WithLabelValues("false").Set(float64(total - withPasskey))
}

// CollectOnce performs a single collection of resource metrics.
func CollectOnce() {
	if !IsEnabled() {
		return
	}

	Goroutines.Set(float64(runtime.NumGoroutine()))

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	MemoryAllocBytes.Set(float64(memStats.Alloc))
}

// StartResourceCollector creates a collector and runs it in the background.
func StartResourceCollector(ctx context.Context, interval time.Duration, users UserCounter) *ResourceCollector {
	collector := NewResourceCollector(ctx, interval, users)
	go collector.Start()
	return collector
}
