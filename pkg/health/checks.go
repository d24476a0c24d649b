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
	"errors"

	"github.com/jeremyhahn/go-passkey/pkg/metrics"
	"github.com/jeremyhahn/go-passkey/pkg/storage"
)

// Pinger is implemented by storage backends with a network round trip.
type Pinger interface {
	Ping(ctx context.Context) error
}

// probeKey is looked up by BackendCheck. It never exists.
const probeKey = "health/probe"

// PingCheck reports the reachability of a networked dependency.
func PingCheck(name string, p Pinger) CheckFunc {
	return func(ctx context.Context) CheckResult {
		err := p.Ping(ctx)
		metrics.SetStorageHealth(name, err == nil)
		if err != nil {
			return CheckResult{
				Name:    name,
				Status:  StatusUnhealthy,
				Message: "ping failed",
				Error:   err.Error(),
			}
		}
		return CheckResult{Name: name, Status: StatusHealthy}
	}
}

// BackendCheck probes a storage backend with a read. Backends that implement
// Pinger are pinged instead.
func BackendCheck(name string, backend storage.Backend) CheckFunc {
	if p, ok := backend.(Pinger); ok {
		return PingCheck(name, p)
	}
	return func(ctx context.Context) CheckResult {
		_, err := backend.Exists(ctx, probeKey)
		healthy := err == nil || errors.Is(err, storage.ErrNotFound)
		metrics.SetStorageHealth(name, healthy)
		if !healthy {
			return CheckResult{
				Name:    name,
				Status:  StatusUnhealthy,
				Message: "storage unavailable",
				Error:   err.Error(),
			}
		}
		return CheckResult{Name: name, Status: StatusHealthy}
	}
}
