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
	"encoding/json"
	"net/http"
	"time"
)

// Response is the body written by the probe handlers.
type Response struct {
	Status Status        `json:"status"`
	Uptime string        `json:"uptime,omitempty"`
	Checks []CheckResult `json:"checks,omitempty"`
}

// LiveHandler serves the liveness probe.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := c.Live(r.Context())
		writeResponse(w, Response{
			Status: result.Status,
			Uptime: c.Uptime().Round(time.Second).String(),
		})
	}
}

// ReadyHandler serves the readiness probe. It answers 503 unless every
// check is healthy.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := c.Ready(r.Context())
		writeResponse(w, Response{
			Status: AggregateStatus(results),
			Checks: results,
		})
	}
}

// StartupHandler serves the startup probe.
func (c *Checker) StartupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := c.Startup(r.Context())
		writeResponse(w, Response{
			Status: result.Status,
			Checks: []CheckResult{result},
		})
	}
}

func writeResponse(w http.ResponseWriter, resp Response) {
	code := http.StatusOK
	if resp.Status != StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
