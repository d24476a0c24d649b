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

// Package rest wires the passkey HTTP surface into a chi server.
//
// The server applies recovery, correlation, request logging, metrics and
// CORS to every route, then mounts:
//
//   - /api/passkey/...  passkey ceremonies and credential maintenance
//   - /api/users        user administration (admin role)
//   - /health, /ready   liveness and readiness probes
//   - /metrics          Prometheus exposition, when enabled
//
// Example:
//
//	srv, err := rest.NewServer(&rest.Config{
//	    Addr:          ":8080",
//	    Passkey:       passkeyhttp.NewHandler(svc),
//	    Users:         store,
//	    Authenticator: authenticator,
//	    Limiter:       limiter,
//	    Health:        checker,
//	    MetricsPath:   "/metrics",
//	})
//	go srv.Start()
//	defer srv.Stop(ctx)
package rest
