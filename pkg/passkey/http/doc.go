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

// Package http provides JSON HTTP handlers for passkey ceremonies and
// credential maintenance.
//
// # Usage
//
//	svc, _ := passkey.NewService(...)
//	handler := passkeyhttp.NewHandler(svc)
//
//	r.Route("/api/passkey", func(r chi.Router) {
//	    passkeyhttp.MountChi(r, handler, passkeyhttp.MountOptions{
//	        Authenticate: bearer,
//	        RateLimit:    limiter.Middleware,
//	    })
//	})
//
// # Endpoints
//
//	GET    /credentials                  - List the caller's passkeys
//	POST   /register/start               - Start registration
//	POST   /register/finish              - Complete registration
//	POST   /authenticate/start           - Start authentication (no token)
//	POST   /authenticate/finish          - Complete authentication (no token)
//	DELETE /credentials/{credentialId}   - Remove a passkey
//	GET    /data/check                   - Dry-run repair report
//	POST   /data/repair                  - Repair the caller's stored list
//	GET    /credential-id/check          - Per-credential id diagnostics
//	POST   /credential-id/fix            - Repair the caller's credential ids
//	GET    /stats                        - Credential counts
//	GET    /admin/data/check-all         - Dry-run report for every user
//	POST   /admin/data/repair-all        - Repair every user
//	POST   /admin/credential-id/fix-all  - Repair every user
//
// Finish calls are verified against the Origin header, then the scheme and
// host of the Referer, then the configured default origin.
//
// # Response Format
//
// Error responses have the format:
//
//	{
//	    "error": "error_code",
//	    "message": "Human-readable message"
//	}
package http
