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

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouteEntry represents a single route with its method, path, and handler.
type RouteEntry struct {
	Method  string
	Path    string
	Handler http.HandlerFunc

	// Authenticated routes require a bearer identity.
	Authenticated bool

	// RateLimited routes start or finish a ceremony or mutate credentials.
	RateLimited bool
}

// Routes returns every passkey route relative to the mount point.
func (h *Handler) Routes() []RouteEntry {
	return []RouteEntry{
		{Method: http.MethodGet, Path: "/credentials", Handler: h.ListCredentials, Authenticated: true},
		{Method: http.MethodPost, Path: "/register/start", Handler: h.RegisterStart, Authenticated: true, RateLimited: true},
		{Method: http.MethodPost, Path: "/register/finish", Handler: h.RegisterFinish, Authenticated: true, RateLimited: true},
		{Method: http.MethodPost, Path: "/authenticate/start", Handler: h.AuthenticateStart, RateLimited: true},
		{Method: http.MethodPost, Path: "/authenticate/finish", Handler: h.AuthenticateFinish, RateLimited: true},
		{Method: http.MethodDelete, Path: "/credentials/{credentialId}", Handler: h.DeleteCredential, Authenticated: true, RateLimited: true},
		{Method: http.MethodGet, Path: "/data/check", Handler: h.DataCheck, Authenticated: true},
		{Method: http.MethodPost, Path: "/data/repair", Handler: h.DataRepair, Authenticated: true},
		{Method: http.MethodGet, Path: "/credential-id/check", Handler: h.CredentialIDCheck, Authenticated: true},
		{Method: http.MethodPost, Path: "/credential-id/fix", Handler: h.CredentialIDFix, Authenticated: true},
		{Method: http.MethodGet, Path: "/stats", Handler: h.Stats, Authenticated: true},
		{Method: http.MethodGet, Path: "/admin/data/check-all", Handler: h.CheckAll, Authenticated: true},
		{Method: http.MethodPost, Path: "/admin/data/repair-all", Handler: h.RepairAll, Authenticated: true},
		{Method: http.MethodPost, Path: "/admin/credential-id/fix-all", Handler: h.RepairAll, Authenticated: true},
	}
}

// MountOptions supplies the middleware applied to protected routes.
type MountOptions struct {
	// Authenticate resolves the bearer identity into the request context.
	Authenticate func(http.Handler) http.Handler

	// RateLimit throttles ceremony routes. Optional.
	RateLimit func(http.Handler) http.Handler
}

// MountChi mounts passkey routes on a chi router.
//
// Example:
//
//	handler := passkeyhttp.NewHandler(svc)
//	r.Route("/api/passkey", func(r chi.Router) {
//	    passkeyhttp.MountChi(r, handler, passkeyhttp.MountOptions{
//	        Authenticate: authMiddleware,
//	        RateLimit:    limiter.Middleware,
//	    })
//	})
func MountChi(r chi.Router, h *Handler, opts MountOptions) {
	for _, route := range h.Routes() {
		var chain []func(http.Handler) http.Handler
		if route.RateLimited && opts.RateLimit != nil {
			chain = append(chain, opts.RateLimit)
		}
		if route.Authenticated && opts.Authenticate != nil {
			chain = append(chain, opts.Authenticate)
		}
		r.With(chain...).Method(route.Method, route.Path, route.Handler)
	}
}
