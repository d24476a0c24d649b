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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMiddlewareStatusCodes(t *testing.T) {
	Enable()

	testCases := []struct {
		name       string
		statusCode int
		label      string
	}{
		{"200 OK", http.StatusOK, "200"},
		{"400 Bad Request", http.StatusBadRequest, "400"},
		{"404 Not Found", http.StatusNotFound, "404"},
		{"500 Internal Server Error", http.StatusInternalServerError, "500"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			HTTPRequestsTotal.Reset()

			handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/passkey/register/start", nil))

			if rec.Code != tc.statusCode {
				t.Errorf("Expected status %d, got %d", tc.statusCode, rec.Code)
			}
			if v := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", RouteUnmatched, tc.label)); v != 1 {
				t.Errorf("Expected 1 request labelled %s, got %v", tc.label, v)
			}
		})
	}
}

func TestHTTPMiddlewareImplicitOK(t *testing.T) {
	Enable()
	HTTPRequestsTotal.Reset()

	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if v := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", RouteUnmatched, "200")); v != 1 {
		t.Errorf("Expected 1 request labelled 200, got %v", v)
	}
}

func TestHTTPMiddlewareWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()
	HTTPRequestsTotal.Reset()

	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	if count := testutil.CollectAndCount(HTTPRequestsTotal); count != 0 {
		t.Errorf("Expected no requests recorded, got %d", count)
	}
}

func TestHTTPMiddlewareRoutePattern(t *testing.T) {
	Enable()
	HTTPRequestsTotal.Reset()

	r := chi.NewRouter()
	r.Use(HTTPMiddleware)
	r.Route("/api/passkey", func(r chi.Router) {
		r.Delete("/credentials/{credentialId}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	for _, id := range []string{"AAAA", "BBBB", "CCCC"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("DELETE", "/api/passkey/credentials/"+id, nil))
	}

	route := "/api/passkey/credentials/{credentialId}"
	if v := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("DELETE", route, "200")); v != 3 {
		t.Errorf("Expected 3 requests on %s, got %v", route, v)
	}
	if count := testutil.CollectAndCount(HTTPRequestsTotal); count != 1 {
		t.Errorf("Expected a single series, got %d", count)
	}
}
