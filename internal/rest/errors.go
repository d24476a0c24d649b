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

package rest

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/jeremyhahn/go-passkey/pkg/user"
)

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}

// writeError writes an error response to the client.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, ErrorResponse{Error: code, Message: message}, statusCode)
}

// mapUserError maps user store errors to a status code and error code.
func mapUserError(err error) (int, string) {
	switch {
	case errors.Is(err, user.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found"
	case errors.Is(err, user.ErrUserAlreadyExists):
		return http.StatusConflict, "user_exists"
	case errors.Is(err, user.ErrLastAdmin):
		return http.StatusConflict, "last_admin"
	case errors.Is(err, user.ErrInvalidUsername), errors.Is(err, user.ErrInvalidRole):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, user.ErrStorageClosed):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
