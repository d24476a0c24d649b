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
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jeremyhahn/go-passkey/pkg/user"
)

// UserAdmin is the subset of the user store used by the admin routes.
type UserAdmin interface {
	Create(ctx context.Context, username, displayName string, role user.Role) (*user.User, error)
	Get(ctx context.Context, id string) (*user.User, error)
	List(ctx context.Context) ([]*user.User, error)
	Delete(ctx context.Context, id string) error
}

// UserHandlers provides HTTP handlers for user management.
type UserHandlers struct {
	users    UserAdmin
	validate *validator.Validate
}

// NewUserHandlers creates a new UserHandlers instance.
func NewUserHandlers(users UserAdmin) *UserHandlers {
	return &UserHandlers{
		users:    users,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// UserInfo is a summary of a user.
type UserInfo struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	DisplayName     string `json:"display_name,omitempty"`
	Role            string `json:"role"`
	Enabled         bool   `json:"enabled"`
	PasskeyEnabled  bool   `json:"passkey_enabled"`
	CredentialCount int    `json:"credential_count"`
	CreatedAt       string `json:"created_at"`
}

// UserListResponse is the response for listing users.
type UserListResponse struct {
	Users []UserInfo `json:"users"`
	Total int        `json:"total"`
}

// CreateUserRequest is the body of POST /api/users.
type CreateUserRequest struct {
	Username    string `json:"username" validate:"required,max=128"`
	DisplayName string `json:"display_name" validate:"max=256"`
	Role        string `json:"role" validate:"omitempty,oneof=admin user"`
}

// ListUsersHandler returns every user.
func (h *UserHandlers) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		status, code := mapUserError(err)
		writeError(w, status, code, "failed to list users")
		return
	}

	infos := make([]UserInfo, len(users))
	for i, u := range users {
		infos[i] = toUserInfo(u)
	}
	writeJSON(w, UserListResponse{Users: infos, Total: len(infos)}, http.StatusOK)
}

// CreateUserHandler creates a user. Credentials are registered later by the
// user through the passkey ceremony.
func (h *UserHandlers) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	u, err := h.users.Create(r.Context(), req.Username, req.DisplayName, user.Role(req.Role))
	if err != nil {
		status, code := mapUserError(err)
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, toUserInfo(u), http.StatusCreated)
}

// GetUserHandler returns one user.
func (h *UserHandlers) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		status, code := mapUserError(err)
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, toUserInfo(u), http.StatusOK)
}

// DeleteUserHandler deletes a user. The last administrator cannot be removed.
func (h *UserHandlers) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.users.Delete(r.Context(), id); err != nil {
		status, code := mapUserError(err)
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"success": true, "id": id}, http.StatusOK)
}

func toUserInfo(u *user.User) UserInfo {
	return UserInfo{
		ID:              u.ID,
		Username:        u.Username,
		DisplayName:     u.DisplayName,
		Role:            string(u.Role),
		Enabled:         u.Enabled,
		PasskeyEnabled:  u.PasskeyEnabled,
		CredentialCount: credentialCount(u.PasskeyCredentials),
		CreatedAt:       u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// credentialCount counts stored entries without healing them. A list that
// is not a JSON array counts as empty.
func credentialCount(raw json.RawMessage) int {
	var entries []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &entries) != nil {
		return 0
	}
	return len(entries)
}
