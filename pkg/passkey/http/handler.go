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
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jeremyhahn/go-passkey/pkg/adapters/auth"
	"github.com/jeremyhahn/go-passkey/pkg/adapters/logger"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// maxBodyBytes bounds request bodies; attestation objects are a few KB.
const maxBodyBytes = 1 << 20

// Handler provides HTTP handlers for passkey operations.
// These handlers can be mounted on any chi router.
type Handler struct {
	service  *passkey.Service
	logger   logger.Logger
	validate *validator.Validate
}

// NewHandler creates a new passkey HTTP handler.
func NewHandler(service *passkey.Service) *Handler {
	return &Handler{
		service:  service,
		logger:   logger.Nop(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(log logger.Logger) *Handler {
	h.logger = log
	return h
}

// ListCredentials handles GET /credentials
//
// Response: array of the caller's stored credentials
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	creds, err := h.service.Credentials(r.Context(), identity.Subject)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, creds)
}

// RegisterStart handles POST /register/start
//
// Request body:
//
//	{
//	    "credentialName": "Work laptop"
//	}
//
// Response: {"options": PublicKeyCredentialCreationOptions}
func (h *Handler) RegisterStart(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req RegisterStartRequest
	if !h.decode(w, r, &req) {
		return
	}

	options, err := h.service.BeginRegistration(r.Context(), identity.Subject, req.CredentialName)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, OptionsResponse{Options: options})
}

// RegisterFinish handles POST /register/finish
//
// Request body: {"credentialName": "...", "response": attestation}
// Response: {"verified": true, "credential": {...}}
func (h *Handler) RegisterFinish(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req RegisterFinishRequest
	if !h.decode(w, r, &req) {
		return
	}

	cred, err := h.service.FinishRegistration(r.Context(), identity.Subject, req.CredentialName, *req.Response, RequestOrigin(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, RegisterFinishResponse{Verified: true, Credential: cred})
}

// AuthenticateStart handles POST /authenticate/start
//
// Request body: {"username": "alice"}
// Response: {"options": PublicKeyCredentialRequestOptions}
func (h *Handler) AuthenticateStart(w http.ResponseWriter, r *http.Request) {
	var req AuthenticateStartRequest
	if !h.decode(w, r, &req) {
		return
	}

	options, err := h.service.BeginAuthentication(r.Context(), req.Username)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, OptionsResponse{Options: options})
}

// AuthenticateFinish handles POST /authenticate/finish
//
// Request body: {"username": "alice", "response": assertion}
// Response: {"success": true, "token": "...", "user": {"id": "...", "username": "..."}}
func (h *Handler) AuthenticateFinish(w http.ResponseWriter, r *http.Request) {
	var req AuthenticateFinishRequest
	if !h.decode(w, r, &req) {
		return
	}

	token, user, err := h.service.FinishAuthentication(r.Context(), req.Username, *req.Response, RequestOrigin(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, AuthenticateFinishResponse{
		Success: true,
		Token:   token,
		User:    UserSummary{ID: user.ID, Username: user.Username},
	})
}

// DeleteCredential handles DELETE /credentials/{credentialId}
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	raw := chi.URLParam(r, "credentialId")
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, passkey.KindMissingCredentialID.String(), "credential id is required")
		return
	}
	id := passkey.NormalizeString(raw)
	if !passkey.IsValid(id) {
		h.writeError(w, http.StatusBadRequest, passkey.KindInvalidCredentialID.String(), "invalid credential id")
		return
	}

	if err := h.service.RemoveCredential(r.Context(), identity.Subject, id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// DataCheck handles GET /data/check
func (h *Handler) DataCheck(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	report, err := h.service.CheckUser(r.Context(), identity.Subject)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, DataCheckResponse{
		Success: true,
		Data:    CheckReport{HealReport: report, NeedsRepair: report.Dirty()},
	})
}

// DataRepair handles POST /data/repair
func (h *Handler) DataRepair(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	report, err := h.service.RepairUser(r.Context(), identity.Subject)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	message := "credential data is healthy"
	if report.Dirty() {
		message = "credential data repaired"
	}
	h.writeJSON(w, http.StatusOK, DataRepairResponse{
		Success:                  true,
		Message:                  message,
		RepairedCredentialsCount: report.Rewritten + report.Discarded,
		Report:                   report,
	})
}

// CredentialIDCheck handles GET /credential-id/check
func (h *Handler) CredentialIDCheck(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	report, err := h.service.CredentialIDReport(r.Context(), identity.Subject)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// CredentialIDFix handles POST /credential-id/fix
func (h *Handler) CredentialIDFix(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	report, err := h.service.RepairUser(r.Context(), identity.Subject)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, CredentialIDFixResponse{
		Success:          true,
		Message:          "credential ids checked",
		FixedCredentials: report.Rewritten,
		TotalCredentials: report.Valid,
	})
}

// Stats handles GET /stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	hasPasskey, stats, err := h.service.Stats(r.Context(), identity.Subject)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, StatsResponse{HasPasskey: hasPasskey, Stats: stats})
}

// CheckAll handles GET /admin/data/check-all
func (h *Handler) CheckAll(w http.ResponseWriter, r *http.Request) {
	if !h.admin(w, r) {
		return
	}

	result, err := h.service.CheckAll(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, CheckAllResponse{Success: true, Data: result})
}

// RepairAll handles POST /admin/data/repair-all and
// POST /admin/credential-id/fix-all
func (h *Handler) RepairAll(w http.ResponseWriter, r *http.Request) {
	if !h.admin(w, r) {
		return
	}

	result, err := h.service.FixAll(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	failures := result.Failures
	if failures == nil {
		failures = []passkey.UserCheck{}
	}
	h.writeJSON(w, http.StatusOK, BulkRepairResponse{
		Success:               true,
		Message:               "bulk repair complete",
		TotalUsers:            result.TotalUsers,
		UsersWithPasskey:      result.UsersWithPasskey,
		FixedUsers:            result.FixedUsers,
		TotalFixedCredentials: result.TotalFixedCredentials,
		TotalDiscarded:        result.TotalDiscarded,
		Failures:              failures,
	})
}

// RequestOrigin returns the origin a finish call is verified against: the
// Origin header, else the scheme and host of the Referer. An empty result
// selects the configured default.
func RequestOrigin(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" && origin != "null" {
		return origin
	}
	if referer := r.Header.Get("Referer"); referer != "" {
		u, err := url.Parse(referer)
		if err == nil && u.Scheme != "" && u.Host != "" {
			return u.Scheme + "://" + u.Host
		}
	}
	return ""
}

// identity returns the authenticated caller, writing 401 when there is none.
func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity := auth.GetIdentity(r.Context())
	if identity == nil || identity.Subject == "" {
		h.writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "authentication required")
		return nil, false
	}
	return identity, true
}

func (h *Handler) admin(w http.ResponseWriter, r *http.Request) bool {
	identity, ok := h.identity(w, r)
	if !ok {
		return false
	}
	if !identity.HasRole(RoleAdmin) {
		h.writeError(w, http.StatusForbidden, ErrorCodeForbidden, "admin role required")
		return false
	}
	return true
}

// decode reads and validates a JSON body, writing 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest,
				verrs[0].Field()+" failed "+verrs[0].Tag()+" validation")
			return false
		}
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, err.Error())
		return false
	}
	return true
}

// StatusFor maps a passkey error kind to an HTTP status code.
func StatusFor(kind passkey.Kind) int {
	switch kind {
	case passkey.KindInvalidRequest,
		passkey.KindNoUser,
		passkey.KindNoCredentials,
		passkey.KindMissingCredentialID,
		passkey.KindInvalidCredentialID,
		passkey.KindChallengeMismatch:
		return http.StatusBadRequest
	case passkey.KindVerificationFailed:
		return http.StatusUnauthorized
	case passkey.KindUserNotFound, passkey.KindCredentialNotFound:
		return http.StatusNotFound
	case passkey.KindDuplicateCredential:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleServiceError maps service errors to HTTP responses. Internal
// failures are logged and reported without detail.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := passkey.KindOf(err)
	status := StatusFor(kind)

	if status == http.StatusInternalServerError {
		h.logger.WithContext(r.Context()).Error("passkey request failed",
			logger.String("path", r.URL.Path),
			logger.String("kind", kind.String()),
			logger.Error(err))
		h.writeError(w, status, ErrorCodeInternalError, "internal server error")
		return
	}

	message := err.Error()
	var pe *passkey.Error
	if errors.As(err, &pe) && pe.Err != nil {
		message = pe.Err.Error()
	}
	h.writeError(w, status, kind.String(), message)
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			logger.Error(err),
			logger.Int("status", status))
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
