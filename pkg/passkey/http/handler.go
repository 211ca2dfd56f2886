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
	"log/slog"
	"net/http"
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// ServiceName is reported in health responses.
const ServiceName = "passkey-server"

// Handler provides HTTP handlers for passkey ceremonies. The handlers
// can be mounted on any HTTP router.
type Handler struct {
	service *passkey.Service
	logger  *slog.Logger
}

// NewHandler creates a new passkey HTTP handler.
func NewHandler(service *passkey.Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// BeginRegistration handles POST /register/begin
//
// Request body:
//
//	{
//	    "email": "user@example.com",
//	    "name": "User Name" // optional
//	}
//
// Response: credential creation options plus "challengeId".
func (h *Handler) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	var req BeginRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "email is required")
		return
	}

	result, err := h.service.BeginRegistration(r.Context(), req.Email, req.Name)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, BeginRegistrationResponse{
		CredentialCreationOptions: result.Options,
		ChallengeID:               result.ChallengeID,
	})
}

// CompleteRegistration handles POST /register/complete
//
// Request body: the attestation fields produced by the authenticator
// plus the challengeId from BeginRegistration.
// Response: 201 with the created user and a session token.
func (h *Handler) CompleteRegistration(w http.ResponseWriter, r *http.Request) {
	var req CompleteRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}

	user, token, err := h.service.FinishRegistration(r.Context(), passkey.FinishRegistrationRequest{
		Email:             req.Email,
		Name:              req.Name,
		ChallengeID:       req.ChallengeID,
		CredentialID:      req.CredentialID,
		AttestationObject: req.AuthenticatorData,
		ClientDataJSON:    req.ClientDataJSON,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, AuthResponse{
		Success: true,
		Message: "Registration successful",
		User:    toUserResponse(user),
		Token:   token,
	})
}

// BeginSignin handles POST /signin/begin
//
// Request body:
//
//	{
//	    "email": "user@example.com"
//	}
//
// Omitting the email starts a discoverable-credential ceremony with no
// allow list; the server resolves the user from the credential the
// client presents on completion.
// Response: credential request options plus "challengeId".
func (h *Handler) BeginSignin(w http.ResponseWriter, r *http.Request) {
	var req BeginSigninRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}

	var result *passkey.AuthenticationChallenge
	var err error
	if req.Email == "" {
		result, err = h.service.BeginDiscoverableAuthentication(r.Context())
	} else {
		result, err = h.service.BeginAuthentication(r.Context(), req.Email)
	}
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, BeginSigninResponse{
		CredentialRequestOptions: result.Options,
		ChallengeID:              result.ChallengeID,
	})
}

// CompleteSignin handles POST /signin/complete
//
// Request body: the assertion fields produced by the authenticator plus
// the challengeId from BeginSignin.
// Response: the authenticated user and a session token.
func (h *Handler) CompleteSignin(w http.ResponseWriter, r *http.Request) {
	var req CompleteSigninRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}

	user, token, err := h.service.FinishAuthentication(r.Context(), passkey.FinishAuthenticationRequest{
		Email:             req.Email,
		ChallengeID:       req.ChallengeID,
		CredentialID:      req.CredentialID,
		AuthenticatorData: req.AuthenticatorData,
		ClientDataJSON:    req.ClientDataJSON,
		Signature:         req.Signature,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, AuthResponse{
		Success: true,
		Message: "Authentication successful",
		User:    toUserResponse(user),
		Token:   token,
	})
}

// Profile handles GET /profile
//
// Requires a Bearer token issued by a completed signin or registration.
// Response: the token's user.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "authentication required")
		return
	}

	user, err := h.service.GetUser(r.Context(), claims.UserID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ProfileResponse{User: toUserResponse(user)})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "OK",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Service:   ServiceName,
	})
}

// handleServiceError maps service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, passkey.ErrUserAlreadyExists):
		h.writeError(w, http.StatusConflict, ErrorCodeConflict, "user with this email already exists")
	case errors.Is(err, passkey.ErrCredentialAlreadyExists):
		h.writeError(w, http.StatusConflict, ErrorCodeConflict, "credential already exists")
	case errors.Is(err, passkey.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, ErrorCodeUserNotFound, "user not found")
	case errors.Is(err, passkey.ErrNoCredentials):
		h.writeError(w, http.StatusBadRequest, ErrorCodeNoCredentials, "no credentials found for user")
	case errors.Is(err, passkey.ErrChallengeNotFound):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidChallenge, "invalid or expired challenge")
	case errors.Is(err, passkey.ErrCredentialNotFound):
		h.writeError(w, http.StatusBadRequest, ErrorCodeVerificationFailed, "invalid credentials")
	case errors.Is(err, passkey.ErrSuspectedClone):
		h.writeError(w, http.StatusBadRequest, ErrorCodeSuspectedClone, "credential rejected")
	case errors.Is(err, passkey.ErrMalformedResponse):
		h.writeError(w, http.StatusBadRequest, ErrorCodeMalformedResponse, "malformed authenticator response")
	case errors.Is(err, passkey.ErrVerificationFailed):
		h.writeError(w, http.StatusBadRequest, ErrorCodeVerificationFailed, "verification failed")
	case errors.Is(err, passkey.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "missing required fields")
	default:
		h.logger.Error("unhandled service error", slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
	}
}

func toUserResponse(user *passkey.User) UserResponse {
	return UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
	}
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
