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
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
)

// BeginRegistrationRequest is the request body for POST /register/begin.
type BeginRegistrationRequest struct {
	// Email is the user's email address (required).
	Email string `json:"email"`

	// Name is the user's display name (optional, defaults to email).
	Name string `json:"name,omitempty"`
}

// BeginRegistrationResponse carries the credential creation options
// plus the challenge identifier the client echoes back on completion.
type BeginRegistrationResponse struct {
	*passkey.CredentialCreationOptions
	ChallengeID string `json:"challengeId"`
}

// CompleteRegistrationRequest is the request body for
// POST /register/complete. Binary fields are unpadded URL-safe base64.
// The authenticatorData field carries the full CBOR attestation object;
// the credential public key is extracted server-side from it, so any
// client-supplied publicKey field is ignored.
type CompleteRegistrationRequest struct {
	Email             string `json:"email"`
	Name              string `json:"name,omitempty"`
	CredentialID      string `json:"credentialId"`
	AuthenticatorData string `json:"authenticatorData"`
	ClientDataJSON    string `json:"clientDataJSON"`
	ChallengeID       string `json:"challengeId"`
}

// BeginSigninRequest is the request body for POST /signin/begin. An
// empty email starts a discoverable-credential ceremony.
type BeginSigninRequest struct {
	Email string `json:"email,omitempty"`
}

// BeginSigninResponse carries the credential request options plus the
// challenge identifier the client echoes back on completion.
type BeginSigninResponse struct {
	*passkey.CredentialRequestOptions
	ChallengeID string `json:"challengeId"`
}

// CompleteSigninRequest is the request body for POST /signin/complete.
// Binary fields are unpadded URL-safe base64.
type CompleteSigninRequest struct {
	Email             string `json:"email"`
	CredentialID      string `json:"credentialId"`
	AuthenticatorData string `json:"authenticatorData"`
	ClientDataJSON    string `json:"clientDataJSON"`
	Signature         string `json:"signature"`
	ChallengeID       string `json:"challengeId"`
}

// UserResponse is the user representation in API responses.
type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
}

// AuthResponse is the response after a successful registration or
// signin.
type AuthResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	User    UserResponse `json:"user"`
	Token   string       `json:"token"`
}

// ProfileResponse is the response for GET /profile.
type ProfileResponse struct {
	User UserResponse `json:"user"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
}

// ErrorResponse is the response format for errors.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeConflict           = "conflict"
	ErrorCodeInvalidChallenge   = "invalid_challenge"
	ErrorCodeUserNotFound       = "user_not_found"
	ErrorCodeNoCredentials      = "no_credentials"
	ErrorCodeMalformedResponse  = "malformed_response"
	ErrorCodeVerificationFailed = "verification_failed"
	ErrorCodeSuspectedClone     = "suspected_clone"
	ErrorCodeUnauthorized       = "unauthorized"
	ErrorCodeInternalError      = "internal_error"
)
