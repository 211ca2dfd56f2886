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

package passkey

import (
	"errors"
	"fmt"
)

// Sentinel errors for passkey operations.
var (
	// ErrUserNotFound is returned when a user cannot be found.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists is returned when registering an email that is
	// already taken.
	ErrUserAlreadyExists = errors.New("user with this email already exists")

	// ErrCredentialNotFound is returned when a credential cannot be found.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrCredentialAlreadyExists is returned when registering a duplicate
	// credential ID.
	ErrCredentialAlreadyExists = errors.New("credential already exists")

	// ErrChallengeNotFound is returned when a challenge is unknown, has
	// expired, was already consumed, or does not match the ceremony it is
	// presented for. The message deliberately does not reveal which.
	ErrChallengeNotFound = errors.New("invalid or expired challenge")

	// ErrNoCredentials is returned when a user has no registered
	// credentials to authenticate with.
	ErrNoCredentials = errors.New("no credentials found for user")

	// ErrInvalidRequest is returned when a request is missing required
	// fields or carries invalid values.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrMalformedResponse is returned when an authenticator response
	// cannot be decoded: bad base64, bad CBOR, bad JSON, or a truncated
	// byte layout.
	ErrMalformedResponse = errors.New("malformed authenticator response")

	// ErrVerificationFailed is returned when a well-formed authenticator
	// response fails a binding or signature check.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrSuspectedClone is returned when an otherwise valid assertion
	// reports a signature counter that did not advance, indicating a
	// possible cloned authenticator.
	ErrSuspectedClone = errors.New("suspected cloned authenticator")

	// ErrNotConfigured is returned when the service is not properly
	// configured.
	ErrNotConfigured = errors.New("passkey service not configured")
)

// PasskeyError wraps an error with the operation that produced it.
type PasskeyError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *PasskeyError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *PasskeyError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *PasskeyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new PasskeyError with the given operation and error.
func NewError(op string, err error) error {
	return &PasskeyError{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// IsUserNotFound returns true if the error indicates a user was not found.
func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// IsChallengeNotFound returns true if the error indicates an invalid or
// expired challenge.
func IsChallengeNotFound(err error) bool {
	return errors.Is(err, ErrChallengeNotFound)
}

// IsVerificationFailed returns true if the error indicates verification
// failed.
func IsVerificationFailed(err error) bool {
	return errors.Is(err, ErrVerificationFailed)
}

// IsSuspectedClone returns true if the error indicates a suspected
// cloned authenticator.
func IsSuspectedClone(err error) bool {
	return errors.Is(err, ErrSuspectedClone)
}
