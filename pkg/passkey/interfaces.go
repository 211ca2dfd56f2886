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
	"context"
	"time"
)

// UserStore persists user accounts.
type UserStore interface {
	// Create stores a new user. Returns ErrUserAlreadyExists if the
	// email is taken.
	Create(ctx context.Context, user *User) error

	// GetByEmail retrieves a user by email address. Returns
	// ErrUserNotFound if no such user exists.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByID retrieves a user by identifier. Returns ErrUserNotFound
	// if no such user exists.
	GetByID(ctx context.Context, id string) (*User, error)
}

// CredentialStore persists registered passkeys.
type CredentialStore interface {
	// Create stores a new credential. Returns
	// ErrCredentialAlreadyExists if the credential ID is taken.
	Create(ctx context.Context, cred *Credential) error

	// GetByCredentialID retrieves a credential by its
	// authenticator-assigned identifier. Returns ErrCredentialNotFound
	// if no such credential exists.
	GetByCredentialID(ctx context.Context, credentialID []byte) (*Credential, error)

	// ListByUserID returns all credentials registered to a user, in
	// registration order. An empty slice and nil error means the user
	// has none.
	ListByUserID(ctx context.Context, userID string) ([]*Credential, error)

	// UpdateSignCount advances the credential's signature counter and
	// last-used timestamp. The update is conditional: it only applies
	// while signCount is still greater than the stored value (or zero,
	// for authenticators that never increment), so concurrent
	// authentications cannot move the counter backwards.
	UpdateSignCount(ctx context.Context, credentialID []byte, signCount uint32, usedAt time.Time) error
}

// ChallengeStore persists pending ceremony challenges.
type ChallengeStore interface {
	// Create stores a new challenge.
	Create(ctx context.Context, challenge *Challenge) error

	// Consume atomically retrieves and deletes a challenge by ID. At
	// most one caller ever receives a given challenge. Returns
	// ErrChallengeNotFound if the challenge does not exist, has
	// expired, or was already consumed.
	Consume(ctx context.Context, id string) (*Challenge, error)

	// DeleteExpired removes challenges past their TTL and returns the
	// number removed.
	DeleteExpired(ctx context.Context) (int, error)
}

// TokenIssuer mints and verifies session tokens after a successful
// authentication.
type TokenIssuer interface {
	// Issue creates a signed token for the user.
	Issue(user *User) (string, error)

	// Verify parses and validates a token, returning its claims.
	Verify(token string) (*Claims, error)
}
