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
	"time"
)

// CeremonyKind identifies which ceremony a challenge was issued for. A
// challenge issued for one ceremony is never valid for the other.
type CeremonyKind string

// The two WebAuthn ceremonies.
const (
	CeremonyRegistration   CeremonyKind = "registration"
	CeremonyAuthentication CeremonyKind = "authentication"
)

// User is an account identified by email address.
type User struct {
	// ID is the server-assigned user identifier (UUID).
	ID string `json:"id"`

	// Email is the unique account identifier.
	Email string `json:"email"`

	// Name is the display name shown in authenticator prompts.
	Name string `json:"name"`

	// CreatedAt is when the account was created.
	CreatedAt time.Time `json:"created_at"`
}

// Credential is a registered passkey bound to a user.
type Credential struct {
	// ID is the credential identifier assigned by the authenticator.
	ID []byte `json:"id"`

	// UserID is the owning user's identifier.
	UserID string `json:"user_id"`

	// PublicKey is the credential's public key in COSE format.
	PublicKey []byte `json:"public_key"`

	// AAGUID identifies the authenticator model.
	AAGUID []byte `json:"aaguid,omitempty"`

	// SignCount is the last signature counter accepted for this
	// credential, used for clone detection.
	SignCount uint32 `json:"sign_count"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last completed an
	// authentication.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// Challenge is a single-use random value binding a ceremony's begin and
// complete steps together.
type Challenge struct {
	// ID is the server-assigned challenge identifier (UUID) the client
	// echoes back on completion.
	ID string `json:"id"`

	// Value is the random challenge the authenticator signs over.
	Value []byte `json:"value"`

	// Email is the account the challenge was issued for.
	Email string `json:"email"`

	// Kind is the ceremony the challenge was issued for.
	Kind CeremonyKind `json:"kind"`

	// CreatedAt is when the challenge was issued. Challenges expire a
	// fixed TTL after this instant.
	CreatedAt time.Time `json:"created_at"`
}

// ExpiresAt returns the instant the challenge stops being valid.
func (c *Challenge) ExpiresAt(ttl time.Duration) time.Time {
	return c.CreatedAt.Add(ttl)
}
