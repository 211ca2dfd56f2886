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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTIssuer_RoundTrip(t *testing.T) {
	issuer, err := NewJWTIssuer([]byte("secret"), 0)
	require.NoError(t, err)

	user := &User{ID: "u1", Email: "alice@example.com"}
	token, err := issuer.Issue(user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "u1", claims.Subject)
	assert.WithinDuration(t,
		time.Now().Add(DefaultTokenTTL), claims.ExpiresAt.Time, time.Minute)
}

func TestJWTIssuer_WrongSecret(t *testing.T) {
	issuer, err := NewJWTIssuer([]byte("secret"), 0)
	require.NoError(t, err)
	other, err := NewJWTIssuer([]byte("other-secret"), 0)
	require.NoError(t, err)

	token, err := issuer.Issue(&User{ID: "u1", Email: "alice@example.com"})
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTIssuer_Tampered(t *testing.T) {
	issuer, err := NewJWTIssuer([]byte("secret"), 0)
	require.NoError(t, err)

	token, err := issuer.Issue(&User{ID: "u1", Email: "alice@example.com"})
	require.NoError(t, err)

	_, err = issuer.Verify(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Verify("not a token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTIssuer_Expired(t *testing.T) {
	issuer, err := NewJWTIssuer([]byte("secret"), -time.Hour)
	require.NoError(t, err)

	token, err := issuer.Issue(&User{ID: "u1", Email: "alice@example.com"})
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewJWTIssuer_RequiresSecret(t *testing.T) {
	_, err := NewJWTIssuer(nil, 0)
	assert.Error(t, err)
}
