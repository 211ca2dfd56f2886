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

package protocol

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRPID   = "example.com"
	testOrigin = "https://example.com"
)

func newChallenge(t *testing.T) []byte {
	t.Helper()
	challenge := make([]byte, 32)
	_, err := rand.Read(challenge)
	require.NoError(t, err)
	return challenge
}

func TestVerifyAttestation(t *testing.T) {
	for _, alg := range []Algorithm{ES256, RS256, EdDSA} {
		t.Run(alg.String(), func(t *testing.T) {
			verifier := NewVerifier(testRPID, []string{testOrigin})
			auth, err := NewMockAuthenticator(testRPID, WithAlgorithm(alg))
			require.NoError(t, err)

			challenge := newChallenge(t)
			attObj, clientDataJSON, err := auth.CreateAttestation(challenge, testOrigin)
			require.NoError(t, err)

			result, err := verifier.VerifyAttestation(attObj, clientDataJSON, challenge)
			require.NoError(t, err)
			assert.Equal(t, auth.CredentialID, result.CredentialID)
			assert.Equal(t, alg, result.PublicKey.Algorithm)
			assert.Equal(t, auth.AAGUID, result.AAGUID)
			assert.Equal(t, uint32(0), result.Counter)
			assert.NotEmpty(t, result.PublicKey.Raw)
		})
	}
}

func TestVerifyAttestation_ChallengeMismatch(t *testing.T) {
	verifier := NewVerifier(testRPID, []string{testOrigin})
	auth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	attObj, clientDataJSON, err := auth.CreateAttestation(newChallenge(t), testOrigin)
	require.NoError(t, err)

	_, err = verifier.VerifyAttestation(attObj, clientDataJSON, newChallenge(t))
	assert.ErrorIs(t, err, ErrVerification)
}

func TestVerifyAttestation_OriginMismatch(t *testing.T) {
	verifier := NewVerifier(testRPID, []string{testOrigin})
	auth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	challenge := newChallenge(t)
	attObj, clientDataJSON, err := auth.CreateAttestation(challenge, "https://evil.example.org")
	require.NoError(t, err)

	_, err = verifier.VerifyAttestation(attObj, clientDataJSON, challenge)
	assert.ErrorIs(t, err, ErrVerification)
}

func TestVerifyAttestation_RPIDMismatch(t *testing.T) {
	verifier := NewVerifier(testRPID, []string{testOrigin})
	auth, err := NewMockAuthenticator("other.example.org")
	require.NoError(t, err)

	challenge := newChallenge(t)
	attObj, clientDataJSON, err := auth.CreateAttestation(challenge, testOrigin)
	require.NoError(t, err)

	_, err = verifier.VerifyAttestation(attObj, clientDataJSON, challenge)
	assert.ErrorIs(t, err, ErrVerification)
}

func TestVerifyAttestation_UserNotPresent(t *testing.T) {
	verifier := NewVerifier(testRPID, []string{testOrigin})
	auth, err := NewMockAuthenticator(testRPID, WithUserPresent(false))
	require.NoError(t, err)

	challenge := newChallenge(t)
	attObj, clientDataJSON, err := auth.CreateAttestation(challenge, testOrigin)
	require.NoError(t, err)

	_, err = verifier.VerifyAttestation(attObj, clientDataJSON, challenge)
	assert.ErrorIs(t, err, ErrVerification)
}

func TestVerifyAttestation_MalformedCBOR(t *testing.T) {
	verifier := NewVerifier(testRPID, []string{testOrigin})

	_, err := verifier.VerifyAttestation([]byte{0xff, 0x00, 0x01}, []byte(`{}`), newChallenge(t))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerifyAttestation_MalformedClientData(t *testing.T) {
	verifier := NewVerifier(testRPID, []string{testOrigin})
	auth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	challenge := newChallenge(t)
	attObj, _, err := auth.CreateAttestation(challenge, testOrigin)
	require.NoError(t, err)

	_, err = verifier.VerifyAttestation(attObj, []byte(`not json`), challenge)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerifyAssertion(t *testing.T) {
	for _, alg := range []Algorithm{ES256, RS256, EdDSA} {
		t.Run(alg.String(), func(t *testing.T) {
			verifier := NewVerifier(testRPID, []string{testOrigin})
			auth, err := NewMockAuthenticator(testRPID, WithAlgorithm(alg))
			require.NoError(t, err)

			regChallenge := newChallenge(t)
			attObj, regClientData, err := auth.CreateAttestation(regChallenge, testOrigin)
			require.NoError(t, err)
			registered, err := verifier.VerifyAttestation(attObj, regClientData, regChallenge)
			require.NoError(t, err)

			challenge := newChallenge(t)
			authData, clientDataJSON, signature, err := auth.CreateAssertion(challenge, testOrigin)
			require.NoError(t, err)

			counter, err := verifier.VerifyAssertion(
				authData, clientDataJSON, signature, challenge, registered.PublicKey.Raw)
			require.NoError(t, err)
			assert.Equal(t, uint32(1), counter)
		})
	}
}

func TestVerifyAssertion_CounterAdvances(t *testing.T) {
	verifier := NewVerifier(testRPID, []string{testOrigin})
	auth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	pubKey, err := auth.PublicKeyBytes()
	require.NoError(t, err)

	var last uint32
	for i := 0; i < 3; i++ {
		challenge := newChallenge(t)
		authData, clientDataJSON, signature, err := auth.CreateAssertion(challenge, testOrigin)
		require.NoError(t, err)

		counter, err := verifier.VerifyAssertion(authData, clientDataJSON, signature, challenge, pubKey)
		require.NoError(t, err)
		assert.Greater(t, counter, last)
		last = counter
	}
}

func TestVerifyAssertion_TamperedSignature(t *testing.T) {
	verifier := NewVerifier(testRPID, []string{testOrigin})
	auth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	pubKey, err := auth.PublicKeyBytes()
	require.NoError(t, err)

	challenge := newChallenge(t)
	authData, clientDataJSON, signature, err := auth.CreateAssertion(challenge, testOrigin)
	require.NoError(t, err)

	signature[len(signature)-1] ^= 0xff
	_, err = verifier.VerifyAssertion(authData, clientDataJSON, signature, challenge, pubKey)
	assert.ErrorIs(t, err, ErrVerification)
}

func TestVerifyAssertion_WrongKey(t *testing.T) {
	verifier := NewVerifier(testRPID, []string{testOrigin})
	auth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	other, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	otherKey, err := other.PublicKeyBytes()
	require.NoError(t, err)

	challenge := newChallenge(t)
	authData, clientDataJSON, signature, err := auth.CreateAssertion(challenge, testOrigin)
	require.NoError(t, err)

	_, err = verifier.VerifyAssertion(authData, clientDataJSON, signature, challenge, otherKey)
	assert.ErrorIs(t, err, ErrVerification)
}

func TestVerifyAssertion_ForgedChallenge(t *testing.T) {
	verifier := NewVerifier(testRPID, []string{testOrigin})
	auth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	pubKey, err := auth.PublicKeyBytes()
	require.NoError(t, err)

	authData, clientDataJSON, signature, err := auth.CreateAssertion(newChallenge(t), testOrigin)
	require.NoError(t, err)

	_, err = verifier.VerifyAssertion(authData, clientDataJSON, signature, newChallenge(t), pubKey)
	assert.ErrorIs(t, err, ErrVerification)
}

func TestVerifyAssertion_TruncatedAuthData(t *testing.T) {
	verifier := NewVerifier(testRPID, []string{testOrigin})
	auth, err := NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	pubKey, err := auth.PublicKeyBytes()
	require.NoError(t, err)

	challenge := newChallenge(t)
	authData, clientDataJSON, signature, err := auth.CreateAssertion(challenge, testOrigin)
	require.NoError(t, err)

	_, err = verifier.VerifyAssertion(authData[:20], clientDataJSON, signature, challenge, pubKey)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerifyAssertion_RequireUserVerification(t *testing.T) {
	verifier := NewVerifier(testRPID, []string{testOrigin})
	verifier.RequireUserVerification = true

	auth, err := NewMockAuthenticator(testRPID, WithUserVerified(false))
	require.NoError(t, err)

	pubKey, err := auth.PublicKeyBytes()
	require.NoError(t, err)

	challenge := newChallenge(t)
	authData, clientDataJSON, signature, err := auth.CreateAssertion(challenge, testOrigin)
	require.NoError(t, err)

	_, err = verifier.VerifyAssertion(authData, clientDataJSON, signature, challenge, pubKey)
	assert.ErrorIs(t, err, ErrVerification)
}

func TestParsePublicKey_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"garbage", []byte{0xde, 0xad, 0xbe, 0xef}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePublicKey(tt.raw)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}
