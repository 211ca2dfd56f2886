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
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-passkey/pkg/passkey/protocol"
)

const (
	testRPID   = "example.com"
	testOrigin = "https://example.com"
	testEmail  = "alice@example.com"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	issuer, err := NewJWTIssuer([]byte("test-secret"), 0)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Config: &Config{
			RPID:          testRPID,
			RPDisplayName: "Example Corp",
			RPOrigins:     []string{testOrigin},
		},
		UserStore:       NewMemoryUserStore(),
		CredentialStore: NewMemoryCredentialStore(),
		ChallengeStore:  NewMemoryChallengeStore(5 * time.Minute),
		TokenIssuer:     issuer,
	})
	require.NoError(t, err)
	return svc
}

func decodeChallenge(t *testing.T, encoded string) []byte {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	require.NoError(t, err)
	return raw
}

// register drives a full registration ceremony for email using the
// given mock authenticator.
func register(t *testing.T, svc *Service, auth *protocol.MockAuthenticator, email string) *User {
	t.Helper()
	ctx := context.Background()

	begin, err := svc.BeginRegistration(ctx, email, "")
	require.NoError(t, err)
	require.NotEmpty(t, begin.ChallengeID)
	require.Equal(t, testRPID, begin.Options.RelyingParty.ID)

	challenge := decodeChallenge(t, begin.Options.Challenge)
	attObj, clientDataJSON, err := auth.CreateAttestation(challenge, testOrigin)
	require.NoError(t, err)

	user, _, err := svc.FinishRegistration(ctx, FinishRegistrationRequest{
		Email:             email,
		ChallengeID:       begin.ChallengeID,
		CredentialID:      base64.RawURLEncoding.EncodeToString(auth.CredentialID),
		AttestationObject: base64.RawURLEncoding.EncodeToString(attObj),
		ClientDataJSON:    base64.RawURLEncoding.EncodeToString(clientDataJSON),
	})
	require.NoError(t, err)
	return user
}

// signin drives a full authentication ceremony for email.
func signin(t *testing.T, svc *Service, auth *protocol.MockAuthenticator, email string) (*User, string, error) {
	t.Helper()
	ctx := context.Background()

	begin, err := svc.BeginAuthentication(ctx, email)
	require.NoError(t, err)

	challenge := decodeChallenge(t, begin.Options.Challenge)
	authData, clientDataJSON, signature, err := auth.CreateAssertion(challenge, testOrigin)
	require.NoError(t, err)

	return svc.FinishAuthentication(ctx, FinishAuthenticationRequest{
		Email:             email,
		ChallengeID:       begin.ChallengeID,
		CredentialID:      base64.RawURLEncoding.EncodeToString(auth.CredentialID),
		AuthenticatorData: base64.RawURLEncoding.EncodeToString(authData),
		ClientDataJSON:    base64.RawURLEncoding.EncodeToString(clientDataJSON),
		Signature:         base64.RawURLEncoding.EncodeToString(signature),
	})
}

func TestRegistration(t *testing.T) {
	svc := newTestService(t)
	auth, err := protocol.NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	user := register(t, svc, auth, testEmail)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, testEmail, user.Email)
	assert.Equal(t, testEmail, user.Name)

	creds, err := svc.creds.ListByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, auth.CredentialID, creds[0].ID)
	assert.Equal(t, uint32(0), creds[0].SignCount)
}

func TestRegistration_DisplayName(t *testing.T) {
	svc := newTestService(t)
	auth, err := protocol.NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	ctx := context.Background()

	begin, err := svc.BeginRegistration(ctx, testEmail, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", begin.Options.User.DisplayName)

	challenge := decodeChallenge(t, begin.Options.Challenge)
	attObj, clientDataJSON, err := auth.CreateAttestation(challenge, testOrigin)
	require.NoError(t, err)

	user, _, err := svc.FinishRegistration(ctx, FinishRegistrationRequest{
		Email:             testEmail,
		Name:              "Alice",
		ChallengeID:       begin.ChallengeID,
		CredentialID:      base64.RawURLEncoding.EncodeToString(auth.CredentialID),
		AttestationObject: base64.RawURLEncoding.EncodeToString(attObj),
		ClientDataJSON:    base64.RawURLEncoding.EncodeToString(clientDataJSON),
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Name)
}

func TestBeginRegistration_DuplicateEmail(t *testing.T) {
	svc := newTestService(t)
	auth, err := protocol.NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	register(t, svc, auth, testEmail)

	_, err = svc.BeginRegistration(context.Background(), testEmail, "")
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestBeginRegistration_EmptyEmail(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.BeginRegistration(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestFinishRegistration_ChallengeReplay(t *testing.T) {
	svc := newTestService(t)
	auth, err := protocol.NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	ctx := context.Background()

	begin, err := svc.BeginRegistration(ctx, testEmail, "")
	require.NoError(t, err)

	challenge := decodeChallenge(t, begin.Options.Challenge)
	attObj, clientDataJSON, err := auth.CreateAttestation(challenge, testOrigin)
	require.NoError(t, err)

	req := FinishRegistrationRequest{
		Email:             testEmail,
		ChallengeID:       begin.ChallengeID,
		CredentialID:      base64.RawURLEncoding.EncodeToString(auth.CredentialID),
		AttestationObject: base64.RawURLEncoding.EncodeToString(attObj),
		ClientDataJSON:    base64.RawURLEncoding.EncodeToString(clientDataJSON),
	}

	_, _, err = svc.FinishRegistration(ctx, req)
	require.NoError(t, err)

	// The challenge was consumed by the first completion.
	_, _, err = svc.FinishRegistration(ctx, req)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestFinishRegistration_ChallengeBurnsOnFailure(t *testing.T) {
	svc := newTestService(t)
	auth, err := protocol.NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	ctx := context.Background()

	begin, err := svc.BeginRegistration(ctx, testEmail, "")
	require.NoError(t, err)

	// Sign over the wrong challenge so verification fails.
	attObj, clientDataJSON, err := auth.CreateAttestation([]byte("wrong challenge value"), testOrigin)
	require.NoError(t, err)

	req := FinishRegistrationRequest{
		Email:             testEmail,
		ChallengeID:       begin.ChallengeID,
		CredentialID:      base64.RawURLEncoding.EncodeToString(auth.CredentialID),
		AttestationObject: base64.RawURLEncoding.EncodeToString(attObj),
		ClientDataJSON:    base64.RawURLEncoding.EncodeToString(clientDataJSON),
	}

	_, _, err = svc.FinishRegistration(ctx, req)
	assert.ErrorIs(t, err, ErrVerificationFailed)

	// The failed attempt still consumed the challenge.
	_, _, err = svc.FinishRegistration(ctx, req)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestFinishRegistration_EmailMismatch(t *testing.T) {
	svc := newTestService(t)
	auth, err := protocol.NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	ctx := context.Background()

	begin, err := svc.BeginRegistration(ctx, testEmail, "")
	require.NoError(t, err)

	challenge := decodeChallenge(t, begin.Options.Challenge)
	attObj, clientDataJSON, err := auth.CreateAttestation(challenge, testOrigin)
	require.NoError(t, err)

	_, _, err = svc.FinishRegistration(ctx, FinishRegistrationRequest{
		Email:             "mallory@example.com",
		ChallengeID:       begin.ChallengeID,
		CredentialID:      base64.RawURLEncoding.EncodeToString(auth.CredentialID),
		AttestationObject: base64.RawURLEncoding.EncodeToString(attObj),
		ClientDataJSON:    base64.RawURLEncoding.EncodeToString(clientDataJSON),
	})
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestFinishRegistration_MalformedBase64(t *testing.T) {
	svc := newTestService(t)

	_, _, err := svc.FinishRegistration(context.Background(), FinishRegistrationRequest{
		Email:             testEmail,
		ChallengeID:       "some-challenge-id",
		CredentialID:      "!!not base64!!",
		AttestationObject: "AAAA",
		ClientDataJSON:    "AAAA",
	})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestFinishRegistration_MissingFields(t *testing.T) {
	svc := newTestService(t)

	_, _, err := svc.FinishRegistration(context.Background(), FinishRegistrationRequest{
		Email: testEmail,
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestAuthentication(t *testing.T) {
	svc := newTestService(t)
	auth, err := protocol.NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	registered := register(t, svc, auth, testEmail)

	user, token, err := signin(t, svc, auth, testEmail)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	require.NotEmpty(t, token)

	claims, err := svc.tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, claims.UserID)
	assert.Equal(t, testEmail, claims.Email)
}

func TestAuthentication_CounterAdvances(t *testing.T) {
	svc := newTestService(t)
	auth, err := protocol.NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	ctx := context.Background()

	register(t, svc, auth, testEmail)

	for i := 1; i <= 3; i++ {
		_, _, err := signin(t, svc, auth, testEmail)
		require.NoError(t, err)

		cred, err := svc.creds.GetByCredentialID(ctx, auth.CredentialID)
		require.NoError(t, err)
		assert.Equal(t, uint32(i), cred.SignCount)
		assert.False(t, cred.LastUsedAt.IsZero())
	}
}

func TestBeginAuthentication_UnknownUser(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.BeginAuthentication(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestBeginAuthentication_NoCredentials(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.users.Create(ctx, &User{
		ID:        "user-1",
		Email:     testEmail,
		Name:      testEmail,
		CreatedAt: time.Now(),
	}))

	_, err := svc.BeginAuthentication(ctx, testEmail)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestBeginAuthentication_AllowList(t *testing.T) {
	svc := newTestService(t)
	auth, err := protocol.NewMockAuthenticator(testRPID)
	require.NoError(t, err)

	register(t, svc, auth, testEmail)

	begin, err := svc.BeginAuthentication(context.Background(), testEmail)
	require.NoError(t, err)
	require.Len(t, begin.Options.AllowCredentials, 1)
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(auth.CredentialID),
		begin.Options.AllowCredentials[0].ID)
	assert.Equal(t, testRPID, begin.Options.RPID)
}

func TestFinishAuthentication_CloneDetection(t *testing.T) {
	svc := newTestService(t)
	auth, err := protocol.NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	ctx := context.Background()

	register(t, svc, auth, testEmail)

	_, _, err = signin(t, svc, auth, testEmail)
	require.NoError(t, err)

	// Replay the counter of a cloned device: the stored counter is now
	// 1, so a fresh assertion reporting 1 again must be rejected.
	auth.SetSignCount(0)
	_, _, err = signin(t, svc, auth, testEmail)
	assert.ErrorIs(t, err, ErrSuspectedClone)

	// The stored counter is untouched by the rejected attempt.
	cred, err := svc.creds.GetByCredentialID(ctx, auth.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), cred.SignCount)

	// A genuine counter advance recovers.
	auth.SetSignCount(5)
	_, _, err = signin(t, svc, auth, testEmail)
	require.NoError(t, err)
}

func TestFinishAuthentication_UnknownCredential(t *testing.T) {
	svc := newTestService(t)
	auth, err := protocol.NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	ctx := context.Background()

	register(t, svc, auth, testEmail)

	begin, err := svc.BeginAuthentication(ctx, testEmail)
	require.NoError(t, err)

	challenge := decodeChallenge(t, begin.Options.Challenge)
	authData, clientDataJSON, signature, err := auth.CreateAssertion(challenge, testOrigin)
	require.NoError(t, err)

	_, _, err = svc.FinishAuthentication(ctx, FinishAuthenticationRequest{
		Email:             testEmail,
		ChallengeID:       begin.ChallengeID,
		CredentialID:      base64.RawURLEncoding.EncodeToString([]byte("unknown credential")),
		AuthenticatorData: base64.RawURLEncoding.EncodeToString(authData),
		ClientDataJSON:    base64.RawURLEncoding.EncodeToString(clientDataJSON),
		Signature:         base64.RawURLEncoding.EncodeToString(signature),
	})
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestFinishAuthentication_CrossCeremonyChallenge(t *testing.T) {
	svc := newTestService(t)
	auth, err := protocol.NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	ctx := context.Background()

	register(t, svc, auth, testEmail)

	// A registration challenge must not complete an authentication.
	begin, err := svc.BeginRegistration(ctx, "bob@example.com", "")
	require.NoError(t, err)

	challenge := decodeChallenge(t, begin.Options.Challenge)
	authData, clientDataJSON, signature, err := auth.CreateAssertion(challenge, testOrigin)
	require.NoError(t, err)

	_, _, err = svc.FinishAuthentication(ctx, FinishAuthenticationRequest{
		Email:             "bob@example.com",
		ChallengeID:       begin.ChallengeID,
		CredentialID:      base64.RawURLEncoding.EncodeToString(auth.CredentialID),
		AuthenticatorData: base64.RawURLEncoding.EncodeToString(authData),
		ClientDataJSON:    base64.RawURLEncoding.EncodeToString(clientDataJSON),
		Signature:         base64.RawURLEncoding.EncodeToString(signature),
	})
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestFinishAuthentication_ConcurrentSingleUse(t *testing.T) {
	svc := newTestService(t)
	auth, err := protocol.NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	ctx := context.Background()

	register(t, svc, auth, testEmail)

	begin, err := svc.BeginAuthentication(ctx, testEmail)
	require.NoError(t, err)

	challenge := decodeChallenge(t, begin.Options.Challenge)
	authData, clientDataJSON, signature, err := auth.CreateAssertion(challenge, testOrigin)
	require.NoError(t, err)

	req := FinishAuthenticationRequest{
		Email:             testEmail,
		ChallengeID:       begin.ChallengeID,
		CredentialID:      base64.RawURLEncoding.EncodeToString(auth.CredentialID),
		AuthenticatorData: base64.RawURLEncoding.EncodeToString(authData),
		ClientDataJSON:    base64.RawURLEncoding.EncodeToString(clientDataJSON),
		Signature:         base64.RawURLEncoding.EncodeToString(signature),
	}

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.FinishAuthentication(ctx, req)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrChallengeNotFound)
		}
	}
	assert.Equal(t, 1, successes)
}

func TestFinishAuthentication_CredentialOfAnotherUser(t *testing.T) {
	svc := newTestService(t)
	aliceAuth, err := protocol.NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	bobAuth, err := protocol.NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	ctx := context.Background()

	register(t, svc, aliceAuth, testEmail)
	register(t, svc, bobAuth, "bob@example.com")

	// Bob presents Alice's credential ID with his own challenge.
	begin, err := svc.BeginAuthentication(ctx, "bob@example.com")
	require.NoError(t, err)

	challenge := decodeChallenge(t, begin.Options.Challenge)
	authData, clientDataJSON, signature, err := bobAuth.CreateAssertion(challenge, testOrigin)
	require.NoError(t, err)

	_, _, err = svc.FinishAuthentication(ctx, FinishAuthenticationRequest{
		Email:             "bob@example.com",
		ChallengeID:       begin.ChallengeID,
		CredentialID:      base64.RawURLEncoding.EncodeToString(aliceAuth.CredentialID),
		AuthenticatorData: base64.RawURLEncoding.EncodeToString(authData),
		ClientDataJSON:    base64.RawURLEncoding.EncodeToString(clientDataJSON),
		Signature:         base64.RawURLEncoding.EncodeToString(signature),
	})
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)

	_, err = NewService(ServiceParams{
		Config:          &Config{},
		UserStore:       NewMemoryUserStore(),
		CredentialStore: NewMemoryCredentialStore(),
		ChallengeStore:  NewMemoryChallengeStore(time.Minute),
	})
	assert.Error(t, err)
}

func TestDiscoverableAuthentication(t *testing.T) {
	svc := newTestService(t)
	auth, err := protocol.NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	ctx := context.Background()

	registered := register(t, svc, auth, testEmail)

	begin, err := svc.BeginDiscoverableAuthentication(ctx)
	require.NoError(t, err)
	assert.Empty(t, begin.Options.AllowCredentials)

	challenge := decodeChallenge(t, begin.Options.Challenge)
	authData, clientDataJSON, signature, err := auth.CreateAssertion(challenge, testOrigin)
	require.NoError(t, err)

	user, token, err := svc.FinishAuthentication(ctx, FinishAuthenticationRequest{
		ChallengeID:       begin.ChallengeID,
		CredentialID:      base64.RawURLEncoding.EncodeToString(auth.CredentialID),
		AuthenticatorData: base64.RawURLEncoding.EncodeToString(authData),
		ClientDataJSON:    base64.RawURLEncoding.EncodeToString(clientDataJSON),
		Signature:         base64.RawURLEncoding.EncodeToString(signature),
	})
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	assert.NotEmpty(t, token)
}

func TestDiscoverableChallenge_AcceptsEmail(t *testing.T) {
	svc := newTestService(t)
	auth, err := protocol.NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	ctx := context.Background()

	register(t, svc, auth, testEmail)

	begin, err := svc.BeginDiscoverableAuthentication(ctx)
	require.NoError(t, err)

	challenge := decodeChallenge(t, begin.Options.Challenge)
	authData, clientDataJSON, signature, err := auth.CreateAssertion(challenge, testOrigin)
	require.NoError(t, err)

	user, _, err := svc.FinishAuthentication(ctx, FinishAuthenticationRequest{
		Email:             testEmail,
		ChallengeID:       begin.ChallengeID,
		CredentialID:      base64.RawURLEncoding.EncodeToString(auth.CredentialID),
		AuthenticatorData: base64.RawURLEncoding.EncodeToString(authData),
		ClientDataJSON:    base64.RawURLEncoding.EncodeToString(clientDataJSON),
		Signature:         base64.RawURLEncoding.EncodeToString(signature),
	})
	require.NoError(t, err)
	assert.Equal(t, testEmail, user.Email)
}

func TestBoundChallenge_RequiresEmail(t *testing.T) {
	svc := newTestService(t)
	auth, err := protocol.NewMockAuthenticator(testRPID)
	require.NoError(t, err)
	ctx := context.Background()

	register(t, svc, auth, testEmail)

	begin, err := svc.BeginAuthentication(ctx, testEmail)
	require.NoError(t, err)

	challenge := decodeChallenge(t, begin.Options.Challenge)
	authData, clientDataJSON, signature, err := auth.CreateAssertion(challenge, testOrigin)
	require.NoError(t, err)

	_, _, err = svc.FinishAuthentication(ctx, FinishAuthenticationRequest{
		ChallengeID:       begin.ChallengeID,
		CredentialID:      base64.RawURLEncoding.EncodeToString(auth.CredentialID),
		AuthenticatorData: base64.RawURLEncoding.EncodeToString(authData),
		ClientDataJSON:    base64.RawURLEncoding.EncodeToString(clientDataJSON),
		Signature:         base64.RawURLEncoding.EncodeToString(signature),
	})
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}
