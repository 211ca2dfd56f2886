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
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-passkey/pkg/passkey/protocol"
)

// Service provides passkey registration and authentication operations.
type Service struct {
	config     *Config
	users      UserStore
	creds      CredentialStore
	challenges ChallengeStore
	verifier   *protocol.Verifier
	tokens     TokenIssuer
	logger     *slog.Logger
	configured bool
}

// ServiceParams contains dependencies for creating a passkey service.
type ServiceParams struct {
	// Config is the passkey configuration (required).
	Config *Config

	// UserStore is the user persistence layer (required).
	UserStore UserStore

	// CredentialStore is the credential persistence layer (required).
	CredentialStore CredentialStore

	// ChallengeStore is the challenge persistence layer (required).
	ChallengeStore ChallengeStore

	// TokenIssuer is an optional token issuer for post-auth tokens.
	// If nil, the service returns the base64-encoded user ID after auth.
	TokenIssuer TokenIssuer

	// Logger is an optional structured logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewService creates a new passkey service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.UserStore == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if params.CredentialStore == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if params.ChallengeStore == nil {
		return nil, fmt.Errorf("challenge store is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	verifier := protocol.NewVerifier(params.Config.RPID, params.Config.RPOrigins)
	verifier.RequireUserVerification = params.Config.UserVerification == "required"

	return &Service{
		config:     params.Config,
		users:      params.UserStore,
		creds:      params.CredentialStore,
		challenges: params.ChallengeStore,
		verifier:   verifier,
		tokens:     params.TokenIssuer,
		logger:     logger,
		configured: true,
	}, nil
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// RegistrationChallenge is the result of beginning a registration
// ceremony.
type RegistrationChallenge struct {
	// ChallengeID identifies the pending ceremony and must be echoed
	// back on completion.
	ChallengeID string `json:"challengeId"`

	// Options are the credential creation options for the client.
	Options *CredentialCreationOptions `json:"options"`
}

// AuthenticationChallenge is the result of beginning an authentication
// ceremony.
type AuthenticationChallenge struct {
	// ChallengeID identifies the pending ceremony and must be echoed
	// back on completion.
	ChallengeID string `json:"challengeId"`

	// Options are the credential request options for the client.
	Options *CredentialRequestOptions `json:"options"`
}

// FinishRegistrationRequest carries the client's response to a
// registration challenge. Binary fields are unpadded URL-safe base64.
type FinishRegistrationRequest struct {
	Email             string
	Name              string
	ChallengeID       string
	CredentialID      string
	AttestationObject string
	ClientDataJSON    string
}

// FinishAuthenticationRequest carries the client's response to an
// authentication challenge. Binary fields are unpadded URL-safe base64.
type FinishAuthenticationRequest struct {
	Email             string
	ChallengeID       string
	CredentialID      string
	AuthenticatorData string
	ClientDataJSON    string
	Signature         string
}

// BeginRegistration starts a registration ceremony for email. The email
// must not already belong to a registered user.
func (s *Service) BeginRegistration(ctx context.Context, email, displayName string) (*RegistrationChallenge, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if email == "" {
		return nil, NewError("begin registration", fmt.Errorf("%w: email is required", ErrInvalidRequest))
	}
	if displayName == "" {
		displayName = email
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, NewError("begin registration", ErrUserAlreadyExists)
	} else if !IsUserNotFound(err) {
		return nil, WrapError("get user by email", err)
	}

	challenge, err := s.issueChallenge(ctx, email, CeremonyRegistration)
	if err != nil {
		return nil, err
	}

	params := make([]CredentialParameter, 0, len(protocol.SupportedAlgorithms()))
	for _, alg := range protocol.SupportedAlgorithms() {
		params = append(params, CredentialParameter{Type: "public-key", Alg: int(alg)})
	}

	return &RegistrationChallenge{
		ChallengeID: challenge.ID,
		Options: &CredentialCreationOptions{
			Challenge: base64.RawURLEncoding.EncodeToString(challenge.Value),
			RelyingParty: RelyingPartyEntity{
				Name: s.config.RPDisplayName,
				ID:   s.config.RPID,
			},
			User: UserEntity{
				ID:          base64.RawURLEncoding.EncodeToString([]byte(email)),
				Name:        email,
				DisplayName: displayName,
			},
			PubKeyCredParams: params,
			Timeout:          int(s.config.ChallengeTTL / time.Millisecond),
			AuthenticatorSelection: AuthenticatorSelection{
				ResidentKey:      s.config.ResidentKey,
				UserVerification: s.config.UserVerification,
			},
			Attestation: s.config.Attestation,
		},
	}, nil
}

// FinishRegistration completes a registration ceremony: it consumes the
// challenge, verifies the attestation, creates the user and credential,
// and issues a session token. The challenge is consumed before any
// verification, so a failed attempt cannot be retried with the same
// challenge.
func (s *Service) FinishRegistration(ctx context.Context, req FinishRegistrationRequest) (user *User, token string, err error) {
	defer func() { recordCeremony(LabelCeremonyRegistration, err) }()

	if !s.configured {
		return nil, "", ErrNotConfigured
	}
	if req.Email == "" || req.ChallengeID == "" || req.CredentialID == "" ||
		req.AttestationObject == "" || req.ClientDataJSON == "" {
		return nil, "", NewError("finish registration", fmt.Errorf("%w: missing required fields", ErrInvalidRequest))
	}

	credentialID, err := decodeBase64Field("credentialId", req.CredentialID)
	if err != nil {
		return nil, "", err
	}
	attObj, err := decodeBase64Field("attestation object", req.AttestationObject)
	if err != nil {
		return nil, "", err
	}
	clientDataJSON, err := decodeBase64Field("clientDataJSON", req.ClientDataJSON)
	if err != nil {
		return nil, "", err
	}

	challenge, err := s.consumeChallenge(ctx, req.ChallengeID, req.Email, CeremonyRegistration)
	if err != nil {
		return nil, "", err
	}

	if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
		return nil, "", NewError("finish registration", ErrUserAlreadyExists)
	} else if !IsUserNotFound(err) {
		return nil, "", WrapError("get user by email", err)
	}

	result, err := s.verifier.VerifyAttestation(attObj, clientDataJSON, challenge.Value)
	if err != nil {
		return nil, "", wrapProtocolError("verify attestation", err)
	}
	if !bytes.Equal(result.CredentialID, credentialID) {
		return nil, "", NewError("verify attestation",
			fmt.Errorf("%w: credential ID does not match attestation", ErrVerificationFailed))
	}

	displayName := req.Name
	if displayName == "" {
		displayName = req.Email
	}
	user = &User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		Name:      displayName,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", WrapError("create user", err)
	}

	cred := &Credential{
		ID:        result.CredentialID,
		UserID:    user.ID,
		PublicKey: result.PublicKey.Raw,
		AAGUID:    result.AAGUID,
		SignCount: result.Counter,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.creds.Create(ctx, cred); err != nil {
		return nil, "", WrapError("create credential", err)
	}

	token, err = s.generateToken(user)
	if err != nil {
		return nil, "", WrapError("generate token", err)
	}

	s.logger.Info("passkey registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
		slog.String("algorithm", result.PublicKey.Algorithm.String()))

	return user, token, nil
}

// BeginAuthentication starts an authentication ceremony for email. The
// user must exist and have at least one registered credential.
func (s *Service) BeginAuthentication(ctx context.Context, email string) (*AuthenticationChallenge, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if email == "" {
		return nil, NewError("begin authentication", fmt.Errorf("%w: email is required", ErrInvalidRequest))
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, WrapError("get user by email", err)
	}

	creds, err := s.creds.ListByUserID(ctx, user.ID)
	if err != nil {
		return nil, WrapError("list credentials", err)
	}
	if len(creds) == 0 {
		return nil, NewError("begin authentication", ErrNoCredentials)
	}

	challenge, err := s.issueChallenge(ctx, email, CeremonyAuthentication)
	if err != nil {
		return nil, err
	}

	allowed := make([]CredentialDescriptor, len(creds))
	for i, cred := range creds {
		allowed[i] = CredentialDescriptor{
			Type: "public-key",
			ID:   base64.RawURLEncoding.EncodeToString(cred.ID),
		}
	}

	return &AuthenticationChallenge{
		ChallengeID: challenge.ID,
		Options: &CredentialRequestOptions{
			Challenge:        base64.RawURLEncoding.EncodeToString(challenge.Value),
			RPID:             s.config.RPID,
			Timeout:          int(s.config.ChallengeTTL / time.Millisecond),
			AllowCredentials: allowed,
			UserVerification: s.config.UserVerification,
		},
	}, nil
}

// BeginDiscoverableAuthentication starts an authentication ceremony
// with no user binding and no allow list. The client picks a
// discoverable credential; completion resolves the user from the
// presented credential.
func (s *Service) BeginDiscoverableAuthentication(ctx context.Context) (*AuthenticationChallenge, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}

	challenge, err := s.issueChallenge(ctx, "", CeremonyAuthentication)
	if err != nil {
		return nil, err
	}

	return &AuthenticationChallenge{
		ChallengeID: challenge.ID,
		Options: &CredentialRequestOptions{
			Challenge:        base64.RawURLEncoding.EncodeToString(challenge.Value),
			RPID:             s.config.RPID,
			Timeout:          int(s.config.ChallengeTTL / time.Millisecond),
			UserVerification: s.config.UserVerification,
		},
	}, nil
}

// FinishAuthentication completes an authentication ceremony: it
// consumes the challenge, verifies the assertion signature against the
// stored credential, applies clone detection to the signature counter,
// and issues a session token. An empty email is only valid for
// challenges issued by BeginDiscoverableAuthentication; the user is
// then resolved from the presented credential.
func (s *Service) FinishAuthentication(ctx context.Context, req FinishAuthenticationRequest) (user *User, token string, err error) {
	defer func() { recordCeremony(LabelCeremonyAuthentication, err) }()

	if !s.configured {
		return nil, "", ErrNotConfigured
	}
	if req.ChallengeID == "" || req.CredentialID == "" ||
		req.AuthenticatorData == "" || req.ClientDataJSON == "" || req.Signature == "" {
		return nil, "", NewError("finish authentication", fmt.Errorf("%w: missing required fields", ErrInvalidRequest))
	}

	credentialID, err := decodeBase64Field("credentialId", req.CredentialID)
	if err != nil {
		return nil, "", err
	}
	authData, err := decodeBase64Field("authenticatorData", req.AuthenticatorData)
	if err != nil {
		return nil, "", err
	}
	clientDataJSON, err := decodeBase64Field("clientDataJSON", req.ClientDataJSON)
	if err != nil {
		return nil, "", err
	}
	signature, err := decodeBase64Field("signature", req.Signature)
	if err != nil {
		return nil, "", err
	}

	challenge, err := s.consumeChallenge(ctx, req.ChallengeID, req.Email, CeremonyAuthentication)
	if err != nil {
		return nil, "", err
	}

	cred, err := s.creds.GetByCredentialID(ctx, credentialID)
	if err != nil {
		return nil, "", WrapError("get credential", err)
	}

	if req.Email != "" {
		user, err = s.users.GetByEmail(ctx, req.Email)
		if err != nil {
			if IsUserNotFound(err) {
				return nil, "", NewError("finish authentication", ErrCredentialNotFound)
			}
			return nil, "", WrapError("get user by email", err)
		}
		if cred.UserID != user.ID {
			return nil, "", NewError("finish authentication", ErrCredentialNotFound)
		}
	} else {
		// Discoverable flow: the credential identifies the user.
		user, err = s.users.GetByID(ctx, cred.UserID)
		if err != nil {
			if IsUserNotFound(err) {
				return nil, "", NewError("finish authentication", ErrCredentialNotFound)
			}
			return nil, "", WrapError("get user by id", err)
		}
	}

	counter, err := s.verifier.VerifyAssertion(authData, clientDataJSON, signature, challenge.Value, cred.PublicKey)
	if err != nil {
		return nil, "", wrapProtocolError("verify assertion", err)
	}

	// Clone detection. Authenticators that do not implement a counter
	// report zero forever; the check only applies once either side has
	// a non-zero value.
	if counter > 0 || cred.SignCount > 0 {
		if counter <= cred.SignCount {
			suspectedClonesTotal.Inc()
			s.logger.Warn("signature counter did not advance",
				slog.String("user_id", user.ID),
				slog.Uint64("stored", uint64(cred.SignCount)),
				slog.Uint64("reported", uint64(counter)))
			return nil, "", NewError("finish authentication", ErrSuspectedClone)
		}
	}

	if err := s.creds.UpdateSignCount(ctx, cred.ID, counter, time.Now().UTC()); err != nil {
		return nil, "", WrapError("update sign count", err)
	}

	token, err = s.generateToken(user)
	if err != nil {
		return nil, "", WrapError("generate token", err)
	}

	s.logger.Info("passkey authentication succeeded",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email))

	return user, token, nil
}

// GetUser retrieves a user by identifier, typically from verified token
// claims.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, WrapError("get user", err)
	}
	return user, nil
}

// VerifyToken validates a session token and returns its claims.
func (s *Service) VerifyToken(token string) (*Claims, error) {
	if s.tokens == nil {
		return nil, ErrNotConfigured
	}
	return s.tokens.Verify(token)
}

// issueChallenge creates and persists a fresh random challenge.
func (s *Service) issueChallenge(ctx context.Context, email string, kind CeremonyKind) (*Challenge, error) {
	value := make([]byte, s.config.ChallengeSize)
	if _, err := rand.Read(value); err != nil {
		return nil, WrapError("generate challenge", err)
	}

	challenge := &Challenge{
		ID:        uuid.NewString(),
		Value:     value,
		Email:     email,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.challenges.Create(ctx, challenge); err != nil {
		return nil, WrapError("store challenge", err)
	}
	return challenge, nil
}

// consumeChallenge atomically consumes a challenge and checks that it
// was issued for the given email and ceremony. Challenges issued with
// no subject (discoverable flow) accept any email. A mismatch still
// burns the challenge; the error does not reveal which check failed.
func (s *Service) consumeChallenge(ctx context.Context, id, email string, kind CeremonyKind) (*Challenge, error) {
	challenge, err := s.challenges.Consume(ctx, id)
	if err != nil {
		return nil, WrapError("consume challenge", err)
	}
	if time.Since(challenge.CreatedAt) > s.config.ChallengeTTL {
		return nil, NewError("consume challenge", ErrChallengeNotFound)
	}
	if challenge.Kind != kind {
		return nil, NewError("consume challenge", ErrChallengeNotFound)
	}
	if challenge.Email != "" && challenge.Email != email {
		return nil, NewError("consume challenge", ErrChallengeNotFound)
	}
	return challenge, nil
}

func (s *Service) generateToken(user *User) (string, error) {
	if s.tokens == nil {
		return base64.RawURLEncoding.EncodeToString([]byte(user.ID)), nil
	}
	return s.tokens.Issue(user)
}

// decodeBase64Field decodes an unpadded URL-safe base64 wire field.
func decodeBase64Field(name, value string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, NewError("decode "+name, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}
	return raw, nil
}

// wrapProtocolError maps verifier errors onto the service error taxonomy.
func wrapProtocolError(op string, err error) error {
	switch {
	case errors.Is(err, protocol.ErrMalformed):
		return NewError(op, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	case errors.Is(err, protocol.ErrVerification):
		return NewError(op, fmt.Errorf("%w: %v", ErrVerificationFailed, err))
	default:
		return WrapError(op, err)
	}
}
