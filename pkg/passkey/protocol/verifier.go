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
	"crypto/sha256"
	"errors"

	"github.com/fxamacker/cbor/v2"
)

var (
	// ErrMalformed indicates a response whose wire structure could not
	// be decoded: invalid CBOR, invalid JSON, or a truncated byte layout.
	ErrMalformed = errors.New("protocol: malformed response")

	// ErrVerification indicates a well-formed response that failed a
	// binding or signature check.
	ErrVerification = errors.New("protocol: verification failed")
)

// Verifier validates WebAuthn attestation and assertion responses for a
// single Relying Party.
type Verifier struct {
	// RPID is the Relying Party ID credentials are scoped to.
	RPID string

	// Origins is the set of web origins ceremonies may originate from.
	Origins []string

	// RequireUserVerification requires the authenticator's user
	// verification bit in addition to user presence.
	RequireUserVerification bool
}

// NewVerifier creates a Verifier for the given Relying Party ID and
// allowed origins.
func NewVerifier(rpID string, origins []string) *Verifier {
	return &Verifier{RPID: rpID, Origins: origins}
}

// attestationObject is the CBOR envelope of a registration response.
type attestationObject struct {
	Format      string          `cbor:"fmt"`
	AttStmt     cbor.RawMessage `cbor:"attStmt"`
	RawAuthData []byte          `cbor:"authData"`
}

// AttestationResult holds the credential material extracted from a
// verified registration response.
type AttestationResult struct {
	// CredentialID is the authenticator-assigned credential identifier.
	CredentialID []byte

	// PublicKey is the credential public key, both parsed and in its
	// raw COSE encoding.
	PublicKey *PublicKey

	// Counter is the authenticator's initial signature counter.
	Counter uint32

	// AAGUID identifies the authenticator model.
	AAGUID []byte
}

// VerifyAttestation validates a registration response. It decodes the
// CBOR attestation object, checks the client data bindings (ceremony
// type, challenge, origin), the RP ID hash, and the user presence flag,
// and extracts the attested credential.
//
// Attestation statements are not chased to a trust root. The credential
// is accepted on self attestation ("none" and surrogate formats alike),
// matching the registration policy of attestation: "none".
func (v *Verifier) VerifyAttestation(attObj, clientDataJSON, challenge []byte) (*AttestationResult, error) {
	var att attestationObject
	if err := cbor.Unmarshal(attObj, &att); err != nil {
		return nil, malformedf("decoding attestation object: %v", err)
	}

	if err := verifyClientData(clientDataJSON, ceremonyCreate, challenge, v.Origins); err != nil {
		return nil, err
	}

	authData, err := parseAuthData(att.RawAuthData)
	if err != nil {
		return nil, err
	}
	if err := v.checkAuthData(authData); err != nil {
		return nil, err
	}
	if !authData.hasAttestedCredential() {
		return nil, verificationf("attestation carries no attested credential data")
	}
	if len(authData.CredentialID) == 0 {
		return nil, verificationf("empty credential ID")
	}
	if !authData.PublicKey.Algorithm.Supported() {
		return nil, verificationf("unsupported credential algorithm %s", authData.PublicKey.Algorithm)
	}

	return &AttestationResult{
		CredentialID: authData.CredentialID,
		PublicKey:    authData.PublicKey,
		Counter:      authData.Counter,
		AAGUID:       authData.AAGUID,
	}, nil
}

// VerifyAssertion validates an authentication response against a stored
// COSE public key. It checks the client data bindings, the RP ID hash,
// the user presence flag, and the signature over
// authenticatorData || SHA-256(clientDataJSON), and returns the
// signature counter reported by the authenticator.
func (v *Verifier) VerifyAssertion(rawAuthData, clientDataJSON, signature, challenge, cosePublicKey []byte) (uint32, error) {
	pub, err := ParsePublicKey(cosePublicKey)
	if err != nil {
		return 0, err
	}

	if err := verifyClientData(clientDataJSON, ceremonyGet, challenge, v.Origins); err != nil {
		return 0, err
	}

	authData, err := parseAuthData(rawAuthData)
	if err != nil {
		return 0, err
	}
	if err := v.checkAuthData(authData); err != nil {
		return 0, err
	}

	clientDataHash := sha256.Sum256(clientDataJSON)
	signed := make([]byte, 0, len(rawAuthData)+len(clientDataHash))
	signed = append(signed, rawAuthData...)
	signed = append(signed, clientDataHash[:]...)

	if err := pub.Verify(signed, signature); err != nil {
		return 0, err
	}
	return authData.Counter, nil
}

func (v *Verifier) checkAuthData(authData *AuthenticatorData) error {
	if err := authData.verifyRPIDHash(v.RPID); err != nil {
		return err
	}
	if !authData.UserPresent() {
		return verificationf("user presence flag not set")
	}
	if v.RequireUserVerification && !authData.UserVerified() {
		return verificationf("user verification flag not set")
	}
	return nil
}
