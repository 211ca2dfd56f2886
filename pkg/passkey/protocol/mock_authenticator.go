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
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
)

// MockAuthenticator simulates a WebAuthn authenticator for testing. It
// produces raw attestation objects, client data JSON, and assertion
// signatures that a Verifier accepts, and can be driven into invalid
// states (wrong origin, stale counter, foreign challenge) for negative
// tests.
type MockAuthenticator struct {
	// AAGUID is the authenticator's unique identifier (16 bytes).
	AAGUID []byte

	// CredentialID is the credential identifier.
	CredentialID []byte

	// SignCount is the current signature counter for clone detection.
	SignCount uint32

	// UserPresent indicates whether the UP flag should be set.
	UserPresent bool

	// UserVerified indicates whether the UV flag should be set.
	UserVerified bool

	algorithm  Algorithm
	signingKey crypto.Signer
	rpIDHash   []byte
}

// MockAuthenticatorOption is a functional option for configuring a
// MockAuthenticator.
type MockAuthenticatorOption func(*MockAuthenticator)

// WithAAGUID sets a custom AAGUID.
func WithAAGUID(aaguid []byte) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.AAGUID = aaguid
	}
}

// WithCredentialID sets a custom credential ID.
func WithCredentialID(credID []byte) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.CredentialID = credID
	}
}

// WithSignCount sets the initial sign count.
func WithSignCount(count uint32) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.SignCount = count
	}
}

// WithUserPresent sets the UP flag.
func WithUserPresent(up bool) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.UserPresent = up
	}
}

// WithUserVerified sets the UV flag.
func WithUserVerified(uv bool) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.UserVerified = uv
	}
}

// WithAlgorithm selects the key type the authenticator signs with.
// ES256, RS256, and EdDSA are supported.
func WithAlgorithm(alg Algorithm) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.algorithm = alg
	}
}

// NewMockAuthenticator creates a new mock authenticator scoped to rpID.
// The default configuration signs with ES256 and sets both the user
// presence and user verification flags.
func NewMockAuthenticator(rpID string, opts ...MockAuthenticatorOption) (*MockAuthenticator, error) {
	aaguid := make([]byte, 16)
	if _, err := rand.Read(aaguid); err != nil {
		return nil, err
	}
	credID := make([]byte, 32)
	if _, err := rand.Read(credID); err != nil {
		return nil, err
	}

	rpIDHash := sha256.Sum256([]byte(rpID))

	m := &MockAuthenticator{
		AAGUID:       aaguid,
		CredentialID: credID,
		SignCount:    0,
		UserPresent:  true,
		UserVerified: true,
		algorithm:    ES256,
		rpIDHash:     rpIDHash[:],
	}
	for _, opt := range opts {
		opt(m)
	}

	var err error
	switch m.algorithm {
	case ES256:
		m.signingKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case RS256:
		m.signingKey, err = rsa.GenerateKey(rand.Reader, 2048)
	case EdDSA:
		_, m.signingKey, err = ed25519.GenerateKey(rand.Reader)
	default:
		return nil, malformedf("mock authenticator does not support %s", m.algorithm)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// PublicKeyBytes returns the public key in COSE format.
func (m *MockAuthenticator) PublicKeyBytes() ([]byte, error) {
	switch pub := m.signingKey.Public().(type) {
	case *ecdsa.PublicKey:
		return cbor.Marshal(map[int]any{
			1:  coseKeyTypeEC2,
			3:  int(ES256),
			-1: coseCurveP256,
			-2: pub.X.Bytes(),
			-3: pub.Y.Bytes(),
		})
	case *rsa.PublicKey:
		return cbor.Marshal(map[int]any{
			1:  coseKeyTypeRSA,
			3:  int(RS256),
			-1: pub.N.Bytes(),
			-2: pub.E,
		})
	case ed25519.PublicKey:
		return cbor.Marshal(map[int]any{
			1:  coseKeyTypeOKP,
			3:  int(EdDSA),
			-1: coseCurveEd25519,
			-2: []byte(pub),
		})
	default:
		return nil, malformedf("unexpected key type %T", pub)
	}
}

// SetSignCount sets the sign count to a specific value, useful for
// exercising clone detection.
func (m *MockAuthenticator) SetSignCount(count uint32) {
	m.SignCount = count
}

// CreateAttestation returns the raw attestation object and client data
// JSON a browser would submit to complete a registration.
func (m *MockAuthenticator) CreateAttestation(challenge []byte, origin string) (attObj, clientDataJSON []byte, err error) {
	authData, err := m.buildAuthenticatorData(true)
	if err != nil {
		return nil, nil, err
	}
	attObj, err = cbor.Marshal(map[string]any{
		"fmt":      "none",
		"attStmt":  map[string]any{},
		"authData": authData,
	})
	if err != nil {
		return nil, nil, err
	}
	return attObj, m.buildClientDataJSON(challenge, origin, ceremonyCreate), nil
}

// CreateAssertion returns the raw authenticator data, client data JSON,
// and signature a browser would submit to complete an authentication.
// The sign count is incremented before signing.
func (m *MockAuthenticator) CreateAssertion(challenge []byte, origin string) (authData, clientDataJSON, signature []byte, err error) {
	m.SignCount++

	authData, err = m.buildAuthenticatorData(false)
	if err != nil {
		return nil, nil, nil, err
	}
	clientDataJSON = m.buildClientDataJSON(challenge, origin, ceremonyGet)
	clientDataHash := sha256.Sum256(clientDataJSON)

	signed := append(append([]byte{}, authData...), clientDataHash[:]...)
	signature, err = m.sign(signed)
	if err != nil {
		return nil, nil, nil, err
	}
	return authData, clientDataJSON, signature, nil
}

func (m *MockAuthenticator) buildFlags(includeCredential bool) byte {
	var flags byte
	if m.UserPresent {
		flags |= flagUserPresent
	}
	if m.UserVerified {
		flags |= flagUserVerified
	}
	if includeCredential {
		flags |= flagAttestedCredential
	}
	return flags
}

func (m *MockAuthenticator) buildAuthenticatorData(includeCredential bool) ([]byte, error) {
	var buf bytes.Buffer

	buf.Write(m.rpIDHash)
	buf.WriteByte(m.buildFlags(includeCredential))

	signCount := make([]byte, 4)
	binary.BigEndian.PutUint32(signCount, m.SignCount)
	buf.Write(signCount)

	if includeCredential {
		buf.Write(m.AAGUID)

		credIDLen := make([]byte, 2)
		binary.BigEndian.PutUint16(credIDLen, uint16(len(m.CredentialID)))
		buf.Write(credIDLen)
		buf.Write(m.CredentialID)

		pubKeyBytes, err := m.PublicKeyBytes()
		if err != nil {
			return nil, err
		}
		buf.Write(pubKeyBytes)
	}

	return buf.Bytes(), nil
}

func (m *MockAuthenticator) buildClientDataJSON(challenge []byte, origin, ceremonyType string) []byte {
	cd := struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
		Origin    string `json:"origin"`
	}{
		Type:      ceremonyType,
		Challenge: base64.RawURLEncoding.EncodeToString(challenge),
		Origin:    origin,
	}
	jsonBytes, _ := json.Marshal(cd)
	return jsonBytes
}

func (m *MockAuthenticator) sign(data []byte) ([]byte, error) {
	switch key := m.signingKey.(type) {
	case *ecdsa.PrivateKey:
		hash := sha256.Sum256(data)
		return ecdsa.SignASN1(rand.Reader, key, hash[:])
	case *rsa.PrivateKey:
		hash := sha256.Sum256(data)
		return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hash[:])
	case ed25519.PrivateKey:
		return ed25519.Sign(key, data), nil
	default:
		return nil, malformedf("unexpected key type %T", key)
	}
}
