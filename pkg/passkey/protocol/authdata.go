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
	"crypto/sha256"
	"encoding/binary"
)

// Authenticator data flag bits.
const (
	flagUserPresent        = 1 << 0
	flagUserVerified       = 1 << 2
	flagAttestedCredential = 1 << 6
)

// Minimum authenticator data length: rpIdHash (32) + flags (1) + counter (4).
const authDataMinLen = 37

// AuthenticatorData is the parsed fixed-layout authenticator data
// structure from an attestation or assertion response.
type AuthenticatorData struct {
	RPIDHash []byte
	Flags    byte
	Counter  uint32

	// Attested credential data, present only when the attested
	// credential flag is set.
	AAGUID       []byte
	CredentialID []byte
	PublicKey    *PublicKey
}

// UserPresent reports whether the user presence bit is set.
func (a *AuthenticatorData) UserPresent() bool {
	return a.Flags&flagUserPresent != 0
}

// UserVerified reports whether the user verification bit is set.
func (a *AuthenticatorData) UserVerified() bool {
	return a.Flags&flagUserVerified != 0
}

// hasAttestedCredential reports whether attested credential data follows
// the counter.
func (a *AuthenticatorData) hasAttestedCredential() bool {
	return a.Flags&flagAttestedCredential != 0
}

// parseAuthData decodes the authenticator data byte layout. When the
// attested credential flag is set the embedded credential ID and COSE
// public key are decoded as well.
func parseAuthData(raw []byte) (*AuthenticatorData, error) {
	if len(raw) < authDataMinLen {
		return nil, malformedf("authenticator data too short: %d bytes", len(raw))
	}
	ad := &AuthenticatorData{
		RPIDHash: raw[:32],
		Flags:    raw[32],
		Counter:  binary.BigEndian.Uint32(raw[33:37]),
	}
	if !ad.hasAttestedCredential() {
		return ad, nil
	}

	rest := raw[37:]
	if len(rest) < 18 {
		return nil, malformedf("attested credential data too short")
	}
	ad.AAGUID = rest[:16]
	idLen := int(binary.BigEndian.Uint16(rest[16:18]))
	rest = rest[18:]
	if len(rest) < idLen {
		return nil, malformedf("credential ID truncated")
	}
	ad.CredentialID = rest[:idLen]

	pub, err := ParsePublicKey(rest[idLen:])
	if err != nil {
		return nil, err
	}
	ad.PublicKey = pub
	return ad, nil
}

// verifyRPIDHash checks the authenticator data's RP ID hash against the
// configured Relying Party ID.
func (a *AuthenticatorData) verifyRPIDHash(rpID string) error {
	want := sha256.Sum256([]byte(rpID))
	if !bytes.Equal(a.RPIDHash, want[:]) {
		return verificationf("rpIdHash does not match relying party %q", rpID)
	}
	return nil
}
