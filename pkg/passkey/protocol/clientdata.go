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
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
)

// Client data ceremony types as defined by the WebAuthn Level 2 spec.
const (
	ceremonyCreate = "webauthn.create"
	ceremonyGet    = "webauthn.get"
)

// clientData is the parsed collectedClientData JSON emitted by the
// browser during a ceremony.
type clientData struct {
	Type      string              `json:"type"`
	Challenge clientDataChallenge `json:"challenge"`
	Origin    string              `json:"origin"`
}

// clientDataChallenge holds the challenge bytes, which arrive as an
// unpadded URL-safe base64 string inside the client data JSON.
type clientDataChallenge []byte

func (c *clientDataChallenge) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	*c = clientDataChallenge(raw)
	return nil
}

// Equal compares the received challenge against the expected value in
// constant time.
func (c clientDataChallenge) Equal(expected []byte) bool {
	return subtle.ConstantTimeCompare([]byte(c), expected) == 1
}

// verifyClientData parses the raw client data JSON and checks the
// ceremony type, challenge binding, and origin binding.
func verifyClientData(raw []byte, wantType string, challenge []byte, origins []string) error {
	var cd clientData
	if err := json.Unmarshal(raw, &cd); err != nil {
		return malformedf("decoding client data: %v", err)
	}
	if cd.Type != wantType {
		return verificationf("client data type %q, expected %q", cd.Type, wantType)
	}
	if !cd.Challenge.Equal(challenge) {
		return verificationf("challenge mismatch")
	}
	for _, o := range origins {
		if cd.Origin == o {
			return nil
		}
	}
	return verificationf("origin %q is not allowed", cd.Origin)
}
