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

import "fmt"

// Algorithm is a COSE algorithm identifier.
//
// https://www.iana.org/assignments/cose/cose.xhtml#algorithms
type Algorithm int

// The set of algorithms supported by this package.
const (
	ES256 Algorithm = -7   // ECDSA with SHA-256 over P-256
	EdDSA Algorithm = -8   // Ed25519
	PS256 Algorithm = -37  // RSASSA-PSS with SHA-256
	PS384 Algorithm = -38  // RSASSA-PSS with SHA-384
	PS512 Algorithm = -39  // RSASSA-PSS with SHA-512
	RS256 Algorithm = -257 // RSASSA-PKCS1-v1_5 with SHA-256
)

var algStrings = map[Algorithm]string{
	ES256: "ES256",
	EdDSA: "EdDSA",
	PS256: "PS256",
	PS384: "PS384",
	PS512: "PS512",
	RS256: "RS256",
}

// String returns a human readable representation of the algorithm.
func (a Algorithm) String() string {
	if s, ok := algStrings[a]; ok {
		return s
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// Supported reports whether the algorithm is one this package can verify.
func (a Algorithm) Supported() bool {
	_, ok := algStrings[a]
	return ok
}

// SupportedAlgorithms returns the algorithms advertised in credential
// creation options, in preference order.
func SupportedAlgorithms() []Algorithm {
	return []Algorithm{ES256, RS256, EdDSA, PS256, PS384, PS512}
}
