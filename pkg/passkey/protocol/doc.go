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

// Package protocol implements the cryptographic core of the WebAuthn
// ceremonies: parsing of attestation objects, authenticator data, COSE
// public keys, and client data, plus signature verification for the
// supported COSE algorithms.
//
// The package is stateless. A Verifier is configured with the Relying
// Party ID and the set of allowed origins, and exposes two operations:
//
//   - VerifyAttestation validates a registration (credential creation)
//     response and extracts the new credential's ID, public key, and
//     initial signature counter.
//   - VerifyAssertion validates an authentication response against a
//     previously registered COSE public key and extracts the reported
//     signature counter.
//
// Both operations distinguish malformed wire structures (ErrMalformed)
// from well-formed responses that fail a binding or signature check
// (ErrVerification). Malformed input never verifies.
//
// Supported algorithms: ES256, RS256, EdDSA (Ed25519), PS256, PS384,
// and PS512.
package protocol
