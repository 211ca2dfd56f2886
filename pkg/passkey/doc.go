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

// Package passkey implements passwordless authentication with WebAuthn
// passkeys: registration and authentication ceremonies, single-use
// challenge management, credential storage with signature counter based
// clone detection, and JWT session token issuance.
//
// The Service orchestrates the ceremonies against pluggable UserStore,
// CredentialStore, and ChallengeStore backends. In-memory
// implementations suitable for testing and single-node deployments are
// provided in this package; a PostgreSQL implementation lives in
// internal/store/postgres. Cryptographic validation of authenticator
// responses is delegated to the protocol subpackage.
package passkey
