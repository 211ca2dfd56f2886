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

// Option structures mirror the W3C WebAuthn dictionaries passed to
// navigator.credentials.create() and navigator.credentials.get().
// Binary fields are unpadded URL-safe base64 strings.

// RelyingPartyEntity describes the Relying Party in creation options.
type RelyingPartyEntity struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// UserEntity describes the account a credential is being created for.
type UserEntity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// CredentialParameter advertises an acceptable credential algorithm.
type CredentialParameter struct {
	Type string `json:"type"`
	Alg  int    `json:"alg"`
}

// CredentialDescriptor references an existing credential, used in
// exclude and allow lists.
type CredentialDescriptor struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// AuthenticatorSelection constrains which authenticators may
// participate in a registration.
type AuthenticatorSelection struct {
	ResidentKey      string `json:"residentKey,omitempty"`
	UserVerification string `json:"userVerification,omitempty"`
}

// CredentialCreationOptions are the PublicKeyCredentialCreationOptions
// returned from a registration begin call.
type CredentialCreationOptions struct {
	Challenge              string                 `json:"challenge"`
	RelyingParty           RelyingPartyEntity     `json:"rp"`
	User                   UserEntity             `json:"user"`
	PubKeyCredParams       []CredentialParameter  `json:"pubKeyCredParams"`
	Timeout                int                    `json:"timeout,omitempty"`
	ExcludeCredentials     []CredentialDescriptor `json:"excludeCredentials,omitempty"`
	AuthenticatorSelection AuthenticatorSelection `json:"authenticatorSelection"`
	Attestation            string                 `json:"attestation,omitempty"`
}

// CredentialRequestOptions are the PublicKeyCredentialRequestOptions
// returned from an authentication begin call.
type CredentialRequestOptions struct {
	Challenge        string                 `json:"challenge"`
	RPID             string                 `json:"rpId"`
	Timeout          int                    `json:"timeout,omitempty"`
	AllowCredentials []CredentialDescriptor `json:"allowCredentials,omitempty"`
	UserVerification string                 `json:"userVerification,omitempty"`
}
