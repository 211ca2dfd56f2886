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
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// COSE key types.
//
// https://www.iana.org/assignments/cose/cose.xhtml#key-type
const (
	coseKeyTypeOKP = 1
	coseKeyTypeEC2 = 2
	coseKeyTypeRSA = 3
)

// COSE elliptic curves.
const (
	coseCurveP256    = 1
	coseCurveEd25519 = 6
)

// PublicKey is a credential public key extracted from an attestation,
// retaining both the parsed key and the raw COSE encoding that is
// persisted alongside the credential.
type PublicKey struct {
	// Algorithm is the COSE algorithm the key signs with.
	Algorithm Algorithm

	// Key is the parsed public key (*ecdsa.PublicKey, *rsa.PublicKey,
	// or ed25519.PublicKey).
	Key crypto.PublicKey

	// Raw is the CBOR-encoded COSE key as produced by the authenticator.
	Raw []byte
}

// ParsePublicKey decodes a CBOR-encoded COSE public key.
func ParsePublicKey(raw []byte) (*PublicKey, error) {
	var kty struct {
		KTY int `cbor:"1,keyasint"`
	}
	if err := cbor.Unmarshal(raw, &kty); err != nil {
		return nil, malformedf("decoding COSE key: %v", err)
	}

	switch kty.KTY {
	case coseKeyTypeEC2:
		var k struct {
			KTY   int    `cbor:"1,keyasint"`
			ALG   int    `cbor:"3,keyasint"`
			Curve int    `cbor:"-1,keyasint"`
			X     []byte `cbor:"-2,keyasint"`
			Y     []byte `cbor:"-3,keyasint"`
		}
		if err := cbor.Unmarshal(raw, &k); err != nil {
			return nil, malformedf("decoding EC2 key: %v", err)
		}
		if k.Curve != coseCurveP256 {
			return nil, malformedf("unsupported EC2 curve %d", k.Curve)
		}
		if Algorithm(k.ALG) != ES256 {
			return nil, malformedf("unexpected algorithm %d for EC2 key", k.ALG)
		}
		pub := &ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(k.X),
			Y:     new(big.Int).SetBytes(k.Y),
		}
		if !pub.Curve.IsOnCurve(pub.X, pub.Y) {
			return nil, malformedf("EC2 point is not on curve")
		}
		return &PublicKey{Algorithm: ES256, Key: pub, Raw: raw}, nil

	case coseKeyTypeRSA:
		var k struct {
			KTY int    `cbor:"1,keyasint"`
			ALG int    `cbor:"3,keyasint"`
			N   []byte `cbor:"-1,keyasint"`
			E   int    `cbor:"-2,keyasint"`
		}
		if err := cbor.Unmarshal(raw, &k); err != nil {
			return nil, malformedf("decoding RSA key: %v", err)
		}
		alg := Algorithm(k.ALG)
		switch alg {
		case RS256, PS256, PS384, PS512:
		default:
			return nil, malformedf("unexpected algorithm %d for RSA key", k.ALG)
		}
		if len(k.N) == 0 || k.E == 0 {
			return nil, malformedf("incomplete RSA key")
		}
		pub := &rsa.PublicKey{
			N: new(big.Int).SetBytes(k.N),
			E: k.E,
		}
		return &PublicKey{Algorithm: alg, Key: pub, Raw: raw}, nil

	case coseKeyTypeOKP:
		var k struct {
			KTY   int    `cbor:"1,keyasint"`
			ALG   int    `cbor:"3,keyasint"`
			Curve int    `cbor:"-1,keyasint"`
			X     []byte `cbor:"-2,keyasint"`
		}
		if err := cbor.Unmarshal(raw, &k); err != nil {
			return nil, malformedf("decoding OKP key: %v", err)
		}
		if k.Curve != coseCurveEd25519 {
			return nil, malformedf("unsupported OKP curve %d", k.Curve)
		}
		if Algorithm(k.ALG) != EdDSA {
			return nil, malformedf("unexpected algorithm %d for OKP key", k.ALG)
		}
		if len(k.X) != ed25519.PublicKeySize {
			return nil, malformedf("invalid Ed25519 key length %d", len(k.X))
		}
		return &PublicKey{Algorithm: EdDSA, Key: ed25519.PublicKey(k.X), Raw: raw}, nil

	default:
		return nil, malformedf("unsupported COSE key type %d", kty.KTY)
	}
}

// Verify checks sig over data using the key's algorithm. A nil return
// means the signature is valid.
func (p *PublicKey) Verify(data, sig []byte) error {
	switch p.Algorithm {
	case ES256:
		pub, ok := p.Key.(*ecdsa.PublicKey)
		if !ok {
			return verificationf("key type %T does not match ES256", p.Key)
		}
		h := sha256.Sum256(data)
		if !ecdsa.VerifyASN1(pub, h[:], sig) {
			return verificationf("invalid ES256 signature")
		}
	case EdDSA:
		pub, ok := p.Key.(ed25519.PublicKey)
		if !ok {
			return verificationf("key type %T does not match EdDSA", p.Key)
		}
		if !ed25519.Verify(pub, data, sig) {
			return verificationf("invalid EdDSA signature")
		}
	case RS256:
		pub, ok := p.Key.(*rsa.PublicKey)
		if !ok {
			return verificationf("key type %T does not match RS256", p.Key)
		}
		h := sha256.Sum256(data)
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, h[:], sig); err != nil {
			return verificationf("invalid RS256 signature")
		}
	case PS256:
		pub, ok := p.Key.(*rsa.PublicKey)
		if !ok {
			return verificationf("key type %T does not match PS256", p.Key)
		}
		h := sha256.Sum256(data)
		if err := rsa.VerifyPSS(pub, crypto.SHA256, h[:], sig, nil); err != nil {
			return verificationf("invalid PS256 signature")
		}
	case PS384:
		pub, ok := p.Key.(*rsa.PublicKey)
		if !ok {
			return verificationf("key type %T does not match PS384", p.Key)
		}
		h := sha512.Sum384(data)
		if err := rsa.VerifyPSS(pub, crypto.SHA384, h[:], sig, nil); err != nil {
			return verificationf("invalid PS384 signature")
		}
	case PS512:
		pub, ok := p.Key.(*rsa.PublicKey)
		if !ok {
			return verificationf("key type %T does not match PS512", p.Key)
		}
		h := sha512.Sum512(data)
		if err := rsa.VerifyPSS(pub, crypto.SHA512, h[:], sig, nil); err != nil {
			return verificationf("invalid PS512 signature")
		}
	default:
		return verificationf("unsupported signing algorithm %d", int(p.Algorithm))
	}
	return nil
}

func malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

func verificationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrVerification, fmt.Sprintf(format, args...))
}
