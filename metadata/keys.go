// Copyright 2022-2023 VMware, Inc.
//
// This product is licensed to you under the BSD-2 license (the "License").
// You may not use this product except in compliance with the BSD-2 License.
// This product may include a number of subcomponents with separate copyright
// notices and license terms. Your use of these subcomponents is subject to
// the terms and conditions of the subcomponent's license, as noted in the
// LICENSE file.
//
// SPDX-License-Identifier: BSD-2-Clause

package metadata

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	"github.com/sigstore/sigstore/pkg/signature"
)

// minRSAModulusBits is the minimum RSA key size this client accepts, per
// spec.md §4.3. Smaller keys are rejected by ToPublicKey when the key
// material is parsed, before any signature is checked against them, so a
// weak key can never silently count toward a threshold.
const minRSAModulusBits = 2048

// ID returns this key's KeyID: the lowercase hex SHA-256 digest of the
// canonical encoding of {keytype, scheme, keyval}. It is computed once and
// cached.
func (k *Key) ID() string {
	k.idOnce.Do(func() {
		b, err := CanonicalBytes(keyObject{Type: k.Type, Scheme: k.Scheme, Value: k.Value})
		if err != nil {
			// A key that cannot be canonicalized cannot be identified; leave
			// id empty so callers see an obviously-invalid KeyID rather than
			// panicking.
			return
		}
		k.id = sha256Hex(b)
	})
	return k.id
}

// keyObject is the subset of Key that participates in KeyID derivation and
// canonical signing: the unexported ID cache must never leak into the bytes
// that get hashed or signed.
type keyObject struct {
	Type   string `json:"keytype"`
	Scheme string `json:"scheme"`
	Value  KeyVal `json:"keyval"`
}

// ToPublicKey converts the wire key material into a crypto.PublicKey,
// dispatching on Type. RSA and ECDSA keys are PEM-encoded; ed25519 keys are
// hex-encoded raw points.
func (k *Key) ToPublicKey() (crypto.PublicKey, error) {
	switch k.Type {
	case KeyTypeEd25519:
		raw, err := hex.DecodeString(k.Value.PublicKey)
		if err != nil {
			return nil, ErrValue{Msg: fmt.Sprintf("invalid ed25519 key hex: %v", err)}
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, ErrValue{Msg: fmt.Sprintf("invalid ed25519 public key size: %d", len(raw))}
		}
		return ed25519.PublicKey(raw), nil
	case KeyTypeRSA:
		pub, err := parsePEMPublicKey(k.Value.PublicKey)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, ErrValue{Msg: "rsa keytype did not decode to an RSA public key"}
		}
		if rsaKey.N.BitLen() < minRSAModulusBits {
			return nil, ErrValue{Msg: fmt.Sprintf("rsa key modulus too small: %d bits", rsaKey.N.BitLen())}
		}
		return rsaKey, nil
	case KeyTypeECDSA:
		pub, err := parsePEMPublicKey(k.Value.PublicKey)
		if err != nil {
			return nil, err
		}
		ecdsaKey, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return nil, ErrValue{Msg: "ecdsa keytype did not decode to an ECDSA public key"}
		}
		return ecdsaKey, nil
	default:
		return nil, ErrUnsupportedKey{KeyType: k.Type, Scheme: k.Scheme}
	}
}

func parsePEMPublicKey(pemStr string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, ErrValue{Msg: "failed to decode PEM block"}
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, ErrValue{Msg: fmt.Sprintf("failed to parse public key: %v", err)}
	}
	return pub, nil
}

// verifierHash returns the crypto.Hash a signature.Verifier should use for
// the given (keytype, scheme) pair. ed25519 hashes internally and is passed
// crypto.Hash(0); everything else in this client is SHA-256-based.
func verifierHash(k *Key) (crypto.Hash, error) {
	switch {
	case k.Type == KeyTypeEd25519 && k.Scheme == KeySchemeEd25519:
		return crypto.Hash(0), nil
	case k.Type == KeyTypeRSA && k.Scheme == KeySchemeRSAPSS:
		return crypto.SHA256, nil
	case k.Type == KeyTypeECDSA && k.Scheme == KeySchemeECDSA:
		return crypto.SHA256, nil
	default:
		return 0, ErrUnsupportedKey{KeyType: k.Type, Scheme: k.Scheme}
	}
}

// VerifySignature checks that sig is a valid signature by key over payload,
// dispatching on (key.Type, key.Scheme) as specified in spec.md §4.3. It is
// the single primitive every quorum check in this client funnels through.
func VerifySignature(key *Key, payload, sig []byte) error {
	pub, err := key.ToPublicKey()
	if err != nil {
		return err
	}
	hash, err := verifierHash(key)
	if err != nil {
		return err
	}
	var verifier signature.Verifier
	if rsaKey, ok := pub.(*rsa.PublicKey); ok {
		// rsassa-pss-sha256: PSS padding with a salt as long as the hash.
		verifier, err = signature.LoadRSAPSSVerifier(rsaKey, hash, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
	} else {
		verifier, err = signature.LoadVerifier(pub, hash)
	}
	if err != nil {
		return ErrUnsupportedKey{KeyType: key.Type, Scheme: key.Scheme}
	}
	if err := verifier.VerifySignature(bytes.NewReader(sig), bytes.NewReader(payload)); err != nil {
		return ErrUnsignedMetadata{Msg: fmt.Sprintf("signature verification failed for key %s: %v", key.ID(), err)}
	}
	return nil
}

// KeyFromPublicKey builds a TUF Key object from a crypto.PublicKey, used when
// signing freshly authored metadata (e.g. in tests and repository tooling).
func KeyFromPublicKey(pub crypto.PublicKey) (*Key, error) {
	switch p := pub.(type) {
	case ed25519.PublicKey:
		return &Key{
			Type:   KeyTypeEd25519,
			Scheme: KeySchemeEd25519,
			Value:  KeyVal{PublicKey: hex.EncodeToString(p)},
		}, nil
	case *rsa.PublicKey:
		der, err := x509.MarshalPKIXPublicKey(p)
		if err != nil {
			return nil, err
		}
		pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
		return &Key{
			Type:   KeyTypeRSA,
			Scheme: KeySchemeRSAPSS,
			Value:  KeyVal{PublicKey: string(pemBytes)},
		}, nil
	case *ecdsa.PublicKey:
		der, err := x509.MarshalPKIXPublicKey(p)
		if err != nil {
			return nil, err
		}
		pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
		return &Key{
			Type:   KeyTypeECDSA,
			Scheme: KeySchemeECDSA,
			Value:  KeyVal{PublicKey: string(pemBytes)},
		}, nil
	default:
		return nil, ErrValue{Msg: "unsupported public key type"}
	}
}
