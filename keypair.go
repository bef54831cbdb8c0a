// Copyright 2026 The sealfile Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sealfile

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"io"

	"github.com/awnumar/memguard"
)

// oaepLabel fixes the RSA-OAEP label for every wrap/unwrap in this module,
// mirroring age's ssh-rsa recipient's fixed "age-tool.com ssh-rsa" label.
const oaepLabel = "sealfile.io/v1 kek"

// aeadKeySize is the length in bytes of the random key wrapped under the
// recipient's RSA public key. It is used directly as the AES-256-GCM key;
// the wrapped value IS the key, not a pre-key (see wrapKey).
const aeadKeySize = 32

const pemPrivateType = "PRIVATE KEY"
const pemPublicType = "PUBLIC KEY"

// KeyPair holds an RSA key pair, either half of which may be absent: a
// public-only KeyPair (loaded from a .pub file) can wrap but not unwrap.
type KeyPair struct {
	priv *rsa.PrivateKey
	pub  *rsa.PublicKey
}

// GenerateKeyPair creates a new RSA key pair. bits must be 2048 or 4096;
// anything else is rejected before any RNG work happens.
func GenerateKeyPair(bits int) (*KeyPair, error) {
	if bits != 2048 && bits != 4096 {
		return nil, wrapErr(KeyGen, errUnsupportedBits)
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, wrapErr(KeyGen, err)
	}
	return &KeyPair{priv: priv, pub: &priv.PublicKey}, nil
}

var errUnsupportedBits = &strError{"rsa bit length must be 2048 or 4096"}

type strError struct{ s string }

func (e *strError) Error() string { return e.s }

// Public returns the public half of the pair, or nil if this KeyPair was
// loaded from a private-only source (never the case for this module's
// loaders, which always populate both from a private key, but callers that
// construct a KeyPair directly may leave it nil).
func (k *KeyPair) Public() *rsa.PublicKey { return k.pub }

// Private returns the private half, or nil for a public-only KeyPair.
func (k *KeyPair) Private() *rsa.PrivateKey { return k.priv }

// MarshalPublicPEM encodes the public key as a PKIX DER block in a "PUBLIC
// KEY" PEM envelope.
func (k *KeyPair) MarshalPublicPEM() ([]byte, error) {
	if k.pub == nil {
		return nil, wrapErr(PemParse, errNoPublicKey)
	}
	der, err := x509.MarshalPKIXPublicKey(k.pub)
	if err != nil {
		return nil, wrapErr(PemParse, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemPublicType, Bytes: der}), nil
}

// MarshalPrivatePEM encodes the private key as a PKCS8 DER block in a
// "PRIVATE KEY" PEM envelope.
func (k *KeyPair) MarshalPrivatePEM() ([]byte, error) {
	if k.priv == nil {
		return nil, wrapErr(PemParse, errNoPrivateKey)
	}
	der, err := x509.MarshalPKCS8PrivateKey(k.priv)
	if err != nil {
		return nil, wrapErr(PemParse, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemPrivateType, Bytes: der}), nil
}

var (
	errNoPublicKey  = &strError{"keypair has no public key"}
	errNoPrivateKey = &strError{"keypair has no private key"}
	errNotRSAKey    = &strError{"PEM does not contain an RSA key"}
)

// ParsePublicPEM loads a public-only KeyPair from a PKIX "PUBLIC KEY" PEM
// block.
func ParsePublicPEM(data []byte) (*KeyPair, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemPublicType {
		return nil, wrapErr(PemParse, errNotPublicPEM)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, wrapErr(PemParse, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, wrapErr(PemParse, errNotRSAKey)
	}
	return &KeyPair{pub: rsaPub}, nil
}

// ParsePrivatePEM loads a full KeyPair from a PKCS8 "PRIVATE KEY" PEM block.
func ParsePrivatePEM(data []byte) (*KeyPair, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemPrivateType {
		return nil, wrapErr(PemParse, errNotPrivatePEM)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, wrapErr(PemParse, err)
	}
	rsaPriv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, wrapErr(PemParse, errNotRSAKey)
	}
	return &KeyPair{priv: rsaPriv, pub: &rsaPriv.PublicKey}, nil
}

var (
	errNotPublicPEM  = &strError{"not a PUBLIC KEY PEM block"}
	errNotPrivatePEM = &strError{"not a PRIVATE KEY PEM block"}
)

// wrapKey generates a fresh random 32-byte AES-256-GCM key and wraps it
// under pub with RSA-OAEP/SHA-256. The wrapped bytes are exactly
// RSA-OAEP(aeadKey): the AEAD key is never derived or stretched, it is the
// same 32 bytes on both sides of the wrap, matching the wire model where
// wrapped_key carries the key the chunk sealer uses directly.
func wrapKey(pub *rsa.PublicKey) (wrapped []byte, aeadKey *memguard.LockedBuffer, err error) {
	aeadKey = memguard.NewBuffer(aeadKeySize)
	if _, err := io.ReadFull(rand.Reader, aeadKey.Bytes()); err != nil {
		aeadKey.Destroy()
		return nil, nil, wrapErr(RngFail, err)
	}

	wrapped, err = rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, aeadKey.Bytes(), []byte(oaepLabel))
	if err != nil {
		aeadKey.Destroy()
		return nil, nil, wrapErr(RsaWrap, err)
	}
	return wrapped, aeadKey, nil
}

// unwrapKey reverses wrapKey: it recovers the 32-byte AEAD key with
// RSA-OAEP/SHA-256 under priv.
func unwrapKey(priv *rsa.PrivateKey, wrapped []byte) (*memguard.LockedBuffer, error) {
	raw, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, []byte(oaepLabel))
	if err != nil {
		return nil, wrapErr(RsaUnwrap, err)
	}
	if len(raw) != aeadKeySize {
		memguard.WipeBytes(raw)
		return nil, wrapErr(RsaUnwrap, errBadKeySize)
	}
	// NewBufferFromBytes copies raw into locked memory and wipes raw in place.
	return memguard.NewBufferFromBytes(raw), nil
}

var errBadKeySize = &strError{"unwrapped key is not 32 bytes"}
