// asymmetric.go: RSA key pairs, OAEP encryption, PSS signatures and
// hybrid envelopes.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package aegis

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	goerrors "github.com/agilira/go-errors"
)

// MinRSABits is the minimum accepted RSA modulus size.
const MinRSABits = 2048

// RSAKeyPair holds an RSA key pair. Public and private components come
// from the same generation event; structural validation rejects
// mismatched halves before use.
type RSAKeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
	Bits    int
}

// GenerateRSAKeyPair generates an RSA key pair of the given modulus size.
// Zero selects the 2048-bit default; anything below MinRSABits is
// rejected.
func GenerateRSAKeyPair(bits int) (*RSAKeyPair, error) {
	if bits == 0 {
		bits = MinRSABits
	}
	if bits < MinRSABits {
		return nil, goerrors.New(ErrCodeRSAKeyGen, fmt.Sprintf("RSA modulus must be at least %d bits, got %d", MinRSABits, bits))
	}

	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeRSAKeyGen, "failed to generate RSA key pair")
	}
	return &RSAKeyPair{Private: priv, Public: &priv.PublicKey, Bits: bits}, nil
}

// Validate performs structural checks on the pair: both halves present
// and the public modulus matching the private key's.
func (kp *RSAKeyPair) Validate() error {
	if kp == nil || kp.Private == nil || kp.Public == nil {
		return goerrors.New(ErrCodeRSAKeyGen, "key pair is missing a component")
	}
	if kp.Private.PublicKey.N.Cmp(kp.Public.N) != 0 {
		return goerrors.New(ErrCodeRSAKeyGen, "public and private components do not match")
	}
	return nil
}

// MaxOAEPPlaintextSize returns the largest plaintext the given public key
// can encrypt under OAEP/SHA-256: the key size in bytes minus the padding
// overhead.
func MaxOAEPPlaintextSize(pub *rsa.PublicKey) int {
	return pub.Size() - 2*sha256.Size - 2
}

// EncryptRSA encrypts plaintext under OAEP/SHA-256 with the recipient's
// public key.
//
// Plaintext larger than MaxOAEPPlaintextSize fails with
// ErrPlaintextTooLarge; data is never silently truncated. For payloads of
// arbitrary size use HybridEncrypt.
func EncryptRSA(plaintext []byte, pub *rsa.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, goerrors.New(ErrCodeRSAEncrypt, "public key cannot be nil")
	}
	if maxLen := MaxOAEPPlaintextSize(pub); len(plaintext) > maxLen {
		richErr := goerrors.New(ErrCodeRSAPlaintextSize, fmt.Sprintf("plaintext is %d bytes, OAEP limit for this key is %d", len(plaintext), maxLen))
		return nil, fmt.Errorf("%w: %w", ErrPlaintextTooLarge, richErr)
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeRSAEncrypt, "OAEP encryption failed")
	}
	return ciphertext, nil
}

// DecryptRSA decrypts an OAEP/SHA-256 ciphertext with the private key.
func DecryptRSA(ciphertext []byte, priv *rsa.PrivateKey) ([]byte, error) {
	if priv == nil {
		return nil, goerrors.New(ErrCodeRSADecrypt, "private key cannot be nil")
	}
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ciphertext, nil)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeRSADecrypt, "OAEP decryption failed")
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, richErr)
	}
	return plaintext, nil
}

// SignRSA signs arbitrary data with RSA-PSS over SHA-256.
func SignRSA(data []byte, priv *rsa.PrivateKey) ([]byte, error) {
	if priv == nil {
		return nil, goerrors.New(ErrCodeSign, "private key cannot be nil")
	}
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], nil)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeSign, "PSS signing failed")
	}
	return sig, nil
}

// VerifyRSA verifies an RSA-PSS signature over data. A failed
// verification returns ErrSignatureVerification.
func VerifyRSA(data, signature []byte, pub *rsa.PublicKey) error {
	if pub == nil {
		return goerrors.New(ErrCodeVerify, "public key cannot be nil")
	}
	digest := sha256.Sum256(data)
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], signature, nil); err != nil {
		richErr := goerrors.Wrap(err, ErrCodeVerify, "PSS verification failed")
		return fmt.Errorf("%w: %w", ErrSignatureVerification, richErr)
	}
	return nil
}

// HybridOptions configures optional signing of hybrid envelopes.
type HybridOptions struct {
	// SigningKey, when set, produces a detached PSS signature over the
	// envelope's structural fields at encryption time.
	SigningKey *rsa.PrivateKey

	// VerifyKey, when set, requires and verifies the detached signature
	// at decryption time before any private-key operation is performed.
	VerifyKey *rsa.PublicKey
}

// HybridEncrypt encrypts a plaintext of arbitrary size for an RSA
// recipient: a fresh one-time AES-256 key seals the payload, and the key
// itself is wrapped with OAEP under the recipient's public key. The
// one-time key is zeroized before returning and never reused.
//
// When opts.SigningKey is set, the envelope additionally carries a
// detached signature over its structural fields.
func HybridEncrypt(plaintext []byte, pub *rsa.PublicKey, opts *HybridOptions) (*HybridEnvelope, error) {
	if pub == nil {
		return nil, goerrors.New(ErrCodeRSAEncrypt, "public key cannot be nil")
	}

	oneTime, err := GenerateKey(KeyLength256)
	if err != nil {
		return nil, err
	}
	defer oneTime.Destroy()

	payload, err := EncryptAEAD(plaintext, oneTime)
	if err != nil {
		return nil, err
	}

	wrapped, err := EncryptRSA(oneTime.Bytes, pub)
	if err != nil {
		return nil, err
	}

	env := &HybridEnvelope{
		Payload:    payload,
		WrappedKey: wrapped,
		Algorithm:  AlgorithmHybrid,
	}

	if opts != nil && opts.SigningKey != nil {
		sig, err := SignRSA(hybridStructuralDigest(env), opts.SigningKey)
		if err != nil {
			return nil, err
		}
		env.Signature = sig
	}
	return env, nil
}

// HybridDecrypt opens a hybrid envelope with the recipient's private key.
//
// When opts.VerifyKey is set, the detached signature is verified first;
// an invalid or missing signature fails with ErrSignatureVerification
// before the private key is ever used. The recovered one-time key is
// zeroized before returning.
func HybridDecrypt(env *HybridEnvelope, priv *rsa.PrivateKey, opts *HybridOptions) ([]byte, error) {
	if env == nil || env.Payload == nil {
		richErr := goerrors.New(ErrCodeDecrypt, "hybrid envelope is incomplete")
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, richErr)
	}
	if env.Algorithm != AlgorithmHybrid {
		richErr := goerrors.New(ErrCodeUnsupportedAlg, fmt.Sprintf("envelope algorithm %q is not hybrid", env.Algorithm))
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedAlgorithm, richErr)
	}

	if opts != nil && opts.VerifyKey != nil {
		if len(env.Signature) == 0 {
			richErr := goerrors.New(ErrCodeVerify, "envelope carries no signature")
			return nil, fmt.Errorf("%w: %w", ErrSignatureVerification, richErr)
		}
		if err := VerifyRSA(hybridStructuralDigest(env), env.Signature, opts.VerifyKey); err != nil {
			return nil, err
		}
	}

	rawKey, err := DecryptRSA(env.WrappedKey, priv)
	if err != nil {
		return nil, err
	}
	oneTime := newKeyFromRaw(rawKey)
	defer oneTime.Destroy()

	return DecryptAEAD(env.Payload, oneTime)
}

// hybridStructuralDigest hashes the structural fields covered by the
// detached signature: algorithm tag, nonce, auth tag, ciphertext and
// wrapped key, each length-prefixed so field boundaries are unambiguous.
func hybridStructuralDigest(env *HybridEnvelope) []byte {
	h := sha256.New()
	var lenBuf [4]byte

	writeField := func(field []byte) {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
		h.Write(lenBuf[:])
		h.Write(field)
	}

	h.Write([]byte{byte(env.Algorithm), byte(env.Payload.Algorithm)})
	writeField(env.Payload.Nonce)
	writeField(env.Payload.AuthTag)
	writeField(env.Payload.Ciphertext)
	writeField(env.WrappedKey)
	return h.Sum(nil)
}
