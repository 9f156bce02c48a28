// quantum.go: Post-quantum envelope built on ML-KEM-768 key
// encapsulation and ML-DSA-65 signatures.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package aegis

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	goerrors "github.com/agilira/go-errors"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"golang.org/x/crypto/hkdf"
)

// ML-KEM-768 and ML-DSA-65 parameter sizes in bytes.
const (
	KEMPublicKeySize  = 1184
	KEMPrivateKeySize = 2400
	KEMCiphertextSize = 1088
	SharedSecretSize  = 32

	SigPublicKeySize  = mldsa65.PublicKeySize
	SigPrivateKeySize = mldsa65.PrivateKeySize
	SignatureSize     = mldsa65.SignatureSize
)

// Signature envelope framing.
const (
	stampSize   = 16
	sigMetaSize = 2

	envelopeVersion = 1
	algTagMLDSA65   = 0x01
)

// sealedInfo is the HKDF info string binding derived AEAD keys to this
// envelope format.
var sealedInfo = []byte("aegis-sealed-v1")

// mldsaVerify invokes the ML-DSA-65 verification primitive. Variable so
// tests can count invocations.
var mldsaVerify = func(pub *mldsa65.PublicKey, msg, sig []byte) bool {
	return mldsa65.Verify(pub, msg, nil, sig)
}

// KEMKeyPair holds packed ML-KEM-768 key material.
type KEMKeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// SigningKeyPair holds packed ML-DSA-65 key material.
type SigningKeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// SignatureEnvelope carries an ML-DSA-65 signature together with a
// 16-byte integrity stamp over signature‖meta and a 2-byte version and
// algorithm tag. The stamp is checked before the signature bytes reach
// the verification primitive, so a structurally-altered envelope never
// invokes cryptographic verification.
type SignatureEnvelope struct {
	Signature []byte `json:"signature"`
	Stamp     []byte `json:"stamp"`
	Meta      []byte `json:"meta"`
}

// GenerateKEMKeyPair produces a fresh ML-KEM-768 key pair.
func GenerateKEMKeyPair() (*KEMKeyPair, error) {
	pub, priv, err := mlkem768.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeKEM, "ML-KEM-768 key generation failed")
	}
	pubBytes, _ := pub.MarshalBinary()
	privBytes, _ := priv.MarshalBinary()
	return &KEMKeyPair{PublicKey: pubBytes, PrivateKey: privBytes}, nil
}

// GenerateSigningKeyPair produces a fresh ML-DSA-65 key pair.
func GenerateSigningKeyPair() (*SigningKeyPair, error) {
	pub, priv, err := mldsa65.GenerateKey(nil)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodePQCSign, "ML-DSA-65 key generation failed")
	}
	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodePQCSign, "failed to pack public key")
	}
	privBytes, err := priv.MarshalBinary()
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodePQCSign, "failed to pack private key")
	}
	return &SigningKeyPair{PublicKey: pubBytes, PrivateKey: privBytes}, nil
}

// Encapsulate derives a fresh shared secret for the holder of publicKey,
// returning the KEM ciphertext to transmit and the local copy of the
// secret. Decapsulate on the matching private key recovers the same
// secret.
func Encapsulate(publicKey []byte) (ciphertext, sharedSecret []byte, err error) {
	if len(publicKey) != KEMPublicKeySize {
		richErr := goerrors.New(ErrCodeKEM, fmt.Sprintf("public key must be %d bytes, got %d", KEMPublicKeySize, len(publicKey)))
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidKeySize, richErr)
	}

	var pub mlkem768.PublicKey
	pub.Unpack(publicKey)

	ciphertext = make([]byte, KEMCiphertextSize)
	sharedSecret = make([]byte, SharedSecretSize)
	pub.EncapsulateTo(ciphertext, sharedSecret, nil)
	return ciphertext, sharedSecret, nil
}

// Decapsulate recovers the shared secret from a KEM ciphertext.
func Decapsulate(ciphertext, privateKey []byte) ([]byte, error) {
	if len(ciphertext) != KEMCiphertextSize {
		richErr := goerrors.New(ErrCodeKEM, fmt.Sprintf("ciphertext must be %d bytes, got %d", KEMCiphertextSize, len(ciphertext)))
		return nil, fmt.Errorf("%w: %w", ErrFileFormat, richErr)
	}
	if len(privateKey) != KEMPrivateKeySize {
		richErr := goerrors.New(ErrCodeKEM, fmt.Sprintf("private key must be %d bytes, got %d", KEMPrivateKeySize, len(privateKey)))
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeySize, richErr)
	}

	var priv mlkem768.PrivateKey
	if err := priv.Unpack(privateKey); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeKEM, "failed to unpack private key")
	}

	sharedSecret := make([]byte, SharedSecretSize)
	priv.DecapsulateTo(sharedSecret, ciphertext)
	return sharedSecret, nil
}

// SealedEncrypt encapsulates against kemPublicKey, derives a one-time
// AEAD key from the shared secret via HKDF-SHA-256, and encrypts data
// under it. The encapsulated key travels with the envelope; only the
// holder of the matching KEM private key can rebuild the AEAD key.
func SealedEncrypt(data, kemPublicKey []byte) (*SealedEnvelope, error) {
	ct, ss, err := Encapsulate(kemPublicKey)
	if err != nil {
		return nil, err
	}
	defer Zeroize(ss)

	key, err := deriveSealedKey(ss, ct)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	env, err := EncryptAEAD(data, key)
	if err != nil {
		return nil, err
	}
	return &SealedEnvelope{
		EncapsulatedKey: ct,
		Ciphertext:      env.Ciphertext,
		Nonce:           env.Nonce,
		AuthTag:         env.AuthTag,
	}, nil
}

// SealedDecrypt is the mirror of SealedEncrypt.
func SealedDecrypt(env *SealedEnvelope, kemPrivateKey []byte) ([]byte, error) {
	if env == nil {
		return nil, goerrors.New(ErrCodeDecrypt, "envelope cannot be nil")
	}

	ss, err := Decapsulate(env.EncapsulatedKey, kemPrivateKey)
	if err != nil {
		return nil, err
	}
	defer Zeroize(ss)

	key, err := deriveSealedKey(ss, env.EncapsulatedKey)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	return DecryptAEAD(&Envelope{
		Ciphertext: env.Ciphertext,
		Nonce:      env.Nonce,
		AuthTag:    env.AuthTag,
		Algorithm:  AlgorithmAESGCM,
		KeyHash:    key.IntegrityHash,
	}, key)
}

// deriveSealedKey expands a KEM shared secret into an AES-256 key. The
// salt is the hash of the KEM ciphertext so each encapsulation yields an
// independent key even if a shared secret were ever repeated.
func deriveSealedKey(sharedSecret, kemCiphertext []byte) (*Key, error) {
	salt := sha256.Sum256(kemCiphertext)
	reader := hkdf.New(sha256.New, sharedSecret, salt[:], sealedInfo)

	raw := make([]byte, int(KeyLength256))
	if _, err := io.ReadFull(reader, raw); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeKDF, "key expansion failed")
	}
	return newKeyFromRaw(raw), nil
}

// SignMessage signs message with an ML-DSA-65 private key and wraps the
// signature in an envelope with its integrity stamp and meta tag.
func SignMessage(message, signingPrivateKey []byte) (*SignatureEnvelope, error) {
	if len(signingPrivateKey) != SigPrivateKeySize {
		richErr := goerrors.New(ErrCodePQCSign, fmt.Sprintf("private key must be %d bytes, got %d", SigPrivateKeySize, len(signingPrivateKey)))
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeySize, richErr)
	}

	var priv mldsa65.PrivateKey
	if err := priv.UnmarshalBinary(signingPrivateKey); err != nil {
		return nil, goerrors.Wrap(err, ErrCodePQCSign, "failed to unpack private key")
	}

	sig := make([]byte, SignatureSize)
	if err := mldsa65.SignTo(&priv, message, nil, false, sig); err != nil {
		return nil, goerrors.Wrap(err, ErrCodePQCSign, "signing failed")
	}

	meta := []byte{envelopeVersion, algTagMLDSA65}
	return &SignatureEnvelope{
		Signature: sig,
		Stamp:     signatureStamp(sig, meta),
		Meta:      meta,
	}, nil
}

// VerifyMessage reports whether env carries a valid signature over
// message by the holder of signingPublicKey.
//
// The integrity stamp and meta tag are validated first; if either fails,
// the signature bytes are never handed to the verification primitive.
func VerifyMessage(message []byte, env *SignatureEnvelope, signingPublicKey []byte) bool {
	if env == nil || len(signingPublicKey) != SigPublicKeySize {
		return false
	}
	if len(env.Signature) != SignatureSize || len(env.Stamp) != stampSize || len(env.Meta) != sigMetaSize {
		return false
	}
	if env.Meta[0] != envelopeVersion || env.Meta[1] != algTagMLDSA65 {
		return false
	}
	if !ConstantTimeEqual(env.Stamp, signatureStamp(env.Signature, env.Meta)) {
		return false
	}

	var pub mldsa65.PublicKey
	if err := pub.UnmarshalBinary(signingPublicKey); err != nil {
		return false
	}
	return mldsaVerify(&pub, message, env.Signature)
}

// signatureStamp computes the 16-byte anti-forgery stamp over
// signature‖meta.
func signatureStamp(sig, meta []byte) []byte {
	h := sha256.New()
	h.Write(sig)
	h.Write(meta)
	return h.Sum(nil)[:stampSize]
}
