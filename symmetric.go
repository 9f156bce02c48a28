// symmetric.go: Authenticated symmetric encryption with key-integrity
// binding, a non-authenticated fallback mode and timing-normalized
// decryption.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package aegis

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	goerrors "github.com/agilira/go-errors"
)

// aeadContext is the fixed associated data authenticated alongside every
// AEAD envelope, binding ciphertexts to this engine.
var aeadContext = []byte("aegis-engine-v1")

// gcmTagSize is the AES-GCM authentication tag size in bytes.
const gcmTagSize = 16

// minDecryptDuration is the fixed minimum wall-clock duration of a
// DecryptAEAD call. Every exit path, success or failure, sleeps out the
// remainder so key-integrity failures, key mismatches and tag failures
// are observationally similar to successful decryption.
const minDecryptDuration = 5 * time.Millisecond

// Global cipher cache - avoids aes.NewCipher + cipher.NewGCM overhead on
// repeated operations under the same key.
var (
	cipherCacheMu sync.RWMutex
	cipherCache   = make(map[string]cipher.AEAD)
)

// newGCM is the AEAD constructor. It is a variable so tests can force the
// fallback path; production code never reassigns it.
var newGCM = func(block cipher.Block) (cipher.AEAD, error) {
	return cipher.NewGCM(block)
}

// getCachedGCM returns a cached GCM cipher for the key, creating it if
// necessary.
func getCachedGCM(key *Key) (cipher.AEAD, error) {
	fingerprint := key.Fingerprint()

	cipherCacheMu.RLock()
	if gcm, exists := cipherCache[fingerprint]; exists {
		cipherCacheMu.RUnlock()
		return gcm, nil
	}
	cipherCacheMu.RUnlock()

	block, err := aes.NewCipher(key.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := newGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}

	cipherCacheMu.Lock()
	cipherCache[fingerprint] = gcm
	cipherCacheMu.Unlock()

	return gcm, nil
}

// EncryptAEAD encrypts plaintext with AES-GCM under the given key.
//
// A fresh random nonce is generated for every call; there is no public
// path to supply one. The returned envelope carries the nonce, the
// detached authentication tag, the algorithm identifier and a reference
// hash binding it to the key that produced it.
//
// If the AEAD constructor is unavailable the engine falls back to
// AES-CTR; the resulting envelope has an empty AuthTag, which callers
// must treat as "integrity not independently verified by this layer" and
// rely on outer checksums (e.g. the file container's).
//
// Example:
//
//	key, _ := aegis.GenerateKey(aegis.KeyLength256)
//	env, err := aegis.EncryptAEAD([]byte("payload"), key)
//	if err != nil {
//		log.Fatal(err)
//	}
func EncryptAEAD(plaintext []byte, key *Key) (*Envelope, error) {
	if err := key.CheckIntegrity(); err != nil {
		return nil, err
	}
	if len(key.Bytes) != int(KeyLength128) && len(key.Bytes) != int(KeyLength256) {
		richErr := goerrors.New(ErrCodeInvalidKey, fmt.Sprintf("invalid key size: must be 16 or 32 bytes (got %d)", len(key.Bytes)))
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeySize, richErr)
	}

	gcm, err := getCachedGCM(key)
	if err != nil {
		// Primary AEAD mode unavailable: non-authenticated fallback.
		return encryptFallbackCTR(plaintext, key)
	}

	nonceBuffer := getBuffer(gcm.NonceSize())
	defer putBuffer(nonceBuffer)
	nonce := (*nonceBuffer)[:gcm.NonceSize()]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		richErr := goerrors.Wrap(err, ErrCodeNonceGen, "failed to generate nonce")
		return nil, fmt.Errorf("%w: %w", ErrNonceGen, richErr)
	}

	return sealEnvelope(gcm, plaintext, nonce, key), nil
}

// encryptWithNonce encrypts with a caller-supplied nonce. It exists only
// for deterministic tests; nonce reuse under one key breaks GCM.
func encryptWithNonce(plaintext []byte, key *Key, nonce []byte) (*Envelope, error) {
	if err := key.CheckIntegrity(); err != nil {
		return nil, err
	}
	gcm, err := getCachedGCM(key)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeCipherInit, "failed to get cached cipher")
		return nil, fmt.Errorf("%w: %w", ErrCipherInit, richErr)
	}
	if len(nonce) != gcm.NonceSize() {
		richErr := goerrors.New(ErrCodeNonceGen, fmt.Sprintf("nonce must be %d bytes, got %d", gcm.NonceSize(), len(nonce)))
		return nil, fmt.Errorf("%w: %w", ErrNonceGen, richErr)
	}
	return sealEnvelope(gcm, plaintext, nonce, key), nil
}

// sealEnvelope runs gcm.Seal into pooled scratch space and splits the
// output into ciphertext and detached tag.
func sealEnvelope(gcm cipher.AEAD, plaintext, nonce []byte, key *Key) *Envelope {
	expectedSize := len(plaintext) + gcm.Overhead()
	scratch := getScratch()
	defer putScratch(scratch)
	if cap(scratch) < expectedSize {
		scratch = make([]byte, 0, expectedSize)
	}

	sealed := gcm.Seal(scratch, nonce, plaintext, aeadContext) // #nosec G407 -- nonce is generated from crypto/rand, not hardcoded
	split := len(sealed) - gcmTagSize

	ciphertext := make([]byte, split)
	copy(ciphertext, sealed[:split])
	tag := make([]byte, gcmTagSize)
	copy(tag, sealed[split:])
	nonceCopy := make([]byte, len(nonce))
	copy(nonceCopy, nonce)

	return &Envelope{
		Ciphertext: ciphertext,
		Nonce:      nonceCopy,
		AuthTag:    tag,
		Algorithm:  AlgorithmAESGCM,
		KeyHash:    append([]byte(nil), key.IntegrityHash...),
	}
}

// encryptFallbackCTR encrypts with AES-CTR when GCM is unavailable.
// The envelope omits AuthTag; this layer provides no integrity.
func encryptFallbackCTR(plaintext []byte, key *Key) (*Envelope, error) {
	block, err := aes.NewCipher(key.Bytes)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeCipherInit, "failed to create AES cipher")
		return nil, fmt.Errorf("%w: %w", ErrCipherInit, richErr)
	}

	iv, err := GenerateIV(aes.BlockSize)
	if err != nil {
		return nil, err
	}

	ciphertext := make([]byte, len(plaintext))
	cipher.NewCTR(block, iv).XORKeyStream(ciphertext, plaintext)

	return &Envelope{
		Ciphertext: ciphertext,
		Nonce:      iv,
		Algorithm:  AlgorithmAESCTR,
		KeyHash:    append([]byte(nil), key.IntegrityHash...),
	}, nil
}

// DecryptAEAD decrypts an envelope under the given key.
//
// The checks run in a fixed order: the key's integrity hash is recomputed
// and verified first (ErrKeyIntegrity), then the envelope's key-hash
// reference is compared in constant time against the key (ErrKeyMismatch),
// then the AEAD open verifies the authentication tag (ErrDecrypt). The
// whole call is held to a fixed minimum duration on every exit path.
func DecryptAEAD(env *Envelope, key *Key) ([]byte, error) {
	started := time.Now()
	defer enforceTimingFloor(started)

	if env == nil {
		richErr := goerrors.New(ErrCodeDecrypt, "envelope cannot be nil")
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, richErr)
	}
	if err := key.CheckIntegrity(); err != nil {
		return nil, err
	}
	if len(env.KeyHash) > 0 && !ConstantTimeEqual(env.KeyHash, key.IntegrityHash) {
		richErr := goerrors.New(ErrCodeKeyMismatch, "envelope was not produced by the supplied key")
		return nil, fmt.Errorf("%w: %w", ErrKeyMismatch, richErr)
	}

	switch env.Algorithm {
	case AlgorithmAESGCM:
		return openGCM(env, key)
	case AlgorithmAESCTR:
		return openCTR(env, key)
	default:
		richErr := goerrors.New(ErrCodeUnsupportedAlg, fmt.Sprintf("envelope algorithm %q is not a symmetric mode", env.Algorithm))
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedAlgorithm, richErr)
	}
}

func openGCM(env *Envelope, key *Key) ([]byte, error) {
	gcm, err := getCachedGCM(key)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeCipherInit, "failed to get cached cipher")
		return nil, fmt.Errorf("%w: %w", ErrCipherInit, richErr)
	}
	if len(env.Nonce) != gcm.NonceSize() || len(env.AuthTag) != gcmTagSize {
		richErr := goerrors.New(ErrCodeDecrypt, "malformed envelope")
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, richErr)
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+gcmTagSize)
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.AuthTag...)

	plaintext, err := gcm.Open(nil, env.Nonce, sealed, aeadContext)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeDecrypt, "GCM authentication failed (wrong key or tampered data)")
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, richErr)
	}
	return plaintext, nil
}

func openCTR(env *Envelope, key *Key) ([]byte, error) {
	block, err := aes.NewCipher(key.Bytes)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeCipherInit, "failed to create AES cipher")
		return nil, fmt.Errorf("%w: %w", ErrCipherInit, richErr)
	}
	if len(env.Nonce) != aes.BlockSize {
		richErr := goerrors.New(ErrCodeDecrypt, "malformed envelope")
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, richErr)
	}
	plaintext := make([]byte, len(env.Ciphertext))
	cipher.NewCTR(block, env.Nonce).XORKeyStream(plaintext, env.Ciphertext)
	return plaintext, nil
}

// enforceTimingFloor sleeps out the remainder of minDecryptDuration.
// Invoked from a single deferred guard so no exit path can skip it.
func enforceTimingFloor(started time.Time) {
	if remaining := minDecryptDuration - time.Since(started); remaining > 0 {
		time.Sleep(remaining)
	}
}
