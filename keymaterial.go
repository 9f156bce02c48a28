// keymaterial.go: Key, IV and salt generation with integrity binding,
// password-based derivation, hashing, HMAC and constant-time comparison.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package aegis

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"hash"
	"io"

	goerrors "github.com/agilira/go-errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// KeyLength is the size class of a symmetric key in bytes.
type KeyLength int

const (
	// KeyLength128 is a 128-bit key (AES-128).
	KeyLength128 KeyLength = 16

	// KeyLength256 is a 256-bit key (AES-256). This is the default for
	// every internally generated key.
	KeyLength256 KeyLength = 32
)

const (
	// DefaultIVSize is the recommended IV/nonce size for AES-GCM.
	DefaultIVSize = 12

	// DefaultSaltSize is the recommended salt size for key derivation.
	DefaultSaltSize = 16

	// DefaultPBKDF2Iterations is the minimum sensible PBKDF2 iteration
	// count and the default when callers pass zero.
	DefaultPBKDF2Iterations = 100_000
)

// HashAlgorithm selects the digest used by HashData and ComputeHMAC.
type HashAlgorithm string

const (
	HashSHA256 HashAlgorithm = "SHA-256"
	HashSHA512 HashAlgorithm = "SHA-512"
)

// Key is raw secret bytes bound to an algorithm tag, a size class and an
// integrity hash computed at generation time.
//
// The integrity hash travels with the key wherever it is passed. Before
// any use the hash is recomputed and compared in constant time; a
// mismatch is a fatal ErrKeyIntegrity, never a silent fallback.
type Key struct {
	Bytes         []byte    `json:"-"`
	Algorithm     Algorithm `json:"algorithm"`
	Bits          int       `json:"bits"`
	IntegrityHash []byte    `json:"integrityHash"`
}

// GenerateKey generates a cryptographically secure random symmetric key
// of the given size class, with its integrity hash precomputed.
//
// Example:
//
//	key, err := aegis.GenerateKey(aegis.KeyLength256)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer key.Destroy()
func GenerateKey(length KeyLength) (*Key, error) {
	if length != KeyLength128 && length != KeyLength256 {
		richErr := goerrors.New(ErrCodeInvalidKey, fmt.Sprintf("key length must be 16 or 32 bytes, got %d", length))
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeySize, richErr)
	}

	raw := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeKeyGen, "failed to generate key")
	}
	return newKeyFromRaw(raw), nil
}

// newKeyFromRaw wraps raw bytes into a Key with a fresh integrity hash.
// The slice is owned by the returned Key.
func newKeyFromRaw(raw []byte) *Key {
	sum := sha256.Sum256(raw)
	return &Key{
		Bytes:         raw,
		Algorithm:     AlgorithmAESGCM,
		Bits:          len(raw) * 8,
		IntegrityHash: sum[:],
	}
}

// CheckIntegrity recomputes the key's integrity hash and compares it in
// constant time to the carried hash. Any mismatch returns ErrKeyIntegrity.
func (k *Key) CheckIntegrity() error {
	if k == nil || len(k.Bytes) == 0 {
		richErr := goerrors.New(ErrCodeInvalidKey, "key has no material")
		return fmt.Errorf("%w: %w", ErrInvalidKeySize, richErr)
	}
	sum := sha256.Sum256(k.Bytes)
	if !ConstantTimeEqual(sum[:], k.IntegrityHash) {
		richErr := goerrors.New(ErrCodeKeyIntegrity, "key bytes do not match carried integrity hash")
		return fmt.Errorf("%w: %w", ErrKeyIntegrity, richErr)
	}
	return nil
}

// Fingerprint returns a short non-cryptographic identifier for the key:
// the first 8 bytes of its SHA-256 hash in hex. Useful for cache keys and
// diagnostics without exposing key material.
func (k *Key) Fingerprint() string {
	if k == nil || len(k.Bytes) == 0 {
		return ""
	}
	sum := sha256.Sum256(k.Bytes)
	return fmt.Sprintf("%016x", sum[:8])
}

// Clone returns a deep copy of the key. Used when key material must cross
// the worker-pool boundary by value.
func (k *Key) Clone() *Key {
	if k == nil {
		return nil
	}
	raw := make([]byte, len(k.Bytes))
	copy(raw, k.Bytes)
	hashCopy := make([]byte, len(k.IntegrityHash))
	copy(hashCopy, k.IntegrityHash)
	return &Key{Bytes: raw, Algorithm: k.Algorithm, Bits: k.Bits, IntegrityHash: hashCopy}
}

// Destroy zeroizes the key material in place. The key is unusable
// afterwards; CheckIntegrity will fail.
func (k *Key) Destroy() {
	if k == nil {
		return
	}
	Zeroize(k.Bytes)
}

// Zeroize securely wipes a byte slice from memory.
//
// Note: this function modifies the original slice in place.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// GenerateIV generates a cryptographically secure random IV/nonce of the
// given size. For AES-GCM, DefaultIVSize (12 bytes) is recommended.
func GenerateIV(size int) ([]byte, error) {
	if size <= 0 {
		return nil, goerrors.New(ErrCodeNonceGen, "IV size must be positive")
	}
	iv := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		richErr := goerrors.Wrap(err, ErrCodeNonceGen, "failed to generate IV")
		return nil, fmt.Errorf("%w: %w", ErrNonceGen, richErr)
	}
	return iv, nil
}

// GenerateSalt generates a cryptographically secure random salt of the
// given size for use with key derivation.
func GenerateSalt(size int) ([]byte, error) {
	if size <= 0 {
		return nil, goerrors.New(ErrCodeKDF, "salt size must be positive")
	}
	salt := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeKDF, "failed to generate salt")
	}
	return salt, nil
}

// DeriveKeyFromPassword derives a symmetric key from a password and salt
// using PBKDF2-SHA256. The derived key carries an integrity hash exactly
// like a generated key.
//
// Parameters:
//   - password: the password to derive from (cannot be empty)
//   - salt: random salt (cannot be empty)
//   - iterations: PBKDF2 iteration count; zero selects
//     DefaultPBKDF2Iterations (100,000)
//   - length: the desired key size class
//
// Example:
//
//	salt, _ := aegis.GenerateSalt(aegis.DefaultSaltSize)
//	key, err := aegis.DeriveKeyFromPassword([]byte("passphrase"), salt, 0, aegis.KeyLength256)
func DeriveKeyFromPassword(password, salt []byte, iterations int, length KeyLength) (*Key, error) {
	if len(password) == 0 {
		return nil, goerrors.New(ErrCodeKDF, "password cannot be empty")
	}
	if len(salt) == 0 {
		return nil, goerrors.New(ErrCodeKDF, "salt cannot be empty")
	}
	if iterations < 0 {
		return nil, goerrors.New(ErrCodeKDF, "iterations must be positive")
	}
	if iterations == 0 {
		iterations = DefaultPBKDF2Iterations
	}
	if length != KeyLength128 && length != KeyLength256 {
		richErr := goerrors.New(ErrCodeInvalidKey, fmt.Sprintf("key length must be 16 or 32 bytes, got %d", length))
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeySize, richErr)
	}

	raw := pbkdf2.Key(password, salt, iterations, int(length), sha256.New)
	return newKeyFromRaw(raw), nil
}

// KDFParams defines custom parameters for Argon2id key derivation.
// A zero field selects the library default.
type KDFParams struct {
	// Time is the number of Argon2id iterations.
	Time uint32 `json:"time,omitempty"`

	// Memory is the memory usage in MB.
	Memory uint32 `json:"memory,omitempty"`

	// Threads is the degree of parallelism.
	Threads uint8 `json:"threads,omitempty"`
}

// Default Argon2id parameters, balancing security and latency.
const (
	defaultArgon2Time    = 3
	defaultArgon2Memory  = 64
	defaultArgon2Threads = 4
)

// DeriveKeyArgon2 derives a symmetric key from a password and salt using
// Argon2id, the recommended KDF for interactive password material.
// Pass nil params to use secure defaults (Time: 3, Memory: 64MB, Threads: 4).
func DeriveKeyArgon2(password, salt []byte, params *KDFParams, length KeyLength) (*Key, error) {
	if len(password) == 0 {
		return nil, goerrors.New(ErrCodeKDF, "password cannot be empty")
	}
	if len(salt) == 0 {
		return nil, goerrors.New(ErrCodeKDF, "salt cannot be empty")
	}
	if length != KeyLength128 && length != KeyLength256 {
		richErr := goerrors.New(ErrCodeInvalidKey, fmt.Sprintf("key length must be 16 or 32 bytes, got %d", length))
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeySize, richErr)
	}

	time := uint32(defaultArgon2Time)
	memory := uint32(defaultArgon2Memory * 1024)
	threads := uint8(defaultArgon2Threads)
	if params != nil {
		if params.Time > 0 {
			time = params.Time
		}
		if params.Memory > 0 {
			memory = params.Memory * 1024
		}
		if params.Threads > 0 {
			threads = params.Threads
		}
	}

	raw := argon2.IDKey(password, salt, time, memory, threads, uint32(length)) // #nosec G115 -- length validated above
	return newKeyFromRaw(raw), nil
}

// HashData computes the digest of data with the selected algorithm.
func HashData(data []byte, alg HashAlgorithm) ([]byte, error) {
	h, err := newHash(alg)
	if err != nil {
		return nil, err
	}
	h.Write(data)
	return h.Sum(nil), nil
}

// ComputeHMAC computes an HMAC over data with the given key and digest.
func ComputeHMAC(data, key []byte, alg HashAlgorithm) ([]byte, error) {
	if len(key) == 0 {
		return nil, goerrors.New(ErrCodeInvalidKey, "HMAC key cannot be empty")
	}
	var newH func() hash.Hash
	switch alg {
	case HashSHA256:
		newH = sha256.New
	case HashSHA512:
		newH = sha512.New
	default:
		richErr := goerrors.New(ErrCodeUnsupportedAlg, fmt.Sprintf("unrecognized hash algorithm %q", alg))
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedAlgorithm, richErr)
	}
	mac := hmac.New(newH, key)
	mac.Write(data)
	return mac.Sum(nil), nil
}

func newHash(alg HashAlgorithm) (hash.Hash, error) {
	switch alg {
	case HashSHA256:
		return sha256.New(), nil
	case HashSHA512:
		return sha512.New(), nil
	default:
		richErr := goerrors.New(ErrCodeUnsupportedAlg, fmt.Sprintf("unrecognized hash algorithm %q", alg))
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedAlgorithm, richErr)
	}
}

// ConstantTimeEqual compares two byte slices in time independent of where
// the first mismatch occurs. The full length is always processed; the
// accumulated XOR is tested once at the end. Unequal lengths fail
// immediately at constant cost (length is not treated as secret).
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
