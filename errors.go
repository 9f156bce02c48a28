// errors.go: Error taxonomy for the aegis encryption engine.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package aegis

import (
	"errors"
)

// Public standard errors for drop-in compatibility.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrInvalidKeySize is returned when a key does not have a supported size.
	ErrInvalidKeySize = errors.New("aegis: invalid key size")

	// ErrKeyIntegrity is returned when a key's integrity hash does not match
	// its raw bytes. The operation aborts before any ciphertext is touched.
	ErrKeyIntegrity = errors.New("aegis: key integrity check failed")

	// ErrKeyMismatch is returned when an envelope's key-hash reference does
	// not match the key supplied for decryption.
	ErrKeyMismatch = errors.New("aegis: envelope key mismatch")

	// ErrDecrypt is returned when decryption fails due to authentication
	// failure or malformed input. The cause is deliberately not
	// distinguished further.
	ErrDecrypt = errors.New("aegis: decryption failed")

	// ErrUnsupportedAlgorithm is returned when an envelope carries an
	// algorithm identifier the engine does not recognize.
	ErrUnsupportedAlgorithm = errors.New("aegis: unsupported algorithm")

	// ErrPlaintextTooLarge is returned when a plaintext exceeds the maximum
	// size the asymmetric padding scheme allows. Data is never truncated.
	ErrPlaintextTooLarge = errors.New("aegis: plaintext too large for asymmetric encryption")

	// ErrSignatureVerification is returned when a detached signature over an
	// envelope's structural fields does not verify.
	ErrSignatureVerification = errors.New("aegis: signature verification failed")

	// ErrFileFormat is returned when a file container's length prefix or
	// metadata block cannot be parsed.
	ErrFileFormat = errors.New("aegis: invalid file container format")

	// ErrChecksumMismatch is returned when the post-decryption checksum of a
	// file container does not match the recorded plaintext checksum.
	ErrChecksumMismatch = errors.New("aegis: plaintext checksum mismatch")

	// ErrCipherInit is returned when cipher initialization fails.
	ErrCipherInit = errors.New("aegis: cipher initialization error")

	// ErrNonceGen is returned when nonce generation fails.
	ErrNonceGen = errors.New("aegis: nonce generation error")

	// ErrWorkerTimeout is returned when a submitted task does not complete
	// within the pool's task timeout. The underlying unit of work is not
	// forcibly cancelled; a late result is discarded.
	ErrWorkerTimeout = errors.New("aegis: worker task timed out")

	// ErrPoolClosed is returned when submitting to a closed worker pool.
	ErrPoolClosed = errors.New("aegis: worker pool closed")
)

// Error codes for rich error handling via github.com/agilira/go-errors.
const (
	ErrCodeInvalidKey       = "CRYPTO_INVALID_KEY"
	ErrCodeKeyIntegrity     = "CRYPTO_KEY_INTEGRITY"
	ErrCodeKeyMismatch      = "CRYPTO_KEY_MISMATCH"
	ErrCodeKeyGen           = "CRYPTO_KEY_GEN"
	ErrCodeNonceGen         = "CRYPTO_NONCE_GEN"
	ErrCodeCipherInit       = "CRYPTO_CIPHER_INIT"
	ErrCodeDecrypt          = "CRYPTO_DECRYPT"
	ErrCodeUnsupportedAlg   = "CRYPTO_UNSUPPORTED_ALGORITHM"
	ErrCodeKDF              = "CRYPTO_KDF"
	ErrCodeRSAKeyGen        = "RSA_KEY_GEN"
	ErrCodeRSAEncrypt       = "RSA_ENCRYPT"
	ErrCodeRSADecrypt       = "RSA_DECRYPT"
	ErrCodeRSAPlaintextSize = "RSA_PLAINTEXT_TOO_LARGE"
	ErrCodeSign             = "SIGNATURE_SIGN"
	ErrCodeVerify           = "SIGNATURE_VERIFY"
	ErrCodeCertificate      = "CERTIFICATE"
	ErrCodeFileRead         = "FILE_READ"
	ErrCodeFileWrite        = "FILE_WRITE"
	ErrCodeFileFormat       = "FILE_FORMAT"
	ErrCodeChecksum         = "FILE_CHECKSUM_MISMATCH"
	ErrCodeManifest         = "DIRECTORY_MANIFEST"
	ErrCodeArchive          = "ARCHIVE"
	ErrCodeKEM              = "PQC_KEM"
	ErrCodePQCSign          = "PQC_SIGN"
	ErrCodeWorkerTimeout    = "WORKER_TIMEOUT"
	ErrCodePoolClosed       = "WORKER_POOL_CLOSED"
)
