// container.go: Length-prefixed encrypted file container with embedded
// metadata and plaintext checksum.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package aegis

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	goerrors "github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// Container on-disk layout:
//
//	[4 bytes: big-endian uint32 metadataLength]
//	[metadataLength bytes: UTF-8 JSON metadata]
//	[remaining bytes: envelope JSON]
const (
	// ContainerVersion is the current container format version.
	ContainerVersion = 1

	// EncryptedExt is the suffix appended to encrypted files in
	// directory operations.
	EncryptedExt = ".encrypted"

	containerPrefixSize = 4

	// maxMetadataSize bounds the metadata block so a corrupted prefix
	// cannot trigger a pathological allocation.
	maxMetadataSize = 1 << 20
)

// FileMetadata is the JSON metadata block embedded in every container.
// Checksum is the SHA-256 hex digest of the plaintext, verified after
// decryption.
type FileMetadata struct {
	OriginalName        string `json:"originalName"`
	FileType            string `json:"fileType"`
	FileSize            int64  `json:"fileSize"`
	EncryptionAlgorithm string `json:"encryptionAlgorithm"`
	Timestamp           string `json:"timestamp"`
	Checksum            string `json:"checksum"`
	Version             int    `json:"version"`
}

// FileOptions selects the encryption mode for file and directory
// operations.
//
// When PublicKey is set, files are hybrid-encrypted for that recipient
// and PrivateKey is required to decrypt. Otherwise Key selects symmetric
// mode for both directions.
type FileOptions struct {
	Key        *Key
	PublicKey  *rsa.PublicKey
	PrivateKey *rsa.PrivateKey

	// Extensions is the allow-list for directory operations
	// (e.g. ".txt", ".pdf"). Empty means every regular file.
	Extensions []string
}

func (o *FileOptions) hybrid() bool { return o != nil && o.PublicKey != nil }

// EncryptFile encrypts the file at path into a container at outPath.
//
// The plaintext checksum is computed before encryption and embedded in
// the metadata block; DecryptFile verifies it after decryption. The
// source file is left untouched.
func EncryptFile(path, outPath string, opts *FileOptions) (*FileMetadata, error) {
	if opts == nil || (opts.Key == nil && !opts.hybrid()) {
		return nil, goerrors.New(ErrCodeFileFormat, "options must carry a key or a recipient public key")
	}

	data, err := os.ReadFile(path) // #nosec G304 -- caller-controlled path is the API contract
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeFileRead, "failed to read source file")
	}

	checksum := sha256.Sum256(data)
	var payload []byte
	var algorithm string

	if opts.hybrid() {
		env, err := HybridEncrypt(data, opts.PublicKey, nil)
		if err != nil {
			return nil, err
		}
		algorithm = env.Algorithm.String()
		payload, err = json.Marshal(env)
		if err != nil {
			return nil, goerrors.Wrap(err, ErrCodeFileWrite, "failed to encode hybrid envelope")
		}
	} else {
		env, err := EncryptAEAD(data, opts.Key)
		if err != nil {
			return nil, err
		}
		algorithm = env.Algorithm.String()
		payload, err = json.Marshal(env)
		if err != nil {
			return nil, goerrors.Wrap(err, ErrCodeFileWrite, "failed to encode envelope")
		}
	}

	meta := &FileMetadata{
		OriginalName:        filepath.Base(path),
		FileType:            filepath.Ext(path),
		FileSize:            int64(len(data)),
		EncryptionAlgorithm: algorithm,
		Timestamp:           timecache.CachedTime().UTC().Format(time.RFC3339),
		Checksum:            hex.EncodeToString(checksum[:]),
		Version:             ContainerVersion,
	}

	container, err := assembleContainer(meta, payload)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(outPath, container, 0o600); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeFileWrite, "failed to write container")
	}
	return meta, nil
}

// DecryptFile opens the container at path and writes the recovered
// plaintext to outPath.
//
// The length prefix and metadata block are parsed first (ErrFileFormat on
// any inconsistency), the payload is decrypted per the recorded
// algorithm, and the plaintext checksum is verified before anything is
// written: on ErrChecksumMismatch no output file is produced.
func DecryptFile(path, outPath string, opts *FileOptions) (*FileMetadata, error) {
	meta, plaintext, err := decryptContainer(path, opts)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(outPath, plaintext, 0o600); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeFileWrite, "failed to write plaintext")
	}
	return meta, nil
}

// assembleContainer builds [prefix][metadata][payload]. The prefix equals
// the metadata block's byte length exactly.
func assembleContainer(meta *FileMetadata, payload []byte) ([]byte, error) {
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeFileWrite, "failed to encode metadata")
	}
	if len(metaBytes) > maxMetadataSize {
		richErr := goerrors.New(ErrCodeFileFormat, "metadata block too large")
		return nil, fmt.Errorf("%w: %w", ErrFileFormat, richErr)
	}

	container := make([]byte, 0, containerPrefixSize+len(metaBytes)+len(payload))
	var prefix [containerPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(metaBytes)))
	container = append(container, prefix[:]...)
	container = append(container, metaBytes...)
	container = append(container, payload...)
	return container, nil
}

// parseContainer splits a container into metadata and payload.
func parseContainer(data []byte) (*FileMetadata, []byte, error) {
	if len(data) < containerPrefixSize {
		richErr := goerrors.New(ErrCodeFileFormat, "container shorter than length prefix")
		return nil, nil, fmt.Errorf("%w: %w", ErrFileFormat, richErr)
	}
	metaLen := binary.BigEndian.Uint32(data[:containerPrefixSize])
	if metaLen == 0 || metaLen > maxMetadataSize || int(metaLen) > len(data)-containerPrefixSize {
		richErr := goerrors.New(ErrCodeFileFormat, fmt.Sprintf("metadata length %d inconsistent with container size %d", metaLen, len(data)))
		return nil, nil, fmt.Errorf("%w: %w", ErrFileFormat, richErr)
	}

	metaBytes := data[containerPrefixSize : containerPrefixSize+int(metaLen)]
	var meta FileMetadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		richErr := goerrors.Wrap(err, ErrCodeFileFormat, "metadata block is not valid JSON")
		return nil, nil, fmt.Errorf("%w: %w", ErrFileFormat, richErr)
	}
	return &meta, data[containerPrefixSize+int(metaLen):], nil
}

// decryptContainer reads, parses and decrypts a container, returning the
// verified plaintext in memory only.
func decryptContainer(path string, opts *FileOptions) (*FileMetadata, []byte, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- caller-controlled path is the API contract
	if err != nil {
		return nil, nil, goerrors.Wrap(err, ErrCodeFileRead, "failed to read container")
	}

	meta, payload, err := parseContainer(data)
	if err != nil {
		return nil, nil, err
	}

	alg, err := ParseAlgorithm(meta.EncryptionAlgorithm)
	if err != nil {
		return nil, nil, err
	}

	var plaintext []byte
	switch alg {
	case AlgorithmHybrid:
		if opts == nil || opts.PrivateKey == nil {
			richErr := goerrors.New(ErrCodeDecrypt, "container is hybrid-encrypted and requires a private key")
			return nil, nil, fmt.Errorf("%w: %w", ErrDecrypt, richErr)
		}
		var env HybridEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			richErr := goerrors.Wrap(err, ErrCodeFileFormat, "payload is not a hybrid envelope")
			return nil, nil, fmt.Errorf("%w: %w", ErrFileFormat, richErr)
		}
		plaintext, err = HybridDecrypt(&env, opts.PrivateKey, nil)
		if err != nil {
			return nil, nil, err
		}
	case AlgorithmAESGCM, AlgorithmAESCTR:
		if opts == nil || opts.Key == nil {
			richErr := goerrors.New(ErrCodeDecrypt, "container is symmetric-encrypted and requires a key")
			return nil, nil, fmt.Errorf("%w: %w", ErrDecrypt, richErr)
		}
		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			richErr := goerrors.Wrap(err, ErrCodeFileFormat, "payload is not an envelope")
			return nil, nil, fmt.Errorf("%w: %w", ErrFileFormat, richErr)
		}
		plaintext, err = DecryptAEAD(&env, opts.Key)
		if err != nil {
			return nil, nil, err
		}
	default:
		richErr := goerrors.New(ErrCodeUnsupportedAlg, fmt.Sprintf("algorithm %q cannot appear in a file container", alg))
		return nil, nil, fmt.Errorf("%w: %w", ErrUnsupportedAlgorithm, richErr)
	}

	sum := sha256.Sum256(plaintext)
	if hex.EncodeToString(sum[:]) != meta.Checksum {
		richErr := goerrors.New(ErrCodeChecksum, "decrypted plaintext does not match recorded checksum")
		return nil, nil, fmt.Errorf("%w: %w", ErrChecksumMismatch, richErr)
	}
	return meta, plaintext, nil
}
