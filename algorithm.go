// algorithm.go: Algorithm identifiers and boundary parsing.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package aegis

import (
	"fmt"

	goerrors "github.com/agilira/go-errors"
)

// Algorithm identifies a cryptographic algorithm family. Envelopes carry
// an Algorithm so the matching decryption routine is selected explicitly;
// unrecognized identifiers are rejected once, when the envelope is parsed,
// rather than guessed at deeper in the call chain.
type Algorithm uint8

const (
	// AlgorithmUnknown is the zero value and never valid in an envelope.
	AlgorithmUnknown Algorithm = iota

	// AlgorithmAESGCM is AES in Galois/Counter Mode (authenticated).
	AlgorithmAESGCM

	// AlgorithmAESCTR is the non-authenticated fallback mode. Envelopes
	// produced in this mode carry no auth tag; integrity relies on outer
	// checksums such as the file container's.
	AlgorithmAESCTR

	// AlgorithmRSAOAEP is RSA encryption with OAEP/SHA-256 padding.
	AlgorithmRSAOAEP

	// AlgorithmHybrid is RSA-OAEP wrapping of a one-time AES-256-GCM key.
	AlgorithmHybrid

	// AlgorithmMLKEM768 is the ML-KEM-768 key encapsulation mechanism.
	AlgorithmMLKEM768

	// AlgorithmMLDSA65 is the ML-DSA-65 signature scheme.
	AlgorithmMLDSA65
)

var algorithmNames = map[Algorithm]string{
	AlgorithmAESGCM:   "AES-256-GCM",
	AlgorithmAESCTR:   "AES-256-CTR",
	AlgorithmRSAOAEP:  "RSA-OAEP",
	AlgorithmHybrid:   "RSA-OAEP+AES-256-GCM",
	AlgorithmMLKEM768: "ML-KEM-768",
	AlgorithmMLDSA65:  "ML-DSA-65",
}

// String returns the wire identifier of the algorithm.
func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return "unknown"
}

// ParseAlgorithm maps a wire identifier to an Algorithm.
//
// Returns ErrUnsupportedAlgorithm for any identifier the engine does not
// recognize, so malformed or tampered envelopes are rejected at the edge.
func ParseAlgorithm(s string) (Algorithm, error) {
	for alg, name := range algorithmNames {
		if name == s {
			return alg, nil
		}
	}
	richErr := goerrors.New(ErrCodeUnsupportedAlg, fmt.Sprintf("unrecognized algorithm identifier %q", s))
	return AlgorithmUnknown, fmt.Errorf("%w: %w", ErrUnsupportedAlgorithm, richErr)
}

// MarshalJSON encodes the algorithm as its wire identifier.
func (a Algorithm) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON decodes and validates a wire identifier. Unknown
// identifiers fail with ErrUnsupportedAlgorithm.
func (a *Algorithm) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		richErr := goerrors.New(ErrCodeUnsupportedAlg, "algorithm identifier must be a JSON string")
		return fmt.Errorf("%w: %w", ErrUnsupportedAlgorithm, richErr)
	}
	alg, err := ParseAlgorithm(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*a = alg
	return nil
}
