// envelope.go: Envelope structures bundling ciphertext with the metadata
// needed to decrypt and verify it.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package aegis

// Envelope is the result of a symmetric encryption call: ciphertext, the
// nonce it was sealed under, the detached authentication tag (absent in
// fallback mode), the algorithm identifier and an optional key-hash
// reference binding the envelope to the key that produced it.
//
// The nonce is freshly random per encryption call under a given key and
// is never reused.
type Envelope struct {
	Ciphertext []byte    `json:"ciphertext"`
	Nonce      []byte    `json:"nonce"`
	AuthTag    []byte    `json:"authTag,omitempty"`
	Algorithm  Algorithm `json:"algorithm"`
	KeyHash    []byte    `json:"keyHash,omitempty"`
}

// cloneEnvelope returns a deep copy of env so the copy can be handed to
// another goroutine without sharing any byte slice with the original.
// Nil slices stay nil. A nil env clones to nil.
func cloneEnvelope(env *Envelope) *Envelope {
	if env == nil {
		return nil
	}
	clone := *env
	if env.Ciphertext != nil {
		clone.Ciphertext = append([]byte(nil), env.Ciphertext...)
	}
	if env.Nonce != nil {
		clone.Nonce = append([]byte(nil), env.Nonce...)
	}
	if env.AuthTag != nil {
		clone.AuthTag = append([]byte(nil), env.AuthTag...)
	}
	if env.KeyHash != nil {
		clone.KeyHash = append([]byte(nil), env.KeyHash...)
	}
	return &clone
}

// HybridEnvelope carries a symmetric payload envelope together with an
// asymmetrically wrapped copy of the one-time symmetric key and an
// optional detached signature over the structural fields.
//
// The one-time key is generated fresh for every hybrid operation and is
// never reused.
type HybridEnvelope struct {
	Payload    *Envelope `json:"payload"`
	WrappedKey []byte    `json:"wrappedKey"`
	Signature  []byte    `json:"signature,omitempty"`
	Algorithm  Algorithm `json:"algorithm"`
}

// SealedEnvelope is the result of a KEM-sealed encryption: the
// encapsulated key, the AEAD ciphertext, its nonce and detached tag.
type SealedEnvelope struct {
	EncapsulatedKey []byte `json:"encapsulatedKey"`
	Ciphertext      []byte `json:"ciphertext"`
	Nonce           []byte `json:"nonce"`
	AuthTag         []byte `json:"authTag"`
}
