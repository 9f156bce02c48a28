// symmetric_test.go: Test cases for authenticated encryption, tamper
// detection, fallback mode and timing normalization.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package aegis

import (
	"bytes"
	"crypto/cipher"
	"errors"
	"fmt"
	"testing"
	"time"
)

func mustKey(t *testing.T) *Key {
	t.Helper()
	key, err := GenerateKey(KeyLength256)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

func TestEncryptDecryptAEAD(t *testing.T) {
	key := mustKey(t)

	t.Run("RoundTrip", func(t *testing.T) {
		for _, size := range []int{0, 1, 15, 16, 17, 1024, 64 * 1024} {
			plaintext := bytes.Repeat([]byte{0xA5}, size)
			env, err := EncryptAEAD(plaintext, key)
			if err != nil {
				t.Fatalf("encrypt %d bytes: %v", size, err)
			}
			if env.Algorithm != AlgorithmAESGCM {
				t.Errorf("expected AES-GCM envelope, got %s", env.Algorithm)
			}
			if len(env.Nonce) != DefaultIVSize {
				t.Errorf("expected %d-byte nonce, got %d", DefaultIVSize, len(env.Nonce))
			}
			if len(env.AuthTag) != gcmTagSize {
				t.Errorf("expected %d-byte tag, got %d", gcmTagSize, len(env.AuthTag))
			}

			got, err := DecryptAEAD(env, key)
			if err != nil {
				t.Fatalf("decrypt %d bytes: %v", size, err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Errorf("round trip mismatch at size %d", size)
			}
		}
	})

	t.Run("FreshNoncePerCall", func(t *testing.T) {
		plaintext := []byte("same input twice")
		e1, err := EncryptAEAD(plaintext, key)
		if err != nil {
			t.Fatal(err)
		}
		e2, err := EncryptAEAD(plaintext, key)
		if err != nil {
			t.Fatal(err)
		}
		if bytes.Equal(e1.Nonce, e2.Nonce) {
			t.Error("nonce repeated across calls")
		}
		if bytes.Equal(e1.Ciphertext, e2.Ciphertext) {
			t.Error("ciphertext repeated across calls")
		}
	})

	t.Run("InvalidKeySize", func(t *testing.T) {
		bad := newKeyFromRaw([]byte("short"))
		if _, err := EncryptAEAD([]byte("x"), bad); !errors.Is(err, ErrInvalidKeySize) {
			t.Errorf("expected ErrInvalidKeySize, got %v", err)
		}
	})
}

func TestDecryptAEADTamperDetection(t *testing.T) {
	key := mustKey(t)
	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	env, err := EncryptAEAD(plaintext, key)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("CiphertextBitFlips", func(t *testing.T) {
		for i := range env.Ciphertext {
			tampered := *env
			tampered.Ciphertext = append([]byte(nil), env.Ciphertext...)
			tampered.Ciphertext[i] ^= 0x01
			if _, err := DecryptAEAD(&tampered, key); !errors.Is(err, ErrDecrypt) {
				t.Fatalf("ciphertext flip at byte %d not rejected: %v", i, err)
			}
		}
	})

	t.Run("AuthTagBitFlips", func(t *testing.T) {
		for i := range env.AuthTag {
			tampered := *env
			tampered.AuthTag = append([]byte(nil), env.AuthTag...)
			tampered.AuthTag[i] ^= 0x80
			if _, err := DecryptAEAD(&tampered, key); !errors.Is(err, ErrDecrypt) {
				t.Fatalf("tag flip at byte %d not rejected: %v", i, err)
			}
		}
	})

	t.Run("NonceTamper", func(t *testing.T) {
		tampered := *env
		tampered.Nonce = append([]byte(nil), env.Nonce...)
		tampered.Nonce[0] ^= 0x01
		if _, err := DecryptAEAD(&tampered, key); !errors.Is(err, ErrDecrypt) {
			t.Errorf("nonce tamper not rejected: %v", err)
		}
	})

	t.Run("WrongKey", func(t *testing.T) {
		other := mustKey(t)
		if _, err := DecryptAEAD(env, other); !errors.Is(err, ErrKeyMismatch) {
			t.Errorf("expected ErrKeyMismatch from key-hash reference, got %v", err)
		}

		// Without the key-hash reference the mismatch surfaces at the
		// AEAD open instead.
		anon := *env
		anon.KeyHash = nil
		if _, err := DecryptAEAD(&anon, other); !errors.Is(err, ErrDecrypt) {
			t.Errorf("expected ErrDecrypt, got %v", err)
		}
	})

	t.Run("TamperedKey", func(t *testing.T) {
		damaged := key.Clone()
		damaged.Bytes[3] ^= 0x10
		if _, err := DecryptAEAD(env, damaged); !errors.Is(err, ErrKeyIntegrity) {
			t.Errorf("expected ErrKeyIntegrity, got %v", err)
		}
	})

	t.Run("NilEnvelope", func(t *testing.T) {
		if _, err := DecryptAEAD(nil, key); !errors.Is(err, ErrDecrypt) {
			t.Errorf("expected ErrDecrypt, got %v", err)
		}
	})

	t.Run("WrongAlgorithmTag", func(t *testing.T) {
		mislabeled := *env
		mislabeled.Algorithm = AlgorithmRSAOAEP
		if _, err := DecryptAEAD(&mislabeled, key); !errors.Is(err, ErrUnsupportedAlgorithm) {
			t.Errorf("expected ErrUnsupportedAlgorithm, got %v", err)
		}
	})
}

func TestEncryptWithNonceDeterminism(t *testing.T) {
	key := mustKey(t)
	nonce, err := GenerateIV(DefaultIVSize)
	if err != nil {
		t.Fatal(err)
	}
	plaintext := []byte("fixed nonce, fixed output")

	e1, err := encryptWithNonce(plaintext, key, nonce)
	if err != nil {
		t.Fatal(err)
	}
	e2, err := encryptWithNonce(plaintext, key, nonce)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(e1.Ciphertext, e2.Ciphertext) || !bytes.Equal(e1.AuthTag, e2.AuthTag) {
		t.Error("same key, nonce and plaintext must produce identical output")
	}

	if _, err := encryptWithNonce(plaintext, key, nonce[:4]); !errors.Is(err, ErrNonceGen) {
		t.Errorf("short nonce accepted: %v", err)
	}
}

func TestEncryptFallbackCTR(t *testing.T) {
	original := newGCM
	newGCM = func(cipher.Block) (cipher.AEAD, error) {
		return nil, fmt.Errorf("forced failure")
	}
	defer func() { newGCM = original }()

	// Fresh key so no GCM cipher is already cached for it.
	key := mustKey(t)
	plaintext := []byte("fallback path payload")

	env, err := EncryptAEAD(plaintext, key)
	if err != nil {
		t.Fatal(err)
	}
	if env.Algorithm != AlgorithmAESCTR {
		t.Fatalf("expected AES-CTR envelope, got %s", env.Algorithm)
	}
	if len(env.AuthTag) != 0 {
		t.Error("fallback envelope must not carry an auth tag")
	}

	got, err := DecryptAEAD(env, key)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Error("CTR round trip mismatch")
	}
}

func TestDecryptTimingFloor(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test skipped in short mode")
	}

	key := mustKey(t)
	env, err := EncryptAEAD([]byte("timing sample"), key)
	if err != nil {
		t.Fatal(err)
	}

	tampered := *env
	tampered.AuthTag = append([]byte(nil), env.AuthTag...)
	tampered.AuthTag[0] ^= 0x01

	const trials = 20
	floor := minDecryptDuration - time.Millisecond

	measure := func(e *Envelope) time.Duration {
		var total time.Duration
		for i := 0; i < trials; i++ {
			started := time.Now()
			_, _ = DecryptAEAD(e, key)
			elapsed := time.Since(started)
			if elapsed < floor {
				t.Fatalf("call finished in %s, below the %s floor", elapsed, minDecryptDuration)
			}
			total += elapsed
		}
		return total / trials
	}

	successMean := measure(env)
	failureMean := measure(&tampered)

	// Success and failure must be held to similar wall-clock means:
	// within 10% of the overall mean.
	diff := successMean - failureMean
	if diff < 0 {
		diff = -diff
	}
	overall := (successMean + failureMean) / 2
	if diff > overall/10 {
		t.Errorf("success mean %s and failure mean %s diverge by %s, more than 10%% of the overall mean %s", successMean, failureMean, diff, overall)
	}
}
