// engine_test.go: Test cases for the engine facade and parallel record
// batches.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package aegis

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRecords(t *testing.T, count, size int) [][]byte {
	t.Helper()
	records := make([][]byte, count)
	for i := range records {
		records[i] = make([]byte, size)
		if _, err := rand.Read(records[i]); err != nil {
			t.Fatal(err)
		}
	}
	return records
}

func TestEngineDirect(t *testing.T) {
	engine := NewEngine(nil)
	defer engine.Close()
	require.False(t, engine.Parallel())
	require.Nil(t, engine.Pool())

	key := mustKey(t)
	records := makeRecords(t, 10, 256)

	encrypted := engine.EncryptRecords(records, key)
	require.Len(t, encrypted, 10)
	envelopes := make([]*Envelope, len(encrypted))
	for i, r := range encrypted {
		require.NoError(t, r.Err)
		require.Equal(t, i, r.Index)
		envelopes[i] = r.Envelope
	}

	decrypted := engine.DecryptRecords(envelopes, key)
	for i, r := range decrypted {
		require.NoError(t, r.Err)
		assert.True(t, bytes.Equal(r.Plaintext, records[i]), "record %d mismatch", i)
	}
}

func TestEngineParallelBatch(t *testing.T) {
	engine := NewEngine(&Options{Parallel: true, Workers: 4})
	defer engine.Close()
	require.True(t, engine.Parallel())
	require.NotNil(t, engine.Pool())

	key := mustKey(t)
	records := makeRecords(t, 1000, 1024)

	encrypted := engine.EncryptRecords(records, key)
	require.Len(t, encrypted, 1000)

	envelopes := make([]*Envelope, len(encrypted))
	for i, r := range encrypted {
		require.NoError(t, r.Err, "record %d", i)
		require.Equal(t, i, r.Index)
		envelopes[i] = r.Envelope
	}

	decrypted := engine.DecryptRecords(envelopes, key)
	require.Len(t, decrypted, 1000)
	for i, r := range decrypted {
		require.NoError(t, r.Err, "record %d", i)
		require.Equal(t, i, r.Index)
		require.True(t, bytes.Equal(r.Plaintext, records[i]), "record %d mismatch", i)
	}

	// The caller's key is untouched by the per-partition copies.
	require.NoError(t, key.CheckIntegrity())
}

func TestEngineParallelPerRecordFailure(t *testing.T) {
	engine := NewEngine(&Options{Parallel: true, Workers: 4})
	defer engine.Close()

	key := mustKey(t)
	records := makeRecords(t, 20, 128)
	encrypted := engine.EncryptRecords(records, key)

	envelopes := make([]*Envelope, len(encrypted))
	for i, r := range encrypted {
		require.NoError(t, r.Err)
		envelopes[i] = r.Envelope
	}

	// Tamper with one envelope; only its slot may fail.
	envelopes[7].AuthTag = append([]byte(nil), envelopes[7].AuthTag...)
	envelopes[7].AuthTag[0] ^= 0x01

	decrypted := engine.DecryptRecords(envelopes, key)
	for i, r := range decrypted {
		if i == 7 {
			assert.ErrorIs(t, r.Err, ErrDecrypt)
			continue
		}
		require.NoError(t, r.Err, "record %d", i)
		assert.True(t, bytes.Equal(r.Plaintext, records[i]), "record %d mismatch", i)
	}
}

func TestCloneEnvelopeIndependence(t *testing.T) {
	env := &Envelope{
		Ciphertext: []byte{1, 2, 3},
		Nonce:      []byte{4, 5, 6},
		AuthTag:    []byte{7, 8, 9},
		Algorithm:  AlgorithmAESGCM,
		KeyHash:    []byte{10, 11},
	}
	clone := cloneEnvelope(env)
	require.Equal(t, env, clone)

	env.Ciphertext[0] = 0xFF
	env.Nonce[0] = 0xFF
	env.AuthTag[0] = 0xFF
	env.KeyHash[0] = 0xFF
	assert.Equal(t, byte(1), clone.Ciphertext[0])
	assert.Equal(t, byte(4), clone.Nonce[0])
	assert.Equal(t, byte(7), clone.AuthTag[0])
	assert.Equal(t, byte(10), clone.KeyHash[0])

	assert.Nil(t, cloneEnvelope(nil))
	partial := cloneEnvelope(&Envelope{Ciphertext: []byte{1}, Nonce: []byte{2}, Algorithm: AlgorithmAESCTR})
	assert.Nil(t, partial.AuthTag)
	assert.Nil(t, partial.KeyHash)
}

// gateAEAD holds the first Open call until release is closed so a test
// can interleave work with an in-flight decrypt batch.
type gateAEAD struct {
	inner   cipher.AEAD
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gateAEAD) NonceSize() int { return g.inner.NonceSize() }
func (g *gateAEAD) Overhead() int  { return g.inner.Overhead() }

func (g *gateAEAD) Seal(dst, nonce, plaintext, aad []byte) []byte {
	return g.inner.Seal(dst, nonce, plaintext, aad)
}

func (g *gateAEAD) Open(dst, nonce, ciphertext, aad []byte) ([]byte, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.inner.Open(dst, nonce, ciphertext, aad)
}

func TestEngineParallelDecryptCopiesEnvelopes(t *testing.T) {
	engine := NewEngine(&Options{Parallel: true, Workers: 1})
	defer engine.Close()

	key := mustKey(t)
	records := makeRecords(t, 8, 64)
	encrypted := engine.EncryptRecords(records, key)
	envelopes := make([]*Envelope, len(encrypted))
	for i, r := range encrypted {
		require.NoError(t, r.Err)
		envelopes[i] = r.Envelope
	}

	// Route the key's AEAD through a gate that parks the worker inside
	// its first Open.
	gate := &gateAEAD{entered: make(chan struct{}), release: make(chan struct{})}
	block, err := aes.NewCipher(key.Bytes)
	require.NoError(t, err)
	gate.inner, err = cipher.NewGCM(block)
	require.NoError(t, err)

	fingerprint := key.Fingerprint()
	cipherCacheMu.Lock()
	cipherCache[fingerprint] = gate
	cipherCacheMu.Unlock()
	defer func() {
		cipherCacheMu.Lock()
		delete(cipherCache, fingerprint)
		cipherCacheMu.Unlock()
	}()

	done := make(chan []RecordResult, 1)
	go func() { done <- engine.DecryptRecords(envelopes, key) }()

	// The worker reaches Open only after its partition was copied out of
	// the caller's envelopes, so scribbling over them here must not
	// corrupt the batch.
	<-gate.entered
	for _, env := range envelopes {
		for i := range env.Ciphertext {
			env.Ciphertext[i] = 0
		}
		for i := range env.AuthTag {
			env.AuthTag[i] = 0
		}
	}
	close(gate.release)

	decrypted := <-done
	require.Len(t, decrypted, len(records))
	for i, r := range decrypted {
		require.NoError(t, r.Err, "record %d", i)
		assert.True(t, bytes.Equal(r.Plaintext, records[i]), "record %d mismatch", i)
	}
}

func TestEngineEmptyBatches(t *testing.T) {
	engine := NewEngine(&Options{Parallel: true, Workers: 2})
	defer engine.Close()

	key := mustKey(t)
	assert.Empty(t, engine.EncryptRecords(nil, key))
	assert.Empty(t, engine.DecryptRecords(nil, key))
}

func TestGetAlgorithmInfo(t *testing.T) {
	infos := GetAlgorithmInfo()
	require.Len(t, infos, 6)

	byName := make(map[string]AlgorithmInfo, len(infos))
	for _, info := range infos {
		require.NotEmpty(t, info.Name)
		require.NotEmpty(t, info.Family)
		require.NotEmpty(t, info.KeySizes)
		require.NotEmpty(t, info.SecurityLevel)
		byName[info.Name] = info
	}

	assert.Contains(t, byName, AlgorithmAESGCM.String())
	assert.Contains(t, byName, AlgorithmHybrid.String())
	assert.Contains(t, byName, AlgorithmMLKEM768.String())
	assert.Contains(t, byName, AlgorithmMLDSA65.String())

	// circl primitives are real implementations, not simulations.
	assert.False(t, byName[AlgorithmMLKEM768.String()].Simulated)
	assert.False(t, byName[AlgorithmMLDSA65.String()].Simulated)
	assert.Equal(t, "post-quantum", byName[AlgorithmMLKEM768.String()].Family)
}
