// engine.go: Engine facade routing record batches through the worker
// pool and describing the supported algorithm families.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package aegis

import (
	"sync"
	"time"
)

// Options configures an Engine.
type Options struct {
	// Parallel routes record batches through a worker pool instead of
	// executing them inline.
	Parallel bool

	// Workers is the pool size when Parallel is set. Non-positive
	// defaults to GOMAXPROCS.
	Workers int

	// TaskTimeout bounds each pool task. Non-positive defaults to
	// DefaultTaskTimeout.
	TaskTimeout time.Duration
}

// RecordResult is one positional outcome of a record batch. Exactly one
// of Envelope (encrypt) and Plaintext (decrypt) is set on success.
type RecordResult struct {
	Index     int
	Envelope  *Envelope
	Plaintext []byte
	Err       error
}

// AlgorithmInfo describes one supported algorithm for capability
// discovery.
type AlgorithmInfo struct {
	Name          string `json:"name"`
	Family        string `json:"family"`
	KeySizes      []int  `json:"keySizes"`
	SecurityLevel string `json:"securityLevel"`
	Simulated     bool   `json:"simulated"`
}

// Engine is the top-level entry point. A direct Engine executes
// synchronously in the caller's goroutine; a parallel Engine fans record
// batches out across its worker pool while preserving input order in the
// results.
type Engine struct {
	pool      *WorkerPool
	closeOnce sync.Once
}

// NewEngine builds an Engine from opts. A nil opts yields a direct
// (non-parallel) engine.
func NewEngine(opts *Options) *Engine {
	e := &Engine{}
	if opts != nil && opts.Parallel {
		e.pool = NewWorkerPool(opts.Workers, opts.TaskTimeout)
	}
	return e
}

// Parallel reports whether this engine routes batches through a pool.
func (e *Engine) Parallel() bool { return e.pool != nil }

// EncryptRecords encrypts every record under key and returns results in
// input order with per-record errors. In parallel mode each partition
// works on its own copy of the key, so no key material is shared across
// workers.
func (e *Engine) EncryptRecords(records [][]byte, key *Key) []RecordResult {
	results := make([]RecordResult, len(records))
	if len(records) == 0 {
		return results
	}

	if e.pool == nil {
		for i, record := range records {
			env, err := EncryptAEAD(record, key)
			results[i] = RecordResult{Index: i, Envelope: env, Err: err}
		}
		return results
	}

	e.eachPartition(len(records), func(base, end int) func() (any, error) {
		part := make([][]byte, end-base)
		for i, record := range records[base:end] {
			part[i] = append([]byte(nil), record...)
		}
		partKey := key.Clone()
		return func() (any, error) {
			defer partKey.Destroy()
			partial := make([]RecordResult, len(part))
			for i, record := range part {
				env, err := EncryptAEAD(record, partKey)
				partial[i] = RecordResult{Index: base + i, Envelope: env, Err: err}
			}
			return partial, nil
		}
	}, results)
	return results
}

// DecryptRecords decrypts every envelope under key, preserving input
// order. A tampered or mismatched envelope fails its own slot only.
func (e *Engine) DecryptRecords(envelopes []*Envelope, key *Key) []RecordResult {
	results := make([]RecordResult, len(envelopes))
	if len(envelopes) == 0 {
		return results
	}

	if e.pool == nil {
		for i, env := range envelopes {
			plaintext, err := DecryptAEAD(env, key)
			results[i] = RecordResult{Index: i, Plaintext: plaintext, Err: err}
		}
		return results
	}

	e.eachPartition(len(envelopes), func(base, end int) func() (any, error) {
		part := make([]*Envelope, end-base)
		for i, env := range envelopes[base:end] {
			part[i] = cloneEnvelope(env)
		}
		partKey := key.Clone()
		return func() (any, error) {
			defer partKey.Destroy()
			partial := make([]RecordResult, len(part))
			for i, env := range part {
				plaintext, err := DecryptAEAD(env, partKey)
				partial[i] = RecordResult{Index: base + i, Plaintext: plaintext, Err: err}
			}
			return partial, nil
		}
	}, results)
	return results
}

// eachPartition splits n items into even partitions, submits one pool
// task per partition and writes the positional results back.
func (e *Engine) eachPartition(n int, makeTask func(base, end int) func() (any, error), results []RecordResult) {
	chunk := (n + e.pool.Size() - 1) / e.pool.Size()
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		task := makeTask(start, end)

		wg.Add(1)
		go func(base, end int) {
			defer wg.Done()
			out, err := e.pool.submit("records", task)
			if err != nil {
				for i := base; i < end; i++ {
					results[i] = RecordResult{Index: i, Err: err}
				}
				return
			}
			for _, r := range out.([]RecordResult) {
				results[r.Index] = r
			}
		}(start, end)
	}
	wg.Wait()
}

// Pool exposes the engine's worker pool for direct Submit/Batch use.
// Nil for direct engines.
func (e *Engine) Pool() *WorkerPool { return e.pool }

// Close releases the engine's worker pool, if any.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		if e.pool != nil {
			e.pool.Close()
		}
	})
}

// GetAlgorithmInfo returns the capability descriptor for every supported
// algorithm family.
func GetAlgorithmInfo() []AlgorithmInfo {
	return []AlgorithmInfo{
		{
			Name:          AlgorithmAESGCM.String(),
			Family:        "symmetric",
			KeySizes:      []int{int(KeyLength128), int(KeyLength256)},
			SecurityLevel: "128/256-bit",
			Simulated:     false,
		},
		{
			Name:          AlgorithmAESCTR.String(),
			Family:        "symmetric",
			KeySizes:      []int{int(KeyLength128), int(KeyLength256)},
			SecurityLevel: "128/256-bit (no authentication)",
			Simulated:     false,
		},
		{
			Name:          AlgorithmRSAOAEP.String(),
			Family:        "asymmetric",
			KeySizes:      []int{2048, 3072, 4096},
			SecurityLevel: "112-bit and above",
			Simulated:     false,
		},
		{
			Name:          AlgorithmHybrid.String(),
			Family:        "hybrid",
			KeySizes:      []int{2048, 3072, 4096},
			SecurityLevel: "112-bit and above",
			Simulated:     false,
		},
		{
			Name:          AlgorithmMLKEM768.String(),
			Family:        "post-quantum",
			KeySizes:      []int{KEMPublicKeySize, KEMPrivateKeySize},
			SecurityLevel: "NIST level 3",
			Simulated:     false,
		},
		{
			Name:          AlgorithmMLDSA65.String(),
			Family:        "post-quantum",
			KeySizes:      []int{SigPublicKeySize, SigPrivateKeySize},
			SecurityLevel: "NIST level 3",
			Simulated:     false,
		},
	}
}
