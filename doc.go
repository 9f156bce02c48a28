// Package aegis provides a multi-algorithm encryption engine for Go applications.
//
// This package offers a comprehensive set of cryptographic capabilities including:
//   - Key, IV and salt generation with embedded integrity binding
//   - AES-256-GCM authenticated encryption with cipher caching and a
//     timing-normalized decryption path
//   - RSA-OAEP asymmetric encryption, RSA-PSS signatures and hybrid
//     envelopes (asymmetric-wrapped one-time symmetric keys)
//   - Self-signed certificate issuance and verification
//   - A length-prefixed file container format with embedded metadata and
//     plaintext checksums, plus directory-wide encryption with manifests
//   - Post-quantum key encapsulation (ML-KEM-768) and signatures
//     (ML-DSA-65) with a stamped signature envelope
//   - A fixed-size worker pool that parallelizes batch cryptographic
//     operations with least-loaded dispatch and ordered results
//
// # Quick Start
//
// Basic authenticated encryption and decryption:
//
//	key, err := aegis.GenerateKey(aegis.KeyLength256)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer key.Destroy()
//
//	env, err := aegis.EncryptAEAD([]byte("sensitive data"), key)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	plaintext, err := aegis.DecryptAEAD(env, key)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(string(plaintext)) // Output: sensitive data
//
// # File Containers
//
// Files are encrypted into a self-describing container carrying a JSON
// metadata block (name, size, algorithm, timestamp, plaintext checksum)
// behind a 4-byte big-endian length prefix:
//
//	opts := &aegis.FileOptions{Key: key}
//	meta, err := aegis.EncryptFile("report.pdf", "report.pdf.encrypted", opts)
//	if err != nil {
//		log.Fatal(err)
//	}
//	_, err = aegis.DecryptFile("report.pdf.encrypted", "report.pdf", opts)
//
// Directory operations mirror a source tree into an encrypted tree and
// emit an encryption-manifest.json capturing per-file success/failure;
// a single failing file never aborts the remaining files.
//
// # Hybrid Encryption
//
// For recipients identified by an RSA public key, a fresh one-time
// AES-256 key encrypts the payload and is itself wrapped with RSA-OAEP:
//
//	pair, _ := aegis.GenerateRSAKeyPair(2048)
//	env, _ := aegis.HybridEncrypt(payload, pair.Public, nil)
//	plaintext, _ := aegis.HybridDecrypt(env, pair.Private, nil)
//
// # Post-Quantum Envelope
//
// The quantum-safe family keeps the encapsulate/derive/seal protocol
// shape and consumes vetted primitives from github.com/cloudflare/circl:
//
//	pair, _ := aegis.GenerateKEMKeyPair()
//	sealed, _ := aegis.SealedEncrypt(data, pair.PublicKey)
//	data2, _ := aegis.SealedDecrypt(sealed, pair.PrivateKey)
//
// Signature envelopes bind the raw signature to a 16-byte integrity
// stamp that is checked before the cryptographic primitive ever sees
// attacker-supplied bytes; VerifyMessage returns a plain bool and is
// safe to call on untrusted input.
//
// # Parallel Batch Operations
//
// An Engine is constructed once as direct or pooled; pooled engines
// route bulk record operations through a fixed worker pool that
// preserves input order in its results:
//
//	eng := aegis.NewEngine(&aegis.Options{Parallel: true})
//	defer eng.Close()
//	results := eng.EncryptRecords(records, key)
//
// # Error Handling
//
// All functions return standard Go errors for maximum compatibility.
// Sentinel errors (aegis.ErrKeyIntegrity, aegis.ErrDecrypt, ...) support
// errors.Is checks; rich error details are layered on top via
// github.com/agilira/go-errors.
//
// # Security Considerations
//
//   - Nonces are generated fresh from crypto/rand for every encryption
//     call; there is no public path to supply a nonce.
//   - Keys carry a SHA-256 integrity hash that is recomputed and compared
//     in constant time before every use; a tampered key fails loudly.
//   - Symmetric decryption enforces a fixed minimum duration on success
//     and on every failure path, so error responses are not
//     timing-distinguishable from success.
//   - Key material handed to the worker pool is copied by value; buffers
//     returned to the internal pools are zeroed first.
package aegis
