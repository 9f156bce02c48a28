// bufpool.go: Buffer pooling for cryptographic scratch space.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package aegis

import (
	"sync"
)

var (
	// Small buffers cover AES-GCM nonces (12 bytes), CTR IVs (16 bytes)
	// and raw keys (up to 32 bytes).
	smallBufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, 32)
			return &buf
		},
	}

	// Scratch buffers for ciphertext assembly; grow on demand and are
	// only returned to the pool while they stay cache friendly.
	scratchBufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, 0, 256)
			return &buf
		},
	}
)

func init() {
	// Pre-warm to avoid first-use latency on the hot encrypt path.
	warmupBufferPools(4)
}

// getBuffer retrieves a fixed-size buffer of the requested size.
// Sizes above the small tier are allocated directly.
func getBuffer(size int) *[]byte {
	if size <= 32 {
		buf := smallBufferPool.Get().(*[]byte)
		*buf = (*buf)[:size]
		return buf
	}
	buf := make([]byte, size)
	return &buf
}

// putBuffer zeroes and returns a buffer to its pool. Non-pool sizes are
// dropped for the GC to collect.
func putBuffer(buf *[]byte) {
	if buf == nil {
		return
	}
	if len(*buf) > 0 {
		clearBuffer(*buf)
	}
	if cap(*buf) == 32 {
		smallBufferPool.Put(buf)
	}
}

// getScratch retrieves a growable scratch buffer with zero length.
func getScratch() []byte {
	buf := scratchBufferPool.Get().(*[]byte)
	return (*buf)[:0]
}

// putScratch returns a scratch buffer to the pool. Buffers that held more
// than 1KB of data are cleared first; plaintext must not survive reuse.
func putScratch(buf []byte) {
	bufCap := cap(buf)
	if bufCap == 0 {
		return
	}
	if bufCap > 1024 {
		clearBuffer(buf[:bufCap])
	}
	if bufCap >= 128 && bufCap <= 64*1024 {
		scratchBufferPool.Put(&buf)
	}
}

// clearBuffer zeroes a buffer, unrolled over cache lines for large slices.
func clearBuffer(buf []byte) {
	if len(buf) <= 64 {
		for i := range buf {
			buf[i] = 0
		}
		return
	}

	i := 0
	for i < len(buf)-7 {
		buf[i] = 0
		buf[i+1] = 0
		buf[i+2] = 0
		buf[i+3] = 0
		buf[i+4] = 0
		buf[i+5] = 0
		buf[i+6] = 0
		buf[i+7] = 0
		i += 8
	}
	for i < len(buf) {
		buf[i] = 0
		i++
	}
}

// warmupBufferPools pre-allocates buffers in both pools.
func warmupBufferPools(count int) {
	small := make([]*[]byte, count)
	scratch := make([][]byte, count)
	for i := 0; i < count; i++ {
		small[i] = getBuffer(32)
		scratch[i] = append(getScratch(), make([]byte, 256)...)
	}
	for i := 0; i < count; i++ {
		putBuffer(small[i])
		putScratch(scratch[i])
	}
}
