// Copyright 2026 The sealfile Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nonce derives per-chunk AEAD nonces from a session base nonce.
package nonce

import "encoding/binary"

// Size is the length in bytes of a base nonce and of every derived chunk
// nonce.
const Size = 12

// ForChunk derives the nonce for chunk index i from base, per the
// addition-based scheme: the last 8 bytes of base are read as a big-endian
// counter c, c' = (c + i) mod 2^64 is computed, and the result is the first
// 4 bytes of base concatenated with c' big-endian encoded.
//
// Callers are responsible for refusing to advance past index 2^64-1 (see
// internal/stream), since ForChunk itself cannot distinguish a legitimate
// wraparound from chunk-count exhaustion.
func ForChunk(base [Size]byte, i uint64) [Size]byte {
	var out [Size]byte
	copy(out[:4], base[:4])
	c := binary.BigEndian.Uint64(base[4:])
	binary.BigEndian.PutUint64(out[4:], c+i)
	return out
}
