// Copyright 2026 The sealfile Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package frame implements the binary wire layout of a sealed file: a
// length-prefixed header carrying a wrapped symmetric key and a base nonce,
// followed by an ordered sequence of length-prefixed AEAD-sealed chunks.
//
// All integer fields are big-endian. frame knows nothing about the
// cryptography involved; it only reads and writes the byte layout.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/sealfile/sealfile/internal/nonce"
)

// ErrTruncated is returned when the input ends before a complete field or
// chunk has been read.
var ErrTruncated = errors.New("frame: truncated input")

// ErrHeaderInvalid is returned when a header length field is out of range.
var ErrHeaderInvalid = errors.New("frame: invalid header")

// MaxWrappedKeyLen bounds wrapped_key_len against resource exhaustion; no
// RSA modulus in sane use produces a ciphertext anywhere near this size. It
// is 1<<16 - 1, not 1<<16, because wrapped_key_len is a 2-byte field and a
// length of exactly 1<<16 would silently truncate to 0 when encoded.
const MaxWrappedKeyLen = 1<<16 - 1

// MaxChunkLen bounds chunk_len against resource exhaustion. Callers with a
// smaller configured chunk size should apply a tighter bound themselves;
// see internal/stream.
const MaxChunkLen = 1<<32 - 1

// WriteHeader emits wrapped_key_len ‖ wrapped_key ‖ nonce_len ‖ base_nonce.
func WriteHeader(w io.Writer, wrappedKey []byte, baseNonce [nonce.Size]byte) error {
	if len(wrappedKey) == 0 || len(wrappedKey) > MaxWrappedKeyLen {
		return ErrHeaderInvalid
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(wrappedKey)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("frame: write wrapped_key_len: %w", err)
	}
	if _, err := w.Write(wrappedKey); err != nil {
		return fmt.Errorf("frame: write wrapped_key: %w", err)
	}
	if _, err := w.Write([]byte{nonce.Size}); err != nil {
		return fmt.Errorf("frame: write nonce_len: %w", err)
	}
	if _, err := w.Write(baseNonce[:]); err != nil {
		return fmt.Errorf("frame: write base_nonce: %w", err)
	}
	return nil
}

// ReadHeader parses wrapped_key_len ‖ wrapped_key ‖ nonce_len ‖ base_nonce.
// A clean EOF at the very start of input is reported as ErrTruncated, per
// the "first read on an empty source" edge case.
func ReadHeader(r io.Reader) (wrappedKey []byte, baseNonce [nonce.Size]byte, err error) {
	var lenBuf [2]byte
	if err := readExact(r, lenBuf[:]); err != nil {
		return nil, baseNonce, err
	}
	wrappedKeyLen := binary.BigEndian.Uint16(lenBuf[:])
	if wrappedKeyLen == 0 {
		return nil, baseNonce, ErrHeaderInvalid
	}

	wrappedKey = make([]byte, wrappedKeyLen)
	if err := readExact(r, wrappedKey); err != nil {
		return nil, baseNonce, err
	}

	var nonceLenBuf [1]byte
	if err := readExact(r, nonceLenBuf[:]); err != nil {
		return nil, baseNonce, err
	}
	if nonceLenBuf[0] != nonce.Size {
		return nil, baseNonce, ErrHeaderInvalid
	}

	if err := readExact(r, baseNonce[:]); err != nil {
		return nil, baseNonce, err
	}
	return wrappedKey, baseNonce, nil
}

// WriteChunk emits chunk_len ‖ payload.
func WriteChunk(w io.Writer, payload []byte) error {
	if len(payload) > MaxChunkLen {
		return ErrHeaderInvalid
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("frame: write chunk_len: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("frame: write chunk payload: %w", err)
	}
	return nil
}

// ReadChunk reads chunk_len ‖ payload. A clean EOF before chunk_len is
// always ErrTruncated: well-formed streams never end there, because the
// short-chunk terminator is read before EOF is reached.
func ReadChunk(r io.Reader, maxPayload int) (payload []byte, err error) {
	var lenBuf [4]byte
	if err := readExact(r, lenBuf[:]); err != nil {
		return nil, err
	}
	chunkLen := binary.BigEndian.Uint32(lenBuf[:])
	if maxPayload >= 0 && int64(chunkLen) > int64(maxPayload) {
		return nil, ErrHeaderInvalid
	}
	payload = make([]byte, chunkLen)
	if err := readExact(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// readExact reads exactly len(buf) bytes, classifying EOF at the start of
// buf and a short read in the middle of buf both as ErrTruncated, and
// anything else as-is (so the caller can tell an I/O fault from truncation).
func readExact(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ErrTruncated
	default:
		return err
	}
}
