// Copyright 2026 The sealfile Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sealfile implements hybrid RSA-OAEP/AES-256-GCM file encryption:
// a random per-file AES-256-GCM key is wrapped directly under the
// recipient's RSA public key and used to seal the plaintext as a sequence
// of independently authenticated chunks.
//
// This is the only exported entry point; internal/frame, internal/nonce,
// and internal/stream implement the wire format, nonce derivation, and
// chunked AEAD construction respectively and are not meant to be used
// directly by callers of this package.
package sealfile

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"io"

	"github.com/sealfile/sealfile/internal/frame"
	"github.com/sealfile/sealfile/internal/nonce"
	"github.com/sealfile/sealfile/internal/stream"
)

// ChunkSize is the plaintext size sealed into every non-terminal chunk. It
// is a fixed protocol constant, not a per-file choice: the frame header
// carries no field for it, so a reader infers the terminator
// chunk by comparing each chunk's plaintext length against this same
// constant the writer used. Changing it would be a wire-incompatible
// protocol change, not a runtime option.
const ChunkSize = 64 * 1024

// Encrypt returns a WriteCloser that, as the caller writes plaintext to it,
// seals it in ChunkSize-byte chunks and writes the framed ciphertext to
// dst. The frame header (wrapped AEAD key and base nonce) is written
// before Encrypt returns. Close must be called to emit the terminator chunk;
// until then the output is not a valid sealed file.
func Encrypt(dst io.Writer, pub *rsa.PublicKey) (io.WriteCloser, error) {
	var baseNonce [nonce.Size]byte
	if _, err := rand.Read(baseNonce[:]); err != nil {
		return nil, wrapErr(RngFail, err)
	}

	wrappedKey, aeadKey, err := wrapKey(pub)
	if err != nil {
		return nil, err
	}
	defer aeadKey.Destroy()

	if err := frame.WriteHeader(dst, wrappedKey, baseNonce); err != nil {
		return nil, mapIOErr(err)
	}

	aead, err := stream.NewAEAD(aeadKey.Bytes())
	if err != nil {
		return nil, wrapErr(AeadSeal, err)
	}

	return &sealingWriter{w: stream.NewChunkedSealer(dst, aead, baseNonce, ChunkSize)}, nil
}

// Decrypt parses the frame header from src, unwraps the AEAD key under
// priv, and returns a Reader that yields the verified plaintext as the
// caller reads it. Header parsing and key unwrap happen eagerly inside this
// call; chunk verification happens lazily, one chunk per Read that needs
// one.
func Decrypt(src io.Reader, priv *rsa.PrivateKey) (io.Reader, error) {
	wrappedKey, baseNonce, err := frame.ReadHeader(src)
	if err != nil {
		return nil, mapIOErr(err)
	}

	aeadKey, err := unwrapKey(priv, wrappedKey)
	if err != nil {
		return nil, err
	}
	defer aeadKey.Destroy()

	aead, err := stream.NewAEAD(aeadKey.Bytes())
	if err != nil {
		return nil, wrapErr(AeadSeal, err)
	}

	return &openingReader{r: stream.NewChunkedOpener(src, aead, baseNonce, ChunkSize)}, nil
}

// mapIOErr translates the internal/frame sentinel errors into this
// package's Kind taxonomy, and otherwise reports a bare I/O fault.
func mapIOErr(err error) error {
	switch {
	case errors.Is(err, frame.ErrTruncated):
		return wrapErr(Truncated, err)
	case errors.Is(err, frame.ErrHeaderInvalid):
		return wrapErr(HeaderInvalid, err)
	default:
		return wrapErr(Io, err)
	}
}

// mapStreamErr translates internal/stream sentinel errors into this
// package's Kind taxonomy.
func mapStreamErr(err error) error {
	switch {
	case errors.Is(err, stream.ErrAfterClose):
		return wrapErr(AfterClose, err)
	case errors.Is(err, stream.ErrTooManyChunks):
		return wrapErr(TooManyChunks, err)
	case errors.Is(err, stream.ErrAeadVerify):
		return wrapErr(AeadVerify, err)
	case errors.Is(err, stream.ErrTrailingData):
		return wrapErr(TrailingData, err)
	case errors.Is(err, frame.ErrTruncated):
		return wrapErr(Truncated, err)
	case errors.Is(err, frame.ErrHeaderInvalid):
		return wrapErr(HeaderInvalid, err)
	default:
		return wrapErr(Io, err)
	}
}

// sealingWriter adapts *stream.ChunkedSealer's bare errors to this
// package's *Error taxonomy.
type sealingWriter struct {
	w *stream.ChunkedSealer
}

func (s *sealingWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err != nil {
		return n, mapStreamErr(err)
	}
	return n, nil
}

func (s *sealingWriter) Close() error {
	if err := s.w.Close(); err != nil {
		return mapStreamErr(err)
	}
	return nil
}

// openingReader adapts *stream.ChunkedOpener's bare errors to this
// package's *Error taxonomy.
type openingReader struct {
	r *stream.ChunkedOpener
}

func (o *openingReader) Read(p []byte) (int, error) {
	n, err := o.r.Read(p)
	if err != nil && err != io.EOF {
		return n, mapStreamErr(err)
	}
	return n, err
}

func (o *openingReader) Close() error { return o.r.Close() }
