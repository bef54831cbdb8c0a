// Copyright 2026 The sealfile Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stream implements chunked, per-chunk-authenticated AEAD framing:
// ChunkedSealer buffers plaintext up to a fixed chunk size and seals it with
// AES-256-GCM under a nonce derived from a session base nonce; ChunkedOpener
// is its mirror image.
//
// Neither type knows about RSA or PEM; they operate purely on an
// already-established cipher.AEAD and a base nonce, so the caller (package
// sealfile) owns key wrapping and the header.
package stream

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/awnumar/memguard"

	"github.com/sealfile/sealfile/internal/frame"
	"github.com/sealfile/sealfile/internal/nonce"
)

// ErrAfterClose is returned by Write after Close has finalized the stream.
var ErrAfterClose = errors.New("stream: write after close")

// ErrTooManyChunks is returned when the chunk counter would overflow.
var ErrTooManyChunks = errors.New("stream: chunk index overflow")

// ErrAeadVerify and ErrTrailingData mirror two of the sealfile.Kind values
// at the internal/stream boundary; package sealfile maps them back.
var (
	ErrAeadVerify   = errors.New("stream: chunk failed authentication")
	ErrTrailingData = errors.New("stream: trailing data after terminator chunk")
)

// NewAEAD builds the AES-256-GCM AEAD used for chunk sealing from a raw
// 32-byte key.
func NewAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("stream: new AES cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// ChunkedSealer buffers plaintext up to chunkSize bytes, seals each full
// chunk with AES-256-GCM under ChunkNonce(index), and emits the framed
// chunk to dst.
type ChunkedSealer struct {
	dst       io.Writer
	aead      cipher.AEAD
	baseNonce [nonce.Size]byte
	chunkSize int

	buf    *memguard.LockedBuffer
	filled int
	index  uint64

	finalized bool
	err       error
}

// NewChunkedSealer constructs a sealer over dst. The caller has already
// written the frame header (wrapped key and base nonce) before this call.
func NewChunkedSealer(dst io.Writer, aead cipher.AEAD, baseNonce [nonce.Size]byte, chunkSize int) *ChunkedSealer {
	return &ChunkedSealer{
		dst:       dst,
		aead:      aead,
		baseNonce: baseNonce,
		chunkSize: chunkSize,
		buf:       memguard.NewBuffer(chunkSize),
	}
}

// Write appends p to the internal plaintext buffer, sealing and emitting a
// chunk every time the buffer reaches exactly chunkSize. It never emits a
// short chunk; that's the exclusive business of Close.
func (s *ChunkedSealer) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.finalized {
		return 0, ErrAfterClose
	}

	total := len(p)
	for len(p) > 0 {
		n := min(len(p), s.chunkSize-s.filled)
		copy(s.buf.Bytes()[s.filled:s.filled+n], p[:n])
		s.filled += n
		p = p[n:]

		if s.filled == s.chunkSize {
			if err := s.sealChunk(false); err != nil {
				s.err = err
				return 0, err
			}
		}
	}
	return total, nil
}

// Flush requests the sink to flush if it supports it. It never emits a
// partial chunk; short-chunk emission is Close's exclusive business.
func (s *ChunkedSealer) Flush() error {
	if s.err != nil {
		return s.err
	}
	if f, ok := s.dst.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close finalizes the stream, sealing and emitting whatever remains in the
// plaintext buffer (possibly zero bytes) as the terminator chunk. If an
// earlier Write failed, no terminator is emitted and that error is returned.
// It is idempotent: a second call is a no-op returning the first call's
// error, if any.
func (s *ChunkedSealer) Close() error {
	if s.finalized {
		return s.err
	}
	s.finalized = true
	if s.err == nil {
		s.err = s.sealChunk(true)
	}
	s.buf.Destroy()
	return s.err
}

func (s *ChunkedSealer) sealChunk(last bool) error {
	if !last && s.filled != s.chunkSize {
		panic("stream: internal error: sealChunk(false) called with a partial buffer")
	}
	if s.index == math.MaxUint64 {
		return ErrTooManyChunks
	}

	n := nonce.ForChunk(s.baseNonce, s.index)
	plaintext := s.buf.Bytes()[:s.filled]
	ciphertext := s.aead.Seal(nil, n[:], plaintext, nil)
	if err := frame.WriteChunk(s.dst, ciphertext); err != nil {
		return err
	}

	s.index++
	s.filled = 0
	return nil
}

// ChunkedOpener parses framed chunks from src, verifies and decrypts each
// under AES-256-GCM with ChunkNonce(index), and exposes the plaintext as a
// byte stream.
type ChunkedOpener struct {
	src       io.Reader
	aead      cipher.AEAD
	baseNonce [nonce.Size]byte
	chunkSize int

	residue    *memguard.LockedBuffer
	residueOff int
	residueLen int

	index     uint64
	exhausted bool
	err       error
}

// NewChunkedOpener constructs an opener over src. The caller has already
// parsed the frame header and unwrapped the symmetric key before this call.
func NewChunkedOpener(src io.Reader, aead cipher.AEAD, baseNonce [nonce.Size]byte, chunkSize int) *ChunkedOpener {
	return &ChunkedOpener{
		src:       src,
		aead:      aead,
		baseNonce: baseNonce,
		chunkSize: chunkSize,
		residue:   memguard.NewBuffer(chunkSize),
	}
}

// Read services reads from the residue buffer first; when it is empty and
// the stream is not exhausted, it fetches, verifies, and decrypts the next
// chunk. Per io.Reader convention, it reports clean end-of-stream as
// io.EOF rather than a bare (0, nil).
func (o *ChunkedOpener) Read(p []byte) (int, error) {
	if o.residueOff < o.residueLen {
		n := copy(p, o.residue.Bytes()[o.residueOff:o.residueLen])
		o.residueOff += n
		return n, nil
	}
	if o.err != nil {
		return 0, o.err
	}
	if o.exhausted {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	last, err := o.readChunk()
	if err != nil {
		o.err = err
		return 0, err
	}
	if last {
		o.exhausted = true
		if err := o.checkTrailingData(); err != nil {
			o.err = err
			return 0, err
		}
	}

	n := copy(p, o.residue.Bytes()[:o.residueLen])
	o.residueOff = n
	return n, nil
}

// readChunk reads the next framed chunk, verifies and decrypts it in place
// into the residue buffer, and reports whether it was the terminator
// (plaintext strictly shorter than chunkSize, including zero). readChunk
// must not be called again after returning an error or a last chunk.
func (o *ChunkedOpener) readChunk() (last bool, err error) {
	if o.index == math.MaxUint64 {
		return false, ErrTooManyChunks
	}

	ciphertext, err := frame.ReadChunk(o.src, o.chunkSize+o.aead.Overhead())
	if err != nil {
		return false, err
	}

	n := nonce.ForChunk(o.baseNonce, o.index)
	plaintext, err := o.aead.Open(o.residue.Bytes()[:0], n[:], ciphertext, nil)
	if err != nil {
		return false, ErrAeadVerify
	}

	o.residueLen = len(plaintext)
	o.residueOff = 0
	o.index++
	return len(plaintext) < o.chunkSize, nil
}

// checkTrailingData verifies there is nothing left to read from src after
// the terminator chunk.
func (o *ChunkedOpener) checkTrailingData() error {
	var one [1]byte
	n, err := o.src.Read(one[:])
	if n > 0 {
		return ErrTrailingData
	}
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Close releases the locked memory backing the residue buffer. It does not
// close the underlying source.
func (o *ChunkedOpener) Close() error {
	o.residue.Destroy()
	return nil
}
