// Copyright 2026 The sealfile Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stream_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"testing"
	"testing/iotest"

	"github.com/sealfile/sealfile/internal/frame"
	"github.com/sealfile/sealfile/internal/nonce"
	"github.com/sealfile/sealfile/internal/stream"
)

const cs = 1024

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	return key
}

func randomBaseNonce(t *testing.T) [nonce.Size]byte {
	t.Helper()
	var n [nonce.Size]byte
	if _, err := rand.Read(n[:]); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestRoundTrip(t *testing.T) {
	for _, length := range []int{0, 1000, cs - 1, cs, cs + 1, cs + 100, 2 * cs, 2*cs + 500} {
		for _, stepSize := range []int{50, 600, 1000, cs - 1, cs, cs + 1} {
			t.Run(fmt.Sprintf("len=%d,step=%d", length, stepSize), func(t *testing.T) {
				testRoundTrip(t, stepSize, length)
			})
		}
	}
}

func testRoundTrip(t *testing.T, stepSize, length int) {
	src := make([]byte, length)
	if _, err := rand.Read(src); err != nil {
		t.Fatal(err)
	}
	key := randomKey(t)
	baseNonce := randomBaseNonce(t)

	aead, err := stream.NewAEAD(key)
	if err != nil {
		t.Fatal(err)
	}

	buf := &bytes.Buffer{}
	w := stream.NewChunkedSealer(buf, aead, baseNonce, cs)

	var n int
	for n < length {
		b := min(length-n, stepSize)
		nn, err := w.Write(src[n : n+b])
		if err != nil {
			t.Fatal(err)
		}
		if nn != b {
			t.Errorf("Write returned %d, expected %d", nn, b)
		}
		n += nn
	}
	if err := w.Close(); err != nil {
		t.Fatal("Close returned an error:", err)
	}
	// Close is idempotent.
	if err := w.Close(); err != nil {
		t.Fatal("second Close returned an error:", err)
	}

	ciphertext := buf.Bytes()

	r := stream.NewChunkedOpener(bytes.NewReader(ciphertext), aead, baseNonce, cs)
	defer r.Close()

	var got bytes.Buffer
	readBuf := make([]byte, max(stepSize, 1))
	for {
		nn, err := r.Read(readBuf)
		got.Write(readBuf[:nn])
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read error: %v", err)
		}
	}
	if !bytes.Equal(got.Bytes(), src) {
		t.Errorf("round trip mismatch: got %d bytes, want %d", got.Len(), len(src))
	}

	t.Run("iotest.TestReader", func(t *testing.T) {
		if length > 1000 && testing.Short() {
			t.Skip("skipping slow iotest.TestReader on long input")
		}
		r := stream.NewChunkedOpener(bytes.NewReader(ciphertext), aead, baseNonce, cs)
		defer r.Close()
		if err := iotest.TestReader(onlyReader{r}, src); err != nil {
			t.Error("iotest.TestReader error on ChunkedOpener:", err)
		}
	})
}

// onlyReader strips everything but Read so iotest.TestReader can't see that
// ChunkedOpener also implements io.Closer.
type onlyReader struct{ io.Reader }

func TestChunkBoundaryCount(t *testing.T) {
	for _, k := range []int{0, 1, 2, 3} {
		length := k * cs
		key := randomKey(t)
		baseNonce := randomBaseNonce(t)
		aead, err := stream.NewAEAD(key)
		if err != nil {
			t.Fatal(err)
		}

		buf := &bytes.Buffer{}
		w := stream.NewChunkedSealer(buf, aead, baseNonce, cs)
		if _, err := w.Write(make([]byte, length)); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}

		var chunks int
		r := bytes.NewReader(buf.Bytes())
		for {
			payload, err := frame.ReadChunk(r, -1)
			if errors.Is(err, frame.ErrTruncated) {
				break
			}
			if err != nil {
				t.Fatal(err)
			}
			chunks++
			if chunks < k+1 && len(payload)-aead.Overhead() != cs {
				t.Errorf("chunk %d: expected full chunk", chunks-1)
			}
		}
		if chunks != k+1 {
			t.Errorf("length=%d: got %d chunks, want %d", length, chunks, k+1)
		}
	}
}

func TestWriteAfterClose(t *testing.T) {
	aead, err := stream.NewAEAD(randomKey(t))
	if err != nil {
		t.Fatal(err)
	}
	w := stream.NewChunkedSealer(&bytes.Buffer{}, aead, randomBaseNonce(t), cs)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("x")); !errors.Is(err, stream.ErrAfterClose) {
		t.Fatalf("expected ErrAfterClose, got %v", err)
	}
}

func TestTamperedChunkFailsVerify(t *testing.T) {
	key := randomKey(t)
	baseNonce := randomBaseNonce(t)
	aead, err := stream.NewAEAD(key)
	if err != nil {
		t.Fatal(err)
	}

	buf := &bytes.Buffer{}
	w := stream.NewChunkedSealer(buf, aead, baseNonce, cs)
	if _, err := w.Write([]byte("abcdefghijklmnop")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	ciphertext := buf.Bytes()
	ciphertext[len(ciphertext)-1] ^= 0xFF // flip the last byte of the sole chunk's tag

	r := stream.NewChunkedOpener(bytes.NewReader(ciphertext), aead, baseNonce, cs)
	defer r.Close()
	_, err = r.Read(make([]byte, 16))
	if !errors.Is(err, stream.ErrAeadVerify) {
		t.Fatalf("expected ErrAeadVerify, got %v", err)
	}
}

func TestTruncatedFrameFailsTruncated(t *testing.T) {
	key := randomKey(t)
	baseNonce := randomBaseNonce(t)
	aead, err := stream.NewAEAD(key)
	if err != nil {
		t.Fatal(err)
	}

	buf := &bytes.Buffer{}
	w := stream.NewChunkedSealer(buf, aead, baseNonce, cs)
	if _, err := w.Write(make([]byte, cs)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	// Drop the terminator chunk entirely: only the full chunk remains.
	full := buf.Bytes()
	firstChunkLen := 4 + cs + aead.Overhead()
	truncated := full[:firstChunkLen]

	r := stream.NewChunkedOpener(bytes.NewReader(truncated), aead, baseNonce, cs)
	defer r.Close()
	readBuf := make([]byte, cs)
	for {
		_, err := r.Read(readBuf)
		if err != nil {
			if !errors.Is(err, frame.ErrTruncated) {
				t.Fatalf("expected ErrTruncated, got %v", err)
			}
			return
		}
	}
}

func TestTrailingDataFailsTrailingData(t *testing.T) {
	key := randomKey(t)
	baseNonce := randomBaseNonce(t)
	aead, err := stream.NewAEAD(key)
	if err != nil {
		t.Fatal(err)
	}

	buf := &bytes.Buffer{}
	w := stream.NewChunkedSealer(buf, aead, baseNonce, cs)
	if _, err := w.Write([]byte("short")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	buf.Write([]byte("trailing garbage"))

	r := stream.NewChunkedOpener(bytes.NewReader(buf.Bytes()), aead, baseNonce, cs)
	defer r.Close()
	readBuf := make([]byte, 64)
	var lastErr error
	for {
		_, err := r.Read(readBuf)
		if err != nil {
			lastErr = err
			break
		}
	}
	if !errors.Is(lastErr, stream.ErrTrailingData) {
		t.Fatalf("expected ErrTrailingData, got %v", lastErr)
	}
}

func TestEmptyPlaintextSingleTerminatorChunk(t *testing.T) {
	key := randomKey(t)
	baseNonce := randomBaseNonce(t)
	aead, err := stream.NewAEAD(key)
	if err != nil {
		t.Fatal(err)
	}

	buf := &bytes.Buffer{}
	w := stream.NewChunkedSealer(buf, aead, baseNonce, cs)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r := bytes.NewReader(buf.Bytes())
	payload, err := frame.ReadChunk(r, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(payload) != aead.Overhead() {
		t.Errorf("expected a tag-only terminator chunk, got %d bytes", len(payload))
	}
	if _, err := frame.ReadChunk(r, -1); !errors.Is(err, frame.ErrTruncated) {
		t.Errorf("expected exactly one chunk, got further chunk or wrong error: %v", err)
	}
}
