// Copyright 2026 The sealfile Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sealfile

import "fmt"

// Kind identifies the coarse category of a failure raised by this package.
// Kinds never carry a sub-reason beyond what's in this list: in particular
// AeadVerify and RsaUnwrap are always reported distinctly from each other,
// but never more precisely than that.
type Kind int

const (
	_ Kind = iota

	// Io is an underlying source or sink failure.
	Io
	// PemParse is a malformed key PEM.
	PemParse
	// KeyGen is an RSA key generation failure.
	KeyGen
	// RsaWrap is an RSA-OAEP wrap failure.
	RsaWrap
	// RsaUnwrap is an RSA-OAEP unwrap failure (tampering or wrong key).
	RsaUnwrap
	// AeadSeal is an AES-256-GCM sealing failure. Should not occur with
	// correct inputs.
	AeadSeal
	// AeadVerify is an AES-256-GCM authentication failure.
	AeadVerify
	// RngFail is a secure RNG unavailability.
	RngFail
	// Truncated is an unexpected EOF or a missing terminator chunk.
	Truncated
	// TrailingData is unconsumed bytes after the terminator chunk.
	TrailingData
	// HeaderInvalid is a header length field out of range.
	HeaderInvalid
	// AfterClose is a writer used after Close/Finalize.
	AfterClose
	// TooManyChunks is a chunk index overflow.
	TooManyChunks
)

func (k Kind) String() string {
	switch k {
	case Io:
		return "io"
	case PemParse:
		return "pem_parse"
	case KeyGen:
		return "key_gen"
	case RsaWrap:
		return "rsa_wrap"
	case RsaUnwrap:
		return "rsa_unwrap"
	case AeadSeal:
		return "aead_seal"
	case AeadVerify:
		return "aead_verify"
	case RngFail:
		return "rng_fail"
	case Truncated:
		return "truncated"
	case TrailingData:
		return "trailing_data"
	case HeaderInvalid:
		return "header_invalid"
	case AfterClose:
		return "after_close"
	case TooManyChunks:
		return "too_many_chunks"
	default:
		return "unknown"
	}
}

// Error is the unified failure taxonomy across I/O, framing, and
// cryptographic faults. It never embeds key material or internal byte
// offsets in its message.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "sealfile: " + e.Kind.String()
	}
	return fmt.Sprintf("sealfile: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error with the same Kind, so callers can
// do errors.Is(err, sealfile.ErrTruncated) style checks against the
// exported sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func wrapErr(kind Kind, err error) error {
	if err == nil {
		return &Error{Kind: kind}
	}
	return &Error{Kind: kind, Err: err}
}

// Sentinels for errors.Is comparisons. Only the Kind field is meaningful
// for equality; the Err field is always nil on these.
var (
	ErrIo            = &Error{Kind: Io}
	ErrPemParse      = &Error{Kind: PemParse}
	ErrKeyGen        = &Error{Kind: KeyGen}
	ErrRsaWrap       = &Error{Kind: RsaWrap}
	ErrRsaUnwrap     = &Error{Kind: RsaUnwrap}
	ErrAeadSeal      = &Error{Kind: AeadSeal}
	ErrAeadVerify    = &Error{Kind: AeadVerify}
	ErrRngFail       = &Error{Kind: RngFail}
	ErrTruncated     = &Error{Kind: Truncated}
	ErrTrailingData  = &Error{Kind: TrailingData}
	ErrHeaderInvalid = &Error{Kind: HeaderInvalid}
	ErrAfterClose    = &Error{Kind: AfterClose}
	ErrTooManyChunks = &Error{Kind: TooManyChunks}
)
