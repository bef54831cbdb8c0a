// Copyright 2026 The sealfile Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command sealfile implements hybrid RSA-OAEP/AES-256-GCM file encryption
// from the command line.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/sealfile/sealfile"
)

const usage = `Usage:
    sealfile keygen [-b BITS] OUTPUT_PATH
    sealfile encrypt PUBLIC_KEY INPUT_FILE [OUTPUT_FILE]
    sealfile decrypt PRIVATE_KEY INPUT_FILE [OUTPUT_FILE]

Options:
    -b BITS    RSA modulus size for keygen: 2048 or 4096 (default 2048).
    -force     Overwrite an existing OUTPUT_PATH/OUTPUT_FILE instead of
               refusing to; on encrypt, also allow writing ciphertext to a
               terminal.

keygen writes OUTPUT_PATH (the private key, mode 0600) and OUTPUT_PATH.pub
(the public key, mode 0644).

INPUT_FILE of "-" reads standard input. OUTPUT_FILE omitted (or "-") writes
standard output; on encrypt, sealfile refuses to write binary ciphertext to
a terminal unless -force is given.`

func main() {
	log.SetFlags(0)
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]
	switch cmd {
	case "keygen":
		runKeygen(args)
	case "encrypt":
		runEncrypt(args)
	case "decrypt":
		runDecrypt(args)
	case "-h", "-help", "--help", "help":
		flag.Usage()
	default:
		logFatalf("Error: unknown command %q.\n%s", cmd, usage)
	}
}

func runKeygen(args []string) {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	bits := fs.Int("b", 2048, "RSA modulus size in bits (2048 or 4096)")
	force := fs.Bool("force", false, "overwrite an existing output file")
	fs.Parse(args)

	if fs.NArg() != 1 {
		logFatalf("Error: keygen takes exactly one argument, OUTPUT_PATH.\n%s", usage)
	}
	outPath := fs.Arg(0)
	pubPath := outPath + ".pub"

	id := uuid.New()
	kp, err := sealfile.GenerateKeyPair(*bits)
	if err != nil {
		logFatalf("[%s] Error: failed to generate key pair: %v", id, err)
	}

	privPEM, err := kp.MarshalPrivatePEM()
	if err != nil {
		logFatalf("[%s] Error: failed to marshal private key: %v", id, err)
	}
	pubPEM, err := kp.MarshalPublicPEM()
	if err != nil {
		logFatalf("[%s] Error: failed to marshal public key: %v", id, err)
	}

	writeKeyFile(id, outPath, privPEM, 0o600, *force)
	writeKeyFile(id, pubPath, pubPEM, 0o644, *force)

	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintf(os.Stderr, "[%s] %s and %s written\n", id, outPath, pubPath)
	}
}

func writeKeyFile(id uuid.UUID, path string, data []byte, mode os.FileMode, force bool) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, mode)
	if err != nil {
		if os.IsExist(err) {
			logFatalf("[%s] Error: %s already exists; use -force to overwrite", id, path)
		}
		logFatalf("[%s] Error: failed to open %s: %v", id, path, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		logFatalf("[%s] Error: failed to write %s: %v", id, path, err)
	}
}

func runEncrypt(args []string) {
	fs := flag.NewFlagSet("encrypt", flag.ExitOnError)
	force := fs.Bool("force", false, "overwrite an existing output file")
	fs.Parse(args)

	if fs.NArg() < 2 || fs.NArg() > 3 {
		logFatalf("Error: encrypt takes PUBLIC_KEY INPUT_FILE [OUTPUT_FILE].\n%s", usage)
	}
	id := uuid.New()
	pubPath, inPath := fs.Arg(0), fs.Arg(1)
	var outPath string
	if fs.NArg() == 3 {
		outPath = fs.Arg(2)
	}

	kp := mustLoadPublicKey(id, pubPath)
	in := mustOpenInput(id, inPath)
	defer in.Close()

	if outPath == "" || outPath == "-" {
		if term.IsTerminal(int(os.Stdout.Fd())) && !*force {
			logFatalf("[%s] Error: refusing to write encrypted binary to a terminal; pass OUTPUT_FILE or redirect stdout.", id)
		}
		if err := encryptTo(kp, in, os.Stdout); err != nil {
			logFatalf("[%s] Error: %v", id, err)
		}
		return
	}

	out := newLazyOpener(outPath, *force)
	defer out.Close()
	if err := encryptTo(kp, in, out); err != nil {
		logFatalf("[%s] Error: %v", id, err)
	}
	fmt.Fprintf(os.Stderr, "[%s] %s written\n", id, outPath)
}

func encryptTo(kp *sealfile.KeyPair, in io.Reader, out io.Writer) error {
	w, err := sealfile.Encrypt(out, kp.Public())
	if err != nil {
		return fmt.Errorf("failed to start encryption: %w", err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("failed to encrypt input: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize sealed file: %w", err)
	}
	return nil
}

func runDecrypt(args []string) {
	fs := flag.NewFlagSet("decrypt", flag.ExitOnError)
	force := fs.Bool("force", false, "overwrite an existing output file")
	fs.Parse(args)

	if fs.NArg() < 2 || fs.NArg() > 3 {
		logFatalf("Error: decrypt takes PRIVATE_KEY INPUT_FILE [OUTPUT_FILE].\n%s", usage)
	}
	id := uuid.New()
	privPath, inPath := fs.Arg(0), fs.Arg(1)
	var outPath string
	if fs.NArg() == 3 {
		outPath = fs.Arg(2)
	}

	kp := mustLoadPrivateKey(id, privPath)
	in := mustOpenInput(id, inPath)
	defer in.Close()

	r, err := sealfile.Decrypt(in, kp.Private())
	if err != nil {
		logFatalf("[%s] Error: failed to open sealed file: %v", id, err)
	}

	if outPath == "" || outPath == "-" {
		if _, err := io.Copy(os.Stdout, r); err != nil {
			logFatalf("[%s] Error: failed to decrypt: %v", id, err)
		}
		return
	}

	out := newLazyOpener(outPath, *force)
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		logFatalf("[%s] Error: failed to decrypt: %v", id, err)
	}
	fmt.Fprintf(os.Stderr, "[%s] %s written\n", id, outPath)
}

func mustLoadPublicKey(id uuid.UUID, path string) *sealfile.KeyPair {
	data, err := os.ReadFile(path)
	if err != nil {
		logFatalf("[%s] Error: failed to read public key %s: %v", id, path, err)
	}
	kp, err := sealfile.ParsePublicPEM(data)
	if err != nil {
		logFatalf("[%s] Error: failed to parse public key %s: %v", id, path, err)
	}
	return kp
}

func mustLoadPrivateKey(id uuid.UUID, path string) *sealfile.KeyPair {
	data, err := os.ReadFile(path)
	if err != nil {
		logFatalf("[%s] Error: failed to read private key %s: %v", id, path, err)
	}
	kp, err := sealfile.ParsePrivatePEM(data)
	if err != nil {
		logFatalf("[%s] Error: failed to parse private key %s: %v", id, path, err)
	}
	return kp
}

func mustOpenInput(id uuid.UUID, path string) io.ReadCloser {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		logFatalf("[%s] Error: failed to open input file %s: %v", id, path, err)
	}
	return f
}

// lazyOpener defers creating OUTPUT_FILE until the first successful write,
// so a failing encrypt/decrypt never leaves a zero-byte file behind.
type lazyOpener struct {
	name  string
	force bool
	f     *os.File
	err   error
}

func newLazyOpener(name string, force bool) io.WriteCloser {
	return &lazyOpener{name: name, force: force}
}

func (l *lazyOpener) Write(p []byte) (int, error) {
	if l.f == nil && l.err == nil {
		flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
		if l.force {
			flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		}
		l.f, l.err = os.OpenFile(l.name, flags, 0o644)
		if os.IsExist(l.err) {
			l.err = fmt.Errorf("%s already exists; use -force to overwrite", l.name)
		}
	}
	if l.err != nil {
		return 0, l.err
	}
	return l.f.Write(p)
}

func (l *lazyOpener) Close() error {
	if l.f != nil {
		return l.f.Close()
	}
	return nil
}

func logFatalf(format string, v ...interface{}) {
	log.Fatalf(format, v...)
}
