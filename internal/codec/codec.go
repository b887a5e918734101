// Package codec implements the compress-then-optionally-encrypt pipeline
// every blob passes through on its way into, and out of, the object
// store: zstd compression unconditionally, ChaCha20-Poly1305 authenticated
// encryption with an Argon2-derived key when a password is configured,
// framed behind a literal 4-byte magic tag.
package codec

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Magic is the literal 4-byte tag that begins every encrypted blob. It is
// part of the on-disk format and must never change.
var Magic = [4]byte{'G', 'I', 'B', '1'}

const (
	saltSize = 16

	// DefaultLevel is the zstd compression level applied when a caller
	// does not specify one.
	DefaultLevel = 3
)

// Sentinel error kinds. Names are semantic, not a strict type hierarchy:
// callers use errors.Is against these values.
var (
	// ErrCorrupt covers framing that claims to be encrypted but cannot be
	// parsed, decompression failure, or an authenticated-decrypt tag
	// mismatch (wrong password or corrupted bytes — the message is
	// deliberately ambiguous about which).
	ErrCorrupt = errors.New("codec: invalid password or corrupted data")

	// ErrEncryptedButNoPassword is returned when Decode encounters a
	// magic-tagged blob but no password was configured.
	ErrEncryptedButNoPassword = errors.New("codec: blob is encrypted but no password was supplied")

	// ErrSerialization marks a MessagePack encode/decode failure.
	ErrSerialization = errors.New("codec: serialization failure")
)

// Level controls zstd compression level. It wraps klauspost/compress/zstd's
// EncoderLevel so callers outside this package never import zstd directly.
type Level int

// encoderLevel returns the zstd encoder level for l, defaulting to
// DefaultLevel for zero or negative values.
func (l Level) encoderLevel() zstd.EncoderLevel {
	n := int(l)
	if n <= 0 {
		n = DefaultLevel
	}
	switch {
	case n <= 1:
		return zstd.SpeedFastest
	case n <= 3:
		return zstd.SpeedDefault
	case n <= 9:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// DecodeResult carries Decode's payload plus the read-time observation the
// backup writer needs to surface a password-upgrade warning.
type DecodeResult struct {
	// Plain is the decoded, decompressed payload.
	Plain []byte
	// WasEncrypted reports whether the blob carried the GIB1 magic tag,
	// regardless of whether a password was supplied.
	WasEncrypted bool
}

// IsEncrypted reports whether blob begins with the GIB1 magic tag.
func IsEncrypted(blob []byte) bool {
	if len(blob) < len(Magic) {
		return false
	}
	return blob[0] == Magic[0] && blob[1] == Magic[1] && blob[2] == Magic[2] && blob[3] == Magic[3]
}

// Encode compresses plain at the given level and, when password is
// non-empty, encrypts the compressed bytes behind GIB1 framing.
func Encode(plain []byte, level Level, password string) ([]byte, error) {
	compressed, err := compress(plain, level)
	if err != nil {
		return nil, fmt.Errorf("codec: compress: %w", err)
	}
	if password == "" {
		return compressed, nil
	}
	return encrypt(compressed, password)
}

// Decode is the inverse of Encode. A missing or zero-length blob decodes
// to empty data without error (first-run, no-index-yet paths rely on
// this). If blob is encrypted and password is empty, ErrEncryptedButNoPassword
// is returned. If blob is plaintext and password is non-empty, decoding
// still succeeds; DecodeResult.WasEncrypted is false so the caller can
// warn about a plaintext read under a configured password.
func Decode(blob []byte, password string) (DecodeResult, error) {
	if len(blob) == 0 {
		return DecodeResult{}, nil
	}
	if !IsEncrypted(blob) {
		plain, err := decompress(blob)
		if err != nil {
			return DecodeResult{}, fmt.Errorf("codec: decompress: %w", ErrCorrupt)
		}
		return DecodeResult{Plain: plain, WasEncrypted: false}, nil
	}
	if password == "" {
		return DecodeResult{}, ErrEncryptedButNoPassword
	}
	compressed, err := decrypt(blob, password)
	if err != nil {
		return DecodeResult{}, err
	}
	plain, err := decompress(compressed)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("codec: decompress: %w", ErrCorrupt)
	}
	return DecodeResult{Plain: plain, WasEncrypted: true}, nil
}

func compress(plain []byte, level Level) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level.encoderLevel()))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(plain, nil), nil
}

func decompress(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return []byte{}, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(blob, nil)
}

func encrypt(compressed []byte, password string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("codec: generate salt: %w", err)
	}
	key := deriveKey(password, salt)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("codec: init cipher: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("codec: generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, compressed, nil)

	out := make([]byte, 0, len(Magic)+saltSize+chacha20poly1305.NonceSize+len(ciphertext))
	out = append(out, Magic[:]...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

func decrypt(blob []byte, password string) ([]byte, error) {
	minLen := len(Magic) + saltSize + chacha20poly1305.NonceSize
	if len(blob) < minLen {
		return nil, fmt.Errorf("codec: truncated ciphertext: %w", ErrCorrupt)
	}
	salt := blob[len(Magic) : len(Magic)+saltSize]
	nonce := blob[len(Magic)+saltSize : minLen]
	ciphertext := blob[minLen:]

	key := deriveKey(password, salt)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("codec: init cipher: %w", err)
	}
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrCorrupt
	}
	return plain, nil
}

// deriveKey runs Argon2id with widely-used default parameters to derive a
// 32-byte ChaCha20-Poly1305 key from password and salt.
func deriveKey(password string, salt []byte) []byte {
	const (
		time    = 1
		memory  = 64 * 1024 // KiB
		threads = 4
		keyLen  = chacha20poly1305.KeySize
	)
	return argon2.IDKey([]byte(password), salt, time, memory, threads, keyLen)
}
