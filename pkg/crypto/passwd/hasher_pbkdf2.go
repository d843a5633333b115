package passwd

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
)

// MinSecretLength is the minimum length of a secret, in characters, after
// trimming surrounding whitespace. A basic safeguard, not a password policy.
const MinSecretLength = 6

type PBKDF2 struct {
	c       *PBKDF2Configuration
	rand    io.Reader
	sem     chan struct{}
	metrics *metrics
}

type PBKDF2Configuration struct {
	// Format selects the parameter and encoding tuple used for new hashes.
	// Verification decodes with this tuple as well, so hashes issued under the
	// other format must go to an instance configured for it.
	Format HashFormat
	// Iterations and KeyLength override the format defaults when non zero.
	Iterations int
	KeyLength  int
	// MaxConcurrent caps the number of in flight derivations when positive.
	MaxConcurrent int
	// Rand is the salt entropy source, crypto/rand when nil. Fixing it makes
	// Generate deterministic, which is only useful in tests.
	Rand io.Reader
}

func NewHasherPBKDF2(c *PBKDF2Configuration) (*PBKDF2, error) {
	if c == nil {
		c = &PBKDF2Configuration{}
	}
	cfg := *c
	if cfg.Format != FormatCurrent && cfg.Format != FormatLegacy {
		return nil, errors.Wrapf(ErrCryptoBackend, "unknown hash format %d", cfg.Format)
	}
	if cfg.Iterations == 0 {
		cfg.Iterations = cfg.Format.iterations()
	}
	if cfg.KeyLength == 0 {
		cfg.KeyLength = cfg.Format.keyLength()
	}
	if cfg.Iterations < 0 || cfg.KeyLength < 0 || cfg.MaxConcurrent < 0 {
		return nil, errors.Wrap(ErrCryptoBackend, "negative pbkdf2 parameter")
	}
	h := &PBKDF2{c: &cfg, rand: cfg.Rand, metrics: newMetrics()}
	if h.rand == nil {
		h.rand = rand.Reader
	}
	if cfg.MaxConcurrent > 0 {
		h.sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	return h, nil
}

// Generate derives an encoded hash for the secret using the configured
// format. The secret must be at least MinSecretLength characters once
// surrounding whitespace is trimmed; the check runs before any derivation
// work. A fresh 16 byte salt is drawn for every call.
func (h *PBKDF2) Generate(ctx context.Context, secret []byte) ([]byte, error) {
	if err := checkSecret(secret); err != nil {
		return nil, err
	}

	salt := make([]byte, SaltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return nil, errors.Wrapf(ErrCryptoBackend, "reading salt: %v", err)
	}

	saltField := h.c.Format.encodeToString(salt)
	key := h.deriveKey(secret, h.c.Format.saltInput(salt, saltField), h.c.Iterations, h.c.KeyLength)

	var b bytes.Buffer
	if _, err := fmt.Fprintf(&b, "%s$%d$%s$%s",
		AlgorithmPBKDF2SHA256, h.c.Iterations, saltField,
		h.c.Format.encodeToString(key),
	); err != nil {
		return nil, errors.WithStack(err)
	}

	h.metrics.inc(MetricHashesIssued)
	return b.Bytes(), nil
}

// Compare reports whether the secret matches the encoded hash. The stored
// iteration count is honored and the comparison key is derived at the stored
// key's byte length, so hashes of either key length convention verify
// transparently. Structural and decoding problems are errors; a clean
// mismatch is (false, nil).
func (h *PBKDF2) Compare(ctx context.Context, encodedHash, secret []byte) (bool, error) {
	parsed, err := parseEncoded(string(encodedHash))
	if err != nil {
		h.metrics.inc(MetricMalformedRejected)
		return false, err
	}

	salt, err := h.c.Format.decodeString(parsed.saltField)
	if err != nil {
		h.metrics.inc(MetricMalformedRejected)
		return false, errors.Wrap(ErrMalformedHash, "undecodable salt")
	}
	storedKey, err := h.c.Format.decodeString(parsed.keyField)
	if err != nil {
		h.metrics.inc(MetricMalformedRejected)
		return false, errors.Wrap(ErrMalformedHash, "undecodable key")
	}
	// The base64 decoder ignores newlines, so a whitespace field decodes to
	// zero bytes without error. An empty stored key must never compare equal.
	if len(salt) == 0 || len(storedKey) == 0 {
		h.metrics.inc(MetricMalformedRejected)
		return false, errors.Wrap(ErrMalformedHash, "empty salt or key field")
	}

	computed := h.deriveKey(secret, h.c.Format.saltInput(salt, parsed.saltField), parsed.iterations, len(storedKey))
	if subtle.ConstantTimeCompare(computed, storedKey) == 1 {
		h.metrics.inc(MetricComparesMatched)
		return true, nil
	}
	h.metrics.inc(MetricComparesMismatched)
	return false, nil
}

// Understands reports whether the hash is structurally a pbkdf2 hash this
// hasher can attempt to verify. No cryptographic work is done.
func (h *PBKDF2) Understands(encodedHash []byte) bool {
	_, err := parseEncoded(string(encodedHash))
	return err == nil
}

// NeedsRehash reports whether a well formed hash was issued under parameters
// other than the configured ones and should be re-issued after the next
// successful verification. Unparseable input reports false; Compare surfaces
// the real error.
func (h *PBKDF2) NeedsRehash(encodedHash []byte) bool {
	parsed, err := parseEncoded(string(encodedHash))
	if err != nil {
		return false
	}
	format, err := DetectFormat(encodedHash)
	if err != nil {
		return false
	}
	if format != h.c.Format {
		return true
	}
	if parsed.iterations != h.c.Iterations {
		return true
	}
	storedKey, err := format.decodeString(parsed.keyField)
	if err != nil {
		return false
	}
	return len(storedKey) != h.c.KeyLength
}

// MetricsSnapshot returns a copy of the hasher's operation counters.
func (h *PBKDF2) MetricsSnapshot() MetricsSnapshot {
	return h.metrics.snapshot()
}

// deriveKey runs the KDF, holding a semaphore slot when a concurrency bound
// is configured. Derivation is not interruptible once started.
func (h *PBKDF2) deriveKey(secret, salt []byte, iterations, keyLength int) []byte {
	if h.sem != nil {
		h.sem <- struct{}{}
		defer func() { <-h.sem }()
	}
	return pbkdf2.Key(secret, salt, iterations, keyLength, sha256.New)
}

func checkSecret(secret []byte) error {
	trimmed := strings.TrimSpace(string(secret))
	if utf8.RuneCountInString(trimmed) < MinSecretLength {
		return errors.Wrap(ErrInvalidInput, "password too short")
	}
	return nil
}
