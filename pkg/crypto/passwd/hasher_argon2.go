package passwd

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/inhies/go-bytesize"
	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
)

const argon2idPrefix = "$argon2id$"

type Argon2 struct {
	c   *Argon2Configuration
	sem chan struct{}
}

type Argon2Configuration struct {
	Parallelism uint8
	Memory      bytesize.ByteSize
	Iterations  uint32
	SaltLength  uint8
	KeyLength   uint32
	// MaxConcurrent caps in flight derivations when positive; argon2 is
	// memory hard and unbounded parallel calls multiply the memory cost.
	MaxConcurrent int
}

func NewHasherArgon2(c *Argon2Configuration) *Argon2 {
	if c == nil {
		c = &Argon2Configuration{}
	}
	cfg := *c
	if cfg.Parallelism == 0 {
		cfg.Parallelism = 2
	}
	if cfg.Memory == 0 {
		cfg.Memory = 64 * bytesize.MB
	}
	if cfg.Iterations == 0 {
		cfg.Iterations = 3
	}
	if cfg.SaltLength == 0 {
		cfg.SaltLength = SaltLength
	}
	if cfg.KeyLength == 0 {
		cfg.KeyLength = 32
	}
	h := &Argon2{c: &cfg}
	if cfg.MaxConcurrent > 0 {
		h.sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	return h
}

// The PHC string and argon2.IDKey both take the memory cost in KiB.
func toKB(mem bytesize.ByteSize) uint32 {
	return uint32(mem / bytesize.KB)
}

func (h *Argon2) Generate(ctx context.Context, secret []byte) ([]byte, error) {
	if err := checkSecret(secret); err != nil {
		return nil, err
	}

	salt := make([]byte, h.c.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrapf(ErrCryptoBackend, "reading salt: %v", err)
	}

	key := h.deriveKey(secret, salt, h.c.Iterations, toKB(h.c.Memory), h.c.Parallelism, h.c.KeyLength)

	var b bytes.Buffer
	if _, err := fmt.Fprintf(
		&b,
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, toKB(h.c.Memory), h.c.Iterations, h.c.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	); err != nil {
		return nil, errors.WithStack(err)
	}

	return b.Bytes(), nil
}

// Compare re-derives with the parameters embedded in the hash and the stored
// key's byte length, then compares constant time.
func (h *Argon2) Compare(ctx context.Context, encodedHash, secret []byte) (bool, error) {
	fields := strings.Split(string(encodedHash), "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return false, errors.Wrap(ErrMalformedHash, "not an argon2id hash")
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return false, errors.Wrap(ErrMalformedHash, "unreadable argon2 version")
	}
	if version != argon2.Version {
		return false, errors.Wrapf(ErrMalformedHash, "incompatible argon2 version %d", version)
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, errors.Wrap(ErrMalformedHash, "unreadable argon2 parameters")
	}
	if memory == 0 || iterations == 0 || parallelism == 0 {
		return false, errors.Wrap(ErrMalformedHash, "argon2 parameters out of range")
	}

	salt, err := base64.RawStdEncoding.DecodeString(fields[4])
	if err != nil {
		return false, errors.Wrap(ErrMalformedHash, "undecodable salt")
	}
	storedKey, err := base64.RawStdEncoding.DecodeString(fields[5])
	if err != nil {
		return false, errors.Wrap(ErrMalformedHash, "undecodable key")
	}
	if len(salt) == 0 || len(storedKey) == 0 {
		return false, errors.Wrap(ErrMalformedHash, "empty salt or key field")
	}

	computed := h.deriveKey(secret, salt, iterations, memory, parallelism, uint32(len(storedKey)))
	return subtle.ConstantTimeCompare(computed, storedKey) == 1, nil
}

func (h *Argon2) Understands(encodedHash []byte) bool {
	return strings.HasPrefix(string(encodedHash), argon2idPrefix)
}

func (h *Argon2) deriveKey(secret, salt []byte, iterations, memory uint32, parallelism uint8, keyLength uint32) []byte {
	if h.sem != nil {
		h.sem <- struct{}{}
		defer func() { <-h.sem }()
	}
	return argon2.IDKey(secret, salt, iterations, memory, parallelism, keyLength)
}
