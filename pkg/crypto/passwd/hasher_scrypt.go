package passwd

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/scrypt"
)

const scryptPrefix = "$scrypt$"

type Scrypt struct {
	c *ScryptConfiguration
}

type ScryptConfiguration struct {
	Cost            uint32
	Block           uint32
	Parallelization uint32
	SaltLength      uint32
	KeyLength       uint32
}

func NewHasherScrypt(c *ScryptConfiguration) *Scrypt {
	if c == nil {
		c = &ScryptConfiguration{}
	}
	cfg := *c
	if cfg.Cost == 0 {
		cfg.Cost = 32768
	}
	if cfg.Block == 0 {
		cfg.Block = 8
	}
	if cfg.Parallelization == 0 {
		cfg.Parallelization = 1
	}
	if cfg.SaltLength == 0 {
		cfg.SaltLength = SaltLength
	}
	if cfg.KeyLength == 0 {
		cfg.KeyLength = 32
	}
	return &Scrypt{c: &cfg}
}

func (h *Scrypt) Generate(ctx context.Context, secret []byte) ([]byte, error) {
	if err := checkSecret(secret); err != nil {
		return nil, err
	}

	salt := make([]byte, h.c.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrapf(ErrCryptoBackend, "reading salt: %v", err)
	}
	key, err := scrypt.Key(secret, salt, int(h.c.Cost), int(h.c.Block), int(h.c.Parallelization), int(h.c.KeyLength))
	if err != nil {
		return nil, errors.Wrapf(ErrCryptoBackend, "scrypt: %v", err)
	}

	// format: $scrypt$ln=<cost>,r=<block>,p=<parallelization>$<salt>$<key>
	var b bytes.Buffer
	if _, err := fmt.Fprintf(
		&b,
		"$scrypt$ln=%d,r=%d,p=%d$%s$%s",
		h.c.Cost, h.c.Block, h.c.Parallelization,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	); err != nil {
		return nil, errors.WithStack(err)
	}

	return b.Bytes(), nil
}

func (h *Scrypt) Compare(ctx context.Context, encodedHash, secret []byte) (bool, error) {
	fields := strings.Split(string(encodedHash), "$")
	if len(fields) != 5 || fields[0] != "" || fields[1] != "scrypt" {
		return false, errors.Wrap(ErrMalformedHash, "not an scrypt hash")
	}

	var cost, block, parallelization int
	if _, err := fmt.Sscanf(fields[2], "ln=%d,r=%d,p=%d", &cost, &block, &parallelization); err != nil {
		return false, errors.Wrap(ErrMalformedHash, "unreadable scrypt parameters")
	}

	salt, err := base64.StdEncoding.DecodeString(fields[3])
	if err != nil {
		return false, errors.Wrap(ErrMalformedHash, "undecodable salt")
	}
	storedKey, err := base64.StdEncoding.DecodeString(fields[4])
	if err != nil {
		return false, errors.Wrap(ErrMalformedHash, "undecodable key")
	}
	if len(salt) == 0 || len(storedKey) == 0 {
		return false, errors.Wrap(ErrMalformedHash, "empty salt or key field")
	}

	computed, err := scrypt.Key(secret, salt, cost, block, parallelization, len(storedKey))
	if err != nil {
		return false, errors.Wrapf(ErrMalformedHash, "scrypt parameters out of range: %v", err)
	}
	return subtle.ConstantTimeCompare(computed, storedKey) == 1, nil
}

func (h *Scrypt) Understands(encodedHash []byte) bool {
	return strings.HasPrefix(string(encodedHash), scryptPrefix)
}
