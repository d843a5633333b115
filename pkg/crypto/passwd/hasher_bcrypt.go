package passwd

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

type Bcrypt struct {
	c *BcryptConfiguration
}

type BcryptConfiguration struct {
	Cost int
}

func NewHasherBcrypt(c *BcryptConfiguration) *Bcrypt {
	if c == nil {
		c = &BcryptConfiguration{}
	}
	cfg := *c
	if cfg.Cost == 0 {
		cfg.Cost = bcrypt.DefaultCost
	}
	return &Bcrypt{c: &cfg}
}

func (h *Bcrypt) Generate(ctx context.Context, secret []byte) ([]byte, error) {
	if err := checkSecret(secret); err != nil {
		return nil, err
	}
	if err := validateBcryptSecretLength(secret); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword(secret, h.c.Cost)
	if err != nil {
		return nil, errors.Wrapf(ErrCryptoBackend, "bcrypt: %v", err)
	}

	return hash, nil
}

func (h *Bcrypt) Compare(ctx context.Context, encodedHash, secret []byte) (bool, error) {
	err := bcrypt.CompareHashAndPassword(encodedHash, secret)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, errors.Wrapf(ErrMalformedHash, "bcrypt: %v", err)
	}
}

func (h *Bcrypt) Understands(encodedHash []byte) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if bytes.HasPrefix(encodedHash, []byte(prefix)) {
			return true
		}
	}
	return false
}

func validateBcryptSecretLength(secret []byte) error {
	// Bcrypt truncates the password to the first 72 bytes, following the
	// OpenBSD implementation, so longer input is rejected outright.
	// See https://en.wikipedia.org/wiki/Bcrypt#User_input
	if len(secret) > 72 {
		return errors.Wrap(ErrInvalidInput, "password cannot exceed 72 bytes")
	}
	return nil
}
