// Package passwd provides password hashing and verification primitives. The
// encoded hash string is the only artifact crossing the storage boundary;
// callers persist and retrieve it verbatim.
package passwd

import (
	"context"

	"github.com/pkg/errors"
)

// Hasher provides methods for generating and comparing credential hashes.
type Hasher interface {
	// Generate returns an encoded hash derived from the secret or an error if
	// the hash method failed.
	Generate(ctx context.Context, secret []byte) ([]byte, error)

	// Compare reports whether the secret matches the encoded hash. Parse and
	// decode failures surface as errors; a clean mismatch is (false, nil).
	Compare(ctx context.Context, encodedHash, secret []byte) (bool, error)

	// Understands returns whether the given hash can be understood by this hasher.
	Understands(encodedHash []byte) bool
}

// Provider routes credential operations across a set of hashers. New hashes
// are issued by the default hasher; comparisons go to whichever registered
// hasher understands the stored encoding, so hashes issued under older
// schemes keep verifying after an upgrade.
type Provider struct {
	hashers []Hasher
}

func NewProvider(def Hasher, others ...Hasher) *Provider {
	return &Provider{hashers: append([]Hasher{def}, others...)}
}

func (p *Provider) Generate(ctx context.Context, secret []byte) ([]byte, error) {
	return p.hashers[0].Generate(ctx, secret)
}

func (p *Provider) Compare(ctx context.Context, encodedHash, secret []byte) (bool, error) {
	for _, h := range p.hashers {
		if h.Understands(encodedHash) {
			return h.Compare(ctx, encodedHash, secret)
		}
	}
	return false, errors.Wrap(ErrMalformedHash, "no registered hasher understands the encoding")
}

func (p *Provider) Understands(encodedHash []byte) bool {
	for _, h := range p.hashers {
		if h.Understands(encodedHash) {
			return true
		}
	}
	return false
}
