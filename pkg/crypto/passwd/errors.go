package passwd

import "github.com/pkg/errors"

var (
	// ErrInvalidInput indicates the supplied secret failed the basic input
	// policy, checked before any derivation work.
	ErrInvalidInput = errors.New("credential does not meet the minimum input policy")

	// ErrMalformedHash indicates the encoded hash is not in the correct format.
	ErrMalformedHash = errors.New("the encoded hash is not in the correct format")

	// ErrCryptoBackend indicates the random source or derivation primitive
	// failed. Not expected in normal operation and never retried here.
	ErrCryptoBackend = errors.New("crypto backend failure")
)
