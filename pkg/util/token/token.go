// Package token generates opaque credential tokens and unique IDs, and
// produces the digests under which tokens are stored at rest.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"

	"github.com/btcsuite/btcutil/base58"
	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"github.com/sony/sonyflake"
)

// DefaultLength is the entropy size, in bytes, of generated tokens.
const DefaultLength = 32

// New returns n random bytes from crypto/rand encoded as lowercase hex.
func New(n int) (string, error) {
	b, err := randomBytes(n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewURLSafe returns n random bytes encoded with unpadded URL safe base64.
func NewURLSafe(n int) (string, error) {
	b, err := randomBytes(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func randomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, errors.New("token size must be positive")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, errors.Wrap(err, "reading random bytes")
	}
	return b, nil
}

// Encode encodes the given UUID to base58.
func Encode(u uuid.UUID) string {
	return base58.Encode(u[:])
}

// EncodeUint64 encodes the given uint64 using base58.
func EncodeUint64(v uint64) string {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return base58.Encode(b)
}

// DecodeToUuid decodes the given base58 encoded string to a UUID.
func DecodeToUuid(s string) (uuid.UUID, error) {
	return uuid.FromBytes(base58.Decode(s))
}

// DecodeToUint64 decodes the given base58 encoded data to a uint64. Input
// that does not decode to exactly 8 bytes yields zero.
func DecodeToUint64(s string) uint64 {
	b := base58.Decode(s)
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// NewUniqueId returns a random UUID string.
func NewUniqueId() string {
	return uuid.NewString()
}

// NewShortId returns a new short UUID.
func NewShortId() string {
	return shortuuid.New()
}

var flake = sonyflake.NewSonyflake(sonyflake.Settings{})

// NewNumericId returns a new time ordered numeric ID.
func NewNumericId() (uint64, error) {
	if flake == nil {
		return 0, errors.New("sonyflake is not available on this host")
	}
	return flake.NextID()
}

// NewNumericIdEnc returns a base58 encoded time ordered numeric ID.
func NewNumericIdEnc() (string, error) {
	id, err := NewNumericId()
	if err != nil {
		return "", err
	}
	return EncodeUint64(id), nil
}
