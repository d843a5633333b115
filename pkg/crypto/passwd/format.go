package passwd

import (
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// AlgorithmPBKDF2SHA256 is the algorithm tag carried by encoded pbkdf2 hashes.
const AlgorithmPBKDF2SHA256 = "pbkdf2_sha256"

// SaltLength is the raw salt size in bytes, shared by both formats.
const SaltLength = 16

// HashFormat selects the parameter and encoding convention of a pbkdf2 hash.
type HashFormat int

const (
	// FormatCurrent is the convention for newly issued hashes.
	FormatCurrent HashFormat = iota
	// FormatLegacy reproduces the pre-upgrade convention and exists only to
	// verify hashes issued before the parameter upgrade.
	FormatLegacy
)

// Parameter tuple per format. A future parameter upgrade changes the current
// tuple only; parsing and verification stay untouched.
const (
	CurrentIterations = 150000
	CurrentKeyLength  = 32

	LegacyIterations = 100000
	LegacyKeyLength  = 64
)

func (f HashFormat) String() string {
	if f == FormatLegacy {
		return "legacy"
	}
	return "current"
}

func (f HashFormat) iterations() int {
	if f == FormatLegacy {
		return LegacyIterations
	}
	return CurrentIterations
}

func (f HashFormat) keyLength() int {
	if f == FormatLegacy {
		return LegacyKeyLength
	}
	return CurrentKeyLength
}

func (f HashFormat) encodeToString(b []byte) string {
	if f == FormatLegacy {
		return hex.EncodeToString(b)
	}
	return base64.StdEncoding.EncodeToString(b)
}

func (f HashFormat) decodeString(s string) ([]byte, error) {
	if f == FormatLegacy {
		return hex.DecodeString(s)
	}
	return base64.StdEncoding.DecodeString(s)
}

// saltInput returns the bytes fed to the KDF for a salt stored as saltField.
// The legacy convention feeds the hex string itself to the KDF rather than
// the decoded bytes. That asymmetry is a compatibility requirement; changing
// it would stop previously issued hashes from verifying.
func (f HashFormat) saltInput(raw []byte, saltField string) []byte {
	if f == FormatLegacy {
		return []byte(saltField)
	}
	return raw
}

// parsedHash carries the fields of a structurally valid encoded pbkdf2 hash.
type parsedHash struct {
	iterations int
	saltField  string
	keyField   string
}

// parseEncoded splits an encoded pbkdf2 hash and validates everything that
// can be checked without cryptographic work: field count, algorithm tag and
// iteration syntax. Field decoding is format specific and happens later.
func parseEncoded(encodedHash string) (*parsedHash, error) {
	fields := strings.Split(encodedHash, "$")
	if len(fields) != 4 {
		return nil, errors.Wrapf(ErrMalformedHash, "expected 4 fields, got %d", len(fields))
	}
	if fields[0] != AlgorithmPBKDF2SHA256 {
		return nil, errors.Wrapf(ErrMalformedHash, "unexpected algorithm %q", fields[0])
	}
	iterations, err := strconv.Atoi(fields[1])
	if err != nil || iterations <= 0 {
		return nil, errors.Wrapf(ErrMalformedHash, "invalid iteration count %q", fields[1])
	}
	if fields[2] == "" || fields[3] == "" {
		return nil, errors.Wrap(ErrMalformedHash, "empty salt or key field")
	}
	return &parsedHash{iterations: iterations, saltField: fields[2], keyField: fields[3]}, nil
}

// DetectFormat classifies a well formed encoded pbkdf2 hash by the encoding
// of its salt and key fields: hex fields mean a legacy hash, anything else
// must decode as base64 and is current.
func DetectFormat(encodedHash []byte) (HashFormat, error) {
	parsed, err := parseEncoded(string(encodedHash))
	if err != nil {
		return FormatCurrent, err
	}
	if isHexField(parsed.saltField) && isHexField(parsed.keyField) {
		return FormatLegacy, nil
	}
	if _, err := base64.StdEncoding.DecodeString(parsed.saltField); err != nil {
		return FormatCurrent, errors.Wrap(ErrMalformedHash, "salt field is neither hex nor base64")
	}
	if _, err := base64.StdEncoding.DecodeString(parsed.keyField); err != nil {
		return FormatCurrent, errors.Wrap(ErrMalformedHash, "key field is neither hex nor base64")
	}
	return FormatCurrent, nil
}

// isHexField only accepts lowercase hex, the canonical form every legacy
// producer emits (hex.EncodeToString). A re-cased field is therefore
// classified current, where it either fails base64 decoding or derives an
// incomparable key; it never routes to the legacy KDF input path.
func isHexField(s string) bool {
	if len(s) == 0 || len(s)%2 != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
