package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Digest returns the lowercase hex SHA-256 digest of the token, the form a
// token is stored under at rest in place of the token itself.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// DigestHMAC returns the lowercase hex HMAC-SHA-256 of the token under key.
func DigestHMAC(token string, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyDigest reports whether the token matches the stored digest. The
// comparison is constant time over the hex strings, so the stored digest
// must be the lowercase form Digest produces; a digest of the wrong length
// or case is unequal, never an error.
func VerifyDigest(token, storedDigest string) bool {
	computed := Digest(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedDigest)) == 1
}

// VerifyDigestHMAC reports whether the token matches the stored keyed digest.
func VerifyDigestHMAC(token string, key []byte, storedDigest string) bool {
	computed := DigestHMAC(token, key)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedDigest)) == 1
}
