// Package crypto ties the credential primitives together behind one utility
// type for callers that do not want to wire hashers and token helpers
// themselves.
package crypto

import (
	"context"

	"github.com/achuala/go-auth-extn/pkg/crypto/passwd"
	"github.com/achuala/go-auth-extn/pkg/util/token"
	"github.com/go-kratos/kratos/v2/log"
)

type CredentialUtil struct {
	provider   *passwd.Provider
	current    *passwd.PBKDF2
	legacy     *passwd.PBKDF2
	tokenBytes int
}

type CredentialConfig struct {
	// TokenBytes is the entropy size of generated tokens, token.DefaultLength
	// when zero.
	TokenBytes int
	// MaxConcurrent caps concurrent derivations per hasher when positive.
	MaxConcurrent int
}

// NewCredentialUtil wires a pbkdf2 hasher for new hashes, a legacy variant
// instance for pre-upgrade hashes and the alternative hashers for stored
// hashes issued under other schemes. Configuration is logged once here; the
// credential operations themselves never log.
func NewCredentialUtil(cfg *CredentialConfig, logger log.Logger) (*CredentialUtil, func(), error) {
	if cfg == nil {
		cfg = &CredentialConfig{}
	}
	if logger == nil {
		logger = log.DefaultLogger
	}
	hlog := log.NewHelper(logger)

	current, err := passwd.NewHasherPBKDF2(&passwd.PBKDF2Configuration{
		Format:        passwd.FormatCurrent,
		MaxConcurrent: cfg.MaxConcurrent,
	})
	if err != nil {
		return nil, nil, err
	}
	legacy, err := passwd.NewHasherPBKDF2(&passwd.PBKDF2Configuration{
		Format:        passwd.FormatLegacy,
		MaxConcurrent: cfg.MaxConcurrent,
	})
	if err != nil {
		return nil, nil, err
	}

	provider := passwd.NewProvider(current,
		passwd.NewHasherArgon2(&passwd.Argon2Configuration{MaxConcurrent: cfg.MaxConcurrent}),
		passwd.NewHasherBcrypt(nil),
		passwd.NewHasherScrypt(nil),
	)

	util := &CredentialUtil{
		provider:   provider,
		current:    current,
		legacy:     legacy,
		tokenBytes: cfg.TokenBytes,
	}
	if util.tokenBytes == 0 {
		util.tokenBytes = token.DefaultLength
	}

	hlog.Infow("msg", "credential util initialized",
		"format", passwd.FormatCurrent.String(),
		"iterations", passwd.CurrentIterations,
		"token.bytes", util.tokenBytes)

	return util, func() {}, nil
}

// HashCredential derives an encoded hash for the secret in the current
// format. The returned string is opaque to storage.
func (u *CredentialUtil) HashCredential(ctx context.Context, secret []byte) ([]byte, error) {
	return u.current.Generate(ctx, secret)
}

// HashCredentialLegacy derives an encoded hash in the legacy format. Only
// migration and compatibility paths should call this.
func (u *CredentialUtil) HashCredentialLegacy(ctx context.Context, secret []byte) ([]byte, error) {
	return u.legacy.Generate(ctx, secret)
}

// VerifyCredential compares the secret against a stored hash of any scheme
// the util understands, routing legacy format pbkdf2 hashes to the legacy
// variant instance.
func (u *CredentialUtil) VerifyCredential(ctx context.Context, encodedHash, secret []byte) (bool, error) {
	if format, err := passwd.DetectFormat(encodedHash); err == nil && format == passwd.FormatLegacy {
		return u.legacy.Compare(ctx, encodedHash, secret)
	}
	return u.provider.Compare(ctx, encodedHash, secret)
}

// CredentialNeedsRehash reports whether a stored hash should be re-issued
// under the current parameters after its next successful verification.
func (u *CredentialUtil) CredentialNeedsRehash(encodedHash []byte) bool {
	if u.current.Understands(encodedHash) {
		return u.current.NeedsRehash(encodedHash)
	}
	// Hashes of other understood schemes are by definition not in the
	// current format.
	return u.provider.Understands(encodedHash)
}

// NewToken returns a fresh random token encoded as hex.
func (u *CredentialUtil) NewToken() (string, error) {
	return token.New(u.tokenBytes)
}

// NewTokenURLSafe returns a fresh random token in unpadded URL safe base64.
func (u *CredentialUtil) NewTokenURLSafe() (string, error) {
	return token.NewURLSafe(u.tokenBytes)
}

// DigestToken returns the digest a token is stored under at rest.
func (u *CredentialUtil) DigestToken(tok string) string {
	return token.Digest(tok)
}

// VerifyTokenDigest reports whether the token matches a stored digest.
func (u *CredentialUtil) VerifyTokenDigest(tok, storedDigest string) bool {
	return token.VerifyDigest(tok, storedDigest)
}
