package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

const opaqueTokenSize = 32

// NewOpaqueToken returns a random single-use token (32 bytes, base64url without padding) and
// the SHA-256 hex digest that is stored in place of it.
func NewOpaqueToken() (token string, digest string, err error) {
	var raw [opaqueTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(raw[:])
	return token, HashToken(token), nil
}

// HashToken returns the storage digest of an opaque token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ValidOpaqueToken reports whether token has the shape produced by NewOpaqueToken. It lets
// callers reject garbage before a store lookup.
func ValidOpaqueToken(token string) bool {
	if len(token) != base64.RawURLEncoding.EncodedLen(opaqueTokenSize) {
		return false
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil && len(raw) == opaqueTokenSize
}

// ErrDummyHash is returned when the timing-equalization hash could not be produced.
var ErrDummyHash = errors.New("dummy hash generation failed")

// NewDummyPassword returns a random password used to produce a hash for timing equalization.
func NewDummyPassword() (string, error) {
	var raw [24]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", errors.Join(ErrDummyHash, err)
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
