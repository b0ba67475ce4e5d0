package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// SHA256Hasher is the legacy hashing strategy: the plaintext is combined with
// a fixed application-wide pepper and run through a single digest pass. It is
// deterministic, which keeps old digests verifiable, but it is not memory
// hard and has no per-account salt. New deployments should prefer
// BcryptHasher; this strategy exists so stores written by the old scheme keep
// working.
type SHA256Hasher struct {
	pepper []byte
}

// NewSHA256Hasher builds the legacy hasher around the application secret.
func NewSHA256Hasher(pepper string) *SHA256Hasher {
	return &SHA256Hasher{pepper: []byte(pepper)}
}

func (h *SHA256Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	sum := sha256.Sum256(append([]byte(password), h.pepper...))
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

func (h *SHA256Hasher) Verify(password, digest string) (bool, error) {
	computed, err := h.Hash(password)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1, nil
}

var _ PasswordHasher = (*SHA256Hasher)(nil)
