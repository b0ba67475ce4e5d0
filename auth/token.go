package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// resetTokenBytes gives 256 bits of entropy per token, enough that guessing
// within the one hour validity window is infeasible.
const resetTokenBytes = 32

// RandomTokenGenerator draws reset tokens from crypto/rand and renders them
// URL-safe, so they can travel as a plain path or query parameter.
type RandomTokenGenerator struct{}

func NewRandomTokenGenerator() *RandomTokenGenerator {
	return &RandomTokenGenerator{}
}

func (g *RandomTokenGenerator) Generate() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

var _ TokenGenerator = (*RandomTokenGenerator)(nil)

// HashToken maps a plaintext reset token to its stored form. The store only
// ever sees this hash; the plaintext goes to the account holder out of band.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokensEqual compares a presented token against a stored hash in constant
// time.
func TokensEqual(token, storedHash string) bool {
	if token == "" || storedHash == "" {
		return false
	}
	computed := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
